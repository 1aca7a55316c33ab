package workers

import (
	"context"
	"errors"
	"testing"

	outboundadapter "clipfeed/contexts/engagement/delivery-service/adapters/outbound"
	"clipfeed/contexts/engagement/delivery-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/delivery-service/domain/errors"
	"clipfeed/contexts/engagement/delivery-service/ports"
)

type scriptedPushClient struct {
	result ports.DeliveryResult
	err    error
	sent   []ports.PushMessage
}

func (c *scriptedPushClient) Send(_ context.Context, msg ports.PushMessage) (ports.DeliveryResult, error) {
	c.sent = append(c.sent, msg)
	return c.result, c.err
}

type scriptedHookClient struct {
	result ports.DeliveryResult
	posted []ports.HookBatch
}

func (c *scriptedHookClient) Post(_ context.Context, batch ports.HookBatch) (ports.DeliveryResult, error) {
	c.posted = append(c.posted, batch)
	return c.result, nil
}

func TestPushSenderOutcomePerDeliveryResult(t *testing.T) {
	cases := []struct {
		name    string
		result  ports.DeliveryResult
		want    Outcome
		wantErr bool
	}{
		{name: "delivered", result: ports.DeliveryResultDelivered, want: OutcomeProcessed},
		{name: "permanent failure", result: ports.DeliveryResultPermanentFailure, want: OutcomeIgnored},
		{name: "transient failure", result: ports.DeliveryResultTransientFailure, want: OutcomeRetry, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &scriptedPushClient{result: tc.result}
			sender := PushSender{Client: client}

			outcome, err := sender.Handle(context.Background(), entities.WorkItem{
				ItemID:  "item-1",
				Kind:    entities.WorkItemKindPush,
				Payload: []byte(`{"user_id":"user-1","title":"hi","body":"there"}`),
			})
			if outcome != tc.want {
				t.Fatalf("expected outcome %s, got %s", tc.want, outcome)
			}
			if tc.wantErr && err == nil {
				t.Fatal("expected error for transient failure")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(client.sent) != 1 || client.sent[0].UserID != "user-1" {
				t.Fatalf("expected one send to user-1, got %+v", client.sent)
			}
		})
	}
}

func TestPushSenderIgnoresMalformedPayload(t *testing.T) {
	client := &scriptedPushClient{result: ports.DeliveryResultDelivered}
	sender := PushSender{Client: client}

	outcome, err := sender.Handle(context.Background(), entities.WorkItem{
		ItemID:  "item-bad",
		Kind:    entities.WorkItemKindPush,
		Payload: []byte(`not json`),
	})
	if outcome != OutcomeIgnored {
		t.Fatalf("malformed payload should be ignored, got %s", outcome)
	}
	if !errors.Is(err, domainerrors.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if len(client.sent) != 0 {
		t.Fatal("client must not be called for malformed payload")
	}

	outcome, err = sender.Handle(context.Background(), entities.WorkItem{
		ItemID:  "item-missing-user",
		Kind:    entities.WorkItemKindPush,
		Payload: []byte(`{"title":"hi"}`),
	})
	if outcome != OutcomeIgnored || !errors.Is(err, domainerrors.ErrMalformedPayload) {
		t.Fatalf("missing user_id should be ignored with ErrMalformedPayload, got %s / %v", outcome, err)
	}
}

func TestHookDigestPostsAggregatedCounts(t *testing.T) {
	client := &scriptedHookClient{result: ports.DeliveryResultDelivered}
	digest := HookDigest{Client: client}

	outcome, err := digest.Handle(context.Background(), entities.WorkItem{
		ItemID:  "item-hook",
		Kind:    entities.WorkItemKindHook,
		Payload: []byte(`{"subject_id":"user-9","counts":{"video.liked":4}}`),
	})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}
	if len(client.posted) != 1 {
		t.Fatalf("expected one post, got %d", len(client.posted))
	}
	if client.posted[0].SubjectID != "user-9" || client.posted[0].Counts["video.liked"] != 4 {
		t.Fatalf("unexpected batch: %+v", client.posted[0])
	}
}

func TestHookDigestSettlesItemsWhenChannelDisabled(t *testing.T) {
	digest := HookDigest{Client: outboundadapter.DisabledHookClient{}}

	outcome, err := digest.Handle(context.Background(), entities.WorkItem{
		ItemID:  "item-hook",
		Kind:    entities.WorkItemKindHook,
		Payload: []byte(`{"subject_id":"user-9","counts":{"video.liked":4}}`),
	})
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	// The item reaches a terminal state instead of lingering as Pending.
	if outcome != OutcomeIgnored {
		t.Fatalf("disabled hook channel must settle items as ignored, got %s", outcome)
	}
}
