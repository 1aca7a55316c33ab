package commands

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"clipfeed/contexts/engagement/notification-service/adapters/memory"
	"clipfeed/contexts/engagement/notification-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/notification-service/domain/errors"
	"clipfeed/contexts/engagement/notification-service/ports"
)

type capturedPublish struct {
	topic    string
	envelope ports.EventEnvelope
}

type capturingPublisher struct {
	published []capturedPublish
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.published = append(p.published, capturedPublish{topic: topic, envelope: event})
	return nil
}

type capturedEnqueue struct {
	kind    string
	payload []byte
}

type capturingQueue struct {
	enqueued []capturedEnqueue
}

func (q *capturingQueue) Enqueue(_ context.Context, kind string, payload []byte, _ time.Time) (string, error) {
	q.enqueued = append(q.enqueued, capturedEnqueue{kind: kind, payload: append([]byte(nil), payload...)})
	return "queued-item", nil
}

func newPlanner(store *memory.Store, publisher *capturingPublisher, queue *capturingQueue) PlanFanoutUseCase {
	return PlanFanoutUseCase{
		Social:      store,
		Preferences: store,
		Publisher:   publisher,
		Queue:       queue,
		Clock:       store,
		IDGenerator: store,
		ServiceName: "clipfeed-test",
	}
}

func (q *capturingQueue) kinds() []string {
	kinds := make([]string, 0, len(q.enqueued))
	for _, item := range q.enqueued {
		kinds = append(kinds, item.kind)
	}
	return kinds
}

func TestPlanFailsClosedBeforeAnyWrite(t *testing.T) {
	store := memory.NewStore()
	publisher := &capturingPublisher{}
	queue := &capturingQueue{}
	planner := newPlanner(store, publisher, queue)

	cases := []struct {
		name  string
		event entities.FanoutEvent
	}{
		{name: "unknown kind", event: entities.FanoutEvent{
			Kind: "video.remixed", ActorID: "actor",
		}},
		{name: "missing actor", event: entities.FanoutEvent{
			Kind: entities.NotificationKindVideoLiked, SubjectUserID: "owner", VideoID: "vid",
		}},
		{name: "missing video", event: entities.FanoutEvent{
			Kind: entities.NotificationKindVideoLiked, ActorID: "actor", SubjectUserID: "owner",
		}},
		{name: "missing subject", event: entities.FanoutEvent{
			Kind: entities.NotificationKindVideoLiked, ActorID: "actor", VideoID: "vid",
		}},
		{name: "mention without mentions", event: entities.FanoutEvent{
			Kind: entities.NotificationKindUserMentioned, ActorID: "actor",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := planner.Execute(context.Background(), tc.event)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, domainerrors.ErrInvalidFanoutEvent) &&
				!errors.Is(err, domainerrors.ErrUnknownNotificationKind) {
				t.Fatalf("unexpected error class: %v", err)
			}
		})
	}

	if len(publisher.published) != 0 || len(queue.enqueued) != 0 {
		t.Fatalf("validation failures must not write: published=%d enqueued=%d",
			len(publisher.published), len(queue.enqueued))
	}
}

func TestPlanSuppressesActorAndMutedRecipients(t *testing.T) {
	store := memory.NewStore()
	publisher := &capturingPublisher{}
	queue := &capturingQueue{}
	planner := newPlanner(store, publisher, queue)

	// follower-muted has muted the actor; creator likes their own video too.
	store.AddFollow("follower-a", "creator-1")
	store.AddFollow("follower-muted", "creator-1")
	store.AddFollow("creator-1", "creator-1")
	store.AddSuppression("follower-muted", "creator-1")

	result, err := planner.Execute(context.Background(), entities.FanoutEvent{
		Kind:    entities.NotificationKindVideoPublished,
		ActorID: "creator-1",
		VideoID: "vid-5",
	})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if len(result.Recipients) != 1 || result.Recipients[0] != "follower-a" {
		t.Fatalf("expected only follower-a, got %v", result.Recipients)
	}
	if result.PersistPublished != 1 {
		t.Fatalf("expected one persist message, got %d", result.PersistPublished)
	}
	if len(queue.enqueued) != 1 || queue.enqueued[0].kind != "push.notification" {
		t.Fatalf("expected one push work item, got %v", queue.kinds())
	}
}

func TestPlanVideoLikedNotifiesOwnerAndQueuesHook(t *testing.T) {
	store := memory.NewStore()
	publisher := &capturingPublisher{}
	queue := &capturingQueue{}
	planner := newPlanner(store, publisher, queue)

	result, err := planner.Execute(context.Background(), entities.FanoutEvent{
		Kind:          entities.NotificationKindVideoLiked,
		ActorID:       "liker-1",
		SubjectUserID: "owner-1",
		VideoID:       "vid-1",
	})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(result.Recipients) != 1 || result.Recipients[0] != "owner-1" {
		t.Fatalf("expected owner-1, got %v", result.Recipients)
	}

	kinds := queue.kinds()
	if len(kinds) != 2 || kinds[0] != "push.notification" || kinds[1] != "hook.aggregate" {
		t.Fatalf("expected push + hook work items, got %v", kinds)
	}

	var hook struct {
		SubjectID string         `json:"subject_id"`
		Counts    map[string]int `json:"counts"`
	}
	if err := json.Unmarshal(queue.enqueued[1].payload, &hook); err != nil {
		t.Fatalf("hook payload unmarshal failed: %v", err)
	}
	if hook.SubjectID != "owner-1" || hook.Counts["video.liked"] != 1 {
		t.Fatalf("unexpected hook payload: %+v", hook)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("expected one persist message, got %d", len(publisher.published))
	}
	if publisher.published[0].topic != ports.TopicPersistNotification {
		t.Fatalf("unexpected topic %s", publisher.published[0].topic)
	}
	var message ports.PersistNotificationMessage
	if err := json.Unmarshal(publisher.published[0].envelope.Data, &message); err != nil {
		t.Fatalf("persist message unmarshal failed: %v", err)
	}
	if message.UserID != "owner-1" || message.Kind != "video.liked" {
		t.Fatalf("unexpected persist message: %+v", message)
	}
	if message.NotificationID == "" {
		t.Fatal("persist message must carry the planner-chosen notification id")
	}
}

func TestPlanSelfLikeProducesNothing(t *testing.T) {
	store := memory.NewStore()
	publisher := &capturingPublisher{}
	queue := &capturingQueue{}
	planner := newPlanner(store, publisher, queue)

	result, err := planner.Execute(context.Background(), entities.FanoutEvent{
		Kind:          entities.NotificationKindVideoLiked,
		ActorID:       "owner-1",
		SubjectUserID: "owner-1",
		VideoID:       "vid-1",
	})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(result.Recipients) != 0 || len(publisher.published) != 0 || len(queue.enqueued) != 0 {
		t.Fatalf("self action must produce no effects: %+v", result)
	}
}

func TestPlanReplySkipsAlreadyMentionedRecipient(t *testing.T) {
	store := memory.NewStore()
	publisher := &capturingPublisher{}
	queue := &capturingQueue{}
	planner := newPlanner(store, publisher, queue)

	result, err := planner.Execute(context.Background(), entities.FanoutEvent{
		Kind:             entities.NotificationKindCommentReply,
		ActorID:          "replier",
		SubjectUserID:    "parent-author",
		CommentID:        "comment-9",
		MentionedUserIDs: []string{"parent-author"},
	})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(result.Recipients) != 0 {
		t.Fatalf("mentioned parent author must get the mention, not the reply: %v", result.Recipients)
	}
}

func TestPlanPayoutNotifiesTheActorByEmail(t *testing.T) {
	store := memory.NewStore()
	publisher := &capturingPublisher{}
	queue := &capturingQueue{}
	planner := newPlanner(store, publisher, queue)

	result, err := planner.Execute(context.Background(), entities.FanoutEvent{
		Kind:          entities.NotificationKindPayoutCompleted,
		ActorID:       "creator-3",
		SubjectUserID: "creator-3",
		Data:          map[string]string{"amount_cents": "5000"},
	})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(result.Recipients) != 1 || result.Recipients[0] != "creator-3" {
		t.Fatalf("payout must reach the acting creator, got %v", result.Recipients)
	}
	kinds := queue.kinds()
	if len(kinds) != 1 || kinds[0] != "email.transactional" {
		t.Fatalf("expected a single email work item, got %v", kinds)
	}
	var email struct {
		UserID   string `json:"user_id"`
		Template string `json:"template"`
	}
	if err := json.Unmarshal(queue.enqueued[0].payload, &email); err != nil {
		t.Fatalf("email payload unmarshal failed: %v", err)
	}
	if email.UserID != "creator-3" || email.Template != "payout_completed" {
		t.Fatalf("unexpected email payload: %+v", email)
	}
}

func TestPlanRespectsChannelPreferences(t *testing.T) {
	store := memory.NewStore()
	publisher := &capturingPublisher{}
	queue := &capturingQueue{}
	planner := newPlanner(store, publisher, queue)

	store.SetPreference("owner-1", entities.NotificationKindCommentCreated, "push", false)

	result, err := planner.Execute(context.Background(), entities.FanoutEvent{
		Kind:          entities.NotificationKindCommentCreated,
		ActorID:       "commenter",
		SubjectUserID: "owner-1",
		VideoID:       "vid-1",
		CommentID:     "comment-1",
	})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	// The in-app record is written regardless; only the push channel is gated.
	if result.PersistPublished != 1 {
		t.Fatalf("persist message must be published despite push opt-out, got %d", result.PersistPublished)
	}
	if len(queue.enqueued) != 0 {
		t.Fatalf("push opt-out must suppress the work item, got %v", queue.kinds())
	}
}
