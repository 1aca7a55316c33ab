package outboundadapter

import (
	"context"
	"net/http"
	"testing"

	"clipfeed/contexts/engagement/delivery-service/ports"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		name string
		code int
		want ports.DeliveryResult
	}{
		{name: "ok", code: http.StatusOK, want: ports.DeliveryResultDelivered},
		{name: "accepted", code: http.StatusAccepted, want: ports.DeliveryResultDelivered},
		{name: "request timeout", code: http.StatusRequestTimeout, want: ports.DeliveryResultTransientFailure},
		{name: "too many requests", code: http.StatusTooManyRequests, want: ports.DeliveryResultTransientFailure},
		{name: "bad request", code: http.StatusBadRequest, want: ports.DeliveryResultPermanentFailure},
		{name: "gone", code: http.StatusGone, want: ports.DeliveryResultPermanentFailure},
		{name: "server error", code: http.StatusInternalServerError, want: ports.DeliveryResultTransientFailure},
		{name: "bad gateway", code: http.StatusBadGateway, want: ports.DeliveryResultTransientFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyStatus(tc.code); got != tc.want {
				t.Fatalf("status %d: expected %s, got %s", tc.code, tc.want, got)
			}
		})
	}
}

func TestDisabledHookClientReportsPermanentFailure(t *testing.T) {
	client := DisabledHookClient{}

	result, err := client.Post(context.Background(), ports.HookBatch{
		SubjectID: "user-1",
		Counts:    map[string]int{"video.liked": 2},
	})
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if result != ports.DeliveryResultPermanentFailure {
		t.Fatalf("expected permanent failure so the item is ignored, got %s", result)
	}
}
