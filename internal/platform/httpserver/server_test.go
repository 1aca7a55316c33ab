package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	deliveryservice "clipfeed/contexts/engagement/delivery-service"
	deliverymemory "clipfeed/contexts/engagement/delivery-service/adapters/memory"
	deliveryentities "clipfeed/contexts/engagement/delivery-service/domain/entities"
	ingestionservice "clipfeed/contexts/engagement/ingestion-service"
	ingestionmemory "clipfeed/contexts/engagement/ingestion-service/adapters/memory"
	ingestionports "clipfeed/contexts/engagement/ingestion-service/ports"
	notificationservice "clipfeed/contexts/engagement/notification-service"
	notificationmemory "clipfeed/contexts/engagement/notification-service/adapters/memory"
	notificationentities "clipfeed/contexts/engagement/notification-service/domain/entities"
)

type noopFanout struct{}

func (noopFanout) Plan(context.Context, ingestionports.FanoutRequest) error { return nil }

type serverFixture struct {
	server         *Server
	ingestionStore *ingestionmemory.Store
	deliveryStore  *deliverymemory.Store
	notifStore     *notificationmemory.Store
}

func newTestServer(t *testing.T) serverFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ingestionModule, err := ingestionservice.NewInMemoryModule(noopFanout{}, logger)
	if err != nil {
		t.Fatalf("ingestion module: %v", err)
	}

	deliveryModule, err := deliveryservice.NewInMemoryModule(logger)
	if err != nil {
		t.Fatalf("delivery module: %v", err)
	}

	// Read side only: the bus and queue collaborators stay unwired.
	notificationModule := notificationservice.NewInMemoryModule(nil, nil, nil, logger)

	return serverFixture{
		server:         New(ingestionModule, deliveryModule, notificationModule, logger, ":0"),
		ingestionStore: ingestionModule.Store,
		deliveryStore:  deliveryModule.Store,
		notifStore:     notificationModule.Store,
	}
}

func (f serverFixture) do(t *testing.T, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(target); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func TestWebhookIntakeAcknowledgesDuplicates(t *testing.T) {
	fixture := newTestServer(t)
	headers := map[string]string{"X-Delivery-Id": "stripe-evt-1"}
	payload := `{"transaction_id":"tx-1"}`

	first := fixture.do(t, http.MethodPost, "/webhooks/payments", payload, headers)
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", first.Code, first.Body.String())
	}
	var firstAck struct {
		EventID string `json:"event_id"`
		IsNew   bool   `json:"is_new"`
		Status  string `json:"status"`
	}
	decodeBody(t, first, &firstAck)
	if !firstAck.IsNew || firstAck.Status != "pending" {
		t.Fatalf("unexpected first ack: %+v", firstAck)
	}

	// The provider retries with the same delivery id; same ack, same row.
	second := fixture.do(t, http.MethodPost, "/webhooks/payments", payload, headers)
	if second.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on duplicate, got %d", second.Code)
	}
	var secondAck struct {
		EventID string `json:"event_id"`
		IsNew   bool   `json:"is_new"`
	}
	decodeBody(t, second, &secondAck)
	if secondAck.IsNew {
		t.Fatal("duplicate delivery must not be acknowledged as new")
	}
	if secondAck.EventID != firstAck.EventID {
		t.Fatalf("duplicate must resolve to the same event: %s vs %s", firstAck.EventID, secondAck.EventID)
	}
}

func TestWebhookIntakeRejectsBadRequests(t *testing.T) {
	fixture := newTestServer(t)

	missing := fixture.do(t, http.MethodPost, "/webhooks/payments", `{}`, nil)
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without X-Delivery-Id, got %d", missing.Code)
	}
	var missingErr struct {
		Code string `json:"code"`
	}
	decodeBody(t, missing, &missingErr)
	if missingErr.Code != "missing_delivery_id" {
		t.Fatalf("unexpected error code %q", missingErr.Code)
	}

	invalid := fixture.do(t, http.MethodPost, "/webhooks/meetings", `not json`,
		map[string]string{"X-Delivery-Id": "zoom-evt-1"})
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", invalid.Code)
	}
	var invalidErr struct {
		Code string `json:"code"`
	}
	decodeBody(t, invalid, &invalidErr)
	if invalidErr.Code != "invalid_json" {
		t.Fatalf("unexpected error code %q", invalidErr.Code)
	}
}

func TestEventOpsEndpoints(t *testing.T) {
	fixture := newTestServer(t)
	ack := fixture.do(t, http.MethodPost, "/webhooks/meetings", `{"video_id":"vid-1"}`,
		map[string]string{"X-Delivery-Id": "zoom-evt-2"})
	var recorded struct {
		EventID string `json:"event_id"`
	}
	decodeBody(t, ack, &recorded)

	got := fixture.do(t, http.MethodGet, "/ops/events/"+recorded.EventID, "", nil)
	if got.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", got.Code)
	}
	var event struct {
		NaturalKey string `json:"natural_key"`
		Source     string `json:"source"`
		Status     string `json:"status"`
	}
	decodeBody(t, got, &event)
	if event.NaturalKey != "zoom-evt-2" || event.Source != "meetings-provider" || event.Status != "pending" {
		t.Fatalf("unexpected event view: %+v", event)
	}

	if missing := fixture.do(t, http.MethodGet, "/ops/events/unknown", "", nil); missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown event, got %d", missing.Code)
	}

	// Reset only applies to failed events; a pending event conflicts.
	reset := fixture.do(t, http.MethodPost, "/ops/events/"+recorded.EventID+"/reset", "", nil)
	if reset.Code != http.StatusConflict {
		t.Fatalf("expected 409 resetting a pending event, got %d", reset.Code)
	}
}

func TestWorkItemOpsEndpoints(t *testing.T) {
	fixture := newTestServer(t)
	now := time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC)

	itemID, err := fixture.deliveryStore.Enqueue(
		context.Background(),
		deliveryentities.WorkItemKindPush,
		[]byte(`{"user_id":"user-1"}`),
		now,
	)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	counters := fixture.do(t, http.MethodGet, "/ops/queues", "", nil)
	if counters.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", counters.Code)
	}
	var queueView struct {
		Pending int `json:"pending"`
	}
	decodeBody(t, counters, &queueView)
	if queueView.Pending != 1 {
		t.Fatalf("expected 1 pending item, got %d", queueView.Pending)
	}

	item := fixture.do(t, http.MethodGet, "/ops/work-items/"+itemID, "", nil)
	if item.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", item.Code)
	}

	badOutcome := fixture.do(t, http.MethodPost, "/ops/work-items/"+itemID+"/resolve",
		`{"outcome":"processed"}`, nil)
	if badOutcome.Code != http.StatusBadRequest {
		t.Fatalf("automated outcomes must be rejected on the operator path, got %d", badOutcome.Code)
	}

	resolve := fixture.do(t, http.MethodPost, "/ops/work-items/"+itemID+"/resolve",
		`{"outcome":"manually_handled"}`, nil)
	if resolve.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resolve.Code, resolve.Body.String())
	}
	var resolved struct {
		Resolved bool   `json:"resolved"`
		Status   string `json:"status"`
	}
	decodeBody(t, resolve, &resolved)
	if !resolved.Resolved || resolved.Status != "manually_handled" {
		t.Fatalf("unexpected resolve response: %+v", resolved)
	}

	// The row is terminal now; a second resolve conflicts.
	again := fixture.do(t, http.MethodPost, "/ops/work-items/"+itemID+"/resolve",
		`{"outcome":"manually_interrupted"}`, nil)
	if again.Code != http.StatusConflict {
		t.Fatalf("expected 409 resolving a terminal item, got %d", again.Code)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	fixture := newTestServer(t)
	base := time.Date(2026, time.March, 12, 10, 0, 0, 0, time.UTC)

	inserted, err := fixture.notifStore.CreateNotification(context.Background(), notificationentities.Notification{
		NotificationID: "ntf-1",
		UserID:         "user-1",
		Kind:           notificationentities.NotificationKindVideoLiked,
		ActorIDs:       []string{"liker-1"},
		ActorCount:     1,
		VideoID:        "vid-1",
		CreatedAt:      base,
	})
	if err != nil || !inserted {
		t.Fatalf("seed notification failed: inserted=%v err=%v", inserted, err)
	}

	list := fixture.do(t, http.MethodGet, "/users/user-1/notifications", "", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", list.Code)
	}
	var listed struct {
		Notifications []struct {
			NotificationID string `json:"notification_id"`
			Kind           string `json:"kind"`
		} `json:"notifications"`
	}
	decodeBody(t, list, &listed)
	if len(listed.Notifications) != 1 || listed.Notifications[0].NotificationID != "ntf-1" {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	unread := fixture.do(t, http.MethodGet, "/users/user-1/notifications/unread-count", "", nil)
	var unreadView struct {
		Unread int `json:"unread"`
	}
	decodeBody(t, unread, &unreadView)
	if unreadView.Unread != 1 {
		t.Fatalf("expected 1 unread, got %d", unreadView.Unread)
	}

	read := fixture.do(t, http.MethodPost, "/users/user-1/notifications/ntf-1/read", "", nil)
	if read.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", read.Code)
	}

	unread = fixture.do(t, http.MethodGet, "/users/user-1/notifications/unread-count", "", nil)
	decodeBody(t, unread, &unreadView)
	if unreadView.Unread != 0 {
		t.Fatalf("expected 0 unread after read, got %d", unreadView.Unread)
	}

	// Another user cannot read someone else's notification.
	foreign := fixture.do(t, http.MethodPost, "/users/user-2/notifications/ntf-1/read", "", nil)
	if foreign.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign notification, got %d", foreign.Code)
	}
}
