package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	deliveryservice "clipfeed/contexts/engagement/delivery-service"
	deliveryerrors "clipfeed/contexts/engagement/delivery-service/domain/errors"
	deliveryhttp "clipfeed/contexts/engagement/delivery-service/transport/http"
	ingestionservice "clipfeed/contexts/engagement/ingestion-service"
	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	ingestionerrors "clipfeed/contexts/engagement/ingestion-service/domain/errors"
	ingestionhttp "clipfeed/contexts/engagement/ingestion-service/transport/http"
	notificationservice "clipfeed/contexts/engagement/notification-service"
	notificationerrors "clipfeed/contexts/engagement/notification-service/domain/errors"
	notificationhttp "clipfeed/contexts/engagement/notification-service/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "clipfeed/internal/platform/httpserver/docs"
)

// maxWebhookBody caps inbound webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

type Server struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	addr         string
	ingestion    ingestionservice.Module
	delivery     deliveryservice.Module
	notification notificationservice.Module
}

func New(
	ingestion ingestionservice.Module,
	delivery deliveryservice.Module,
	notification notificationservice.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:          http.NewServeMux(),
		logger:       logger,
		addr:         addr,
		ingestion:    ingestion,
		delivery:     delivery,
		notification: notification,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the mux for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("POST /webhooks/payments", s.handlePaymentWebhook)
	s.mux.HandleFunc("POST /webhooks/meetings", s.handleMeetingWebhook)

	s.mux.HandleFunc("GET /ops/queues", s.handleQueueCounters)
	s.mux.HandleFunc("GET /ops/events/{event_id}", s.handleGetEvent)
	s.mux.HandleFunc("POST /ops/events/{event_id}/reset", s.handleResetEvent)
	s.mux.HandleFunc("GET /ops/work-items/{item_id}", s.handleGetWorkItem)
	s.mux.HandleFunc("POST /ops/work-items/{item_id}/resolve", s.handleResolveWorkItem)

	s.mux.HandleFunc("GET /users/{user_id}/notifications", s.handleListNotifications)
	s.mux.HandleFunc("GET /users/{user_id}/notifications/unread-count", s.handleUnreadCount)
	s.mux.HandleFunc("POST /users/{user_id}/notifications/{notification_id}/read", s.handleMarkRead)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	s.handleWebhook(w, r, "payments-gateway", entities.ExternalEventKindTransactionSucceeded)
}

func (s *Server) handleMeetingWebhook(w http.ResponseWriter, r *http.Request) {
	s.handleWebhook(w, r, "meetings-provider", entities.ExternalEventKindRecordingReady)
}

// handleWebhook acknowledges with 202 for new and duplicate deliveries
// alike; the provider must never retry on a dedupe.
func (s *Server) handleWebhook(
	w http.ResponseWriter,
	r *http.Request,
	source string,
	kind entities.ExternalEventKind,
) {
	naturalKey := strings.TrimSpace(r.Header.Get("X-Delivery-Id"))
	if naturalKey == "" {
		writeIngestionError(w, http.StatusBadRequest, "missing_delivery_id", "X-Delivery-Id header is required")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeIngestionError(w, http.StatusBadRequest, "unreadable_body", "request body could not be read")
		return
	}
	if !json.Valid(payload) {
		writeIngestionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ingestion.Handler.RecordWebhookHandler(r.Context(), naturalKey, source, kind, payload)
	if err != nil {
		writeIngestionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleQueueCounters(w http.ResponseWriter, r *http.Request) {
	resp, err := s.delivery.Handler.QueueCountersHandler(r.Context())
	if err != nil {
		writeDeliveryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("event_id")
	resp, err := s.ingestion.Handler.GetEventHandler(r.Context(), eventID)
	if err != nil {
		writeIngestionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("event_id")
	resp, err := s.ingestion.Handler.ResetEventHandler(r.Context(), eventID)
	if err != nil {
		writeIngestionDomainError(w, err)
		return
	}
	if !resp.Reset {
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetWorkItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("item_id")
	resp, err := s.delivery.Handler.GetWorkItemHandler(r.Context(), itemID)
	if err != nil {
		writeDeliveryDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResolveWorkItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("item_id")

	var req deliveryhttp.ResolveWorkItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDeliveryError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.delivery.Handler.ResolveWorkItemHandler(r.Context(), itemID, req)
	if err != nil {
		writeDeliveryDomainError(w, err)
		return
	}
	if !resp.Resolved {
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	limit := 0
	if limitRaw := r.URL.Query().Get("limit"); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil {
			writeNotificationError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = parsed
	}

	resp, err := s.notification.Handler.ListNotificationsHandler(r.Context(), userID, limit)
	if err != nil {
		writeNotificationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	resp, err := s.notification.Handler.UnreadCountHandler(r.Context(), userID)
	if err != nil {
		writeNotificationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	notificationID := r.PathValue("notification_id")
	if err := s.notification.Handler.MarkReadHandler(r.Context(), userID, notificationID); err != nil {
		writeNotificationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func writeIngestionDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingestionerrors.ErrEventNotFound):
		writeIngestionError(w, http.StatusNotFound, "event_not_found", err.Error())
	case errors.Is(err, ingestionerrors.ErrInvalidEvent),
		errors.Is(err, ingestionerrors.ErrInvalidEventPayload):
		writeIngestionError(w, http.StatusBadRequest, "invalid_event", err.Error())
	case errors.Is(err, ingestionerrors.ErrUnknownEventKind):
		writeIngestionError(w, http.StatusUnprocessableEntity, "unknown_event_kind", err.Error())
	default:
		writeIngestionError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeDeliveryDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, deliveryerrors.ErrWorkItemNotFound):
		writeDeliveryError(w, http.StatusNotFound, "work_item_not_found", err.Error())
	case errors.Is(err, deliveryerrors.ErrInvalidOutcome):
		writeDeliveryError(w, http.StatusBadRequest, "invalid_outcome", err.Error())
	case errors.Is(err, deliveryerrors.ErrInvalidWorkItem),
		errors.Is(err, deliveryerrors.ErrInvalidLeaseRequest):
		writeDeliveryError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeDeliveryError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeNotificationDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notificationerrors.ErrNotificationNotFound):
		writeNotificationError(w, http.StatusNotFound, "notification_not_found", err.Error())
	case errors.Is(err, notificationerrors.ErrInvalidListRequest):
		writeNotificationError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeNotificationError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeIngestionError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ingestionhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeDeliveryError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, deliveryhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeNotificationError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, notificationhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
