package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "clipfeed/contexts/engagement/notification-service/application"
	"clipfeed/contexts/engagement/notification-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/notification-service/domain/errors"
	"clipfeed/contexts/engagement/notification-service/domain/services"
	"clipfeed/contexts/engagement/notification-service/ports"
)

// Work item kinds as they appear on the delivery queue wire.
const (
	workKindPush  = "push.notification"
	workKindEmail = "email.transactional"
	workKindHook  = "hook.aggregate"
)

type pushWorkPayload struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

type emailWorkPayload struct {
	UserID   string            `json:"user_id"`
	Template string            `json:"template"`
	Subject  string            `json:"subject"`
	Data     map[string]string `json:"data,omitempty"`
}

type hookWorkPayload struct {
	SubjectID string         `json:"subject_id"`
	Counts    map[string]int `json:"counts"`
}

type FanoutResult struct {
	Recipients       []string
	PersistPublished int
	WorkItemIDs      []string
}

// PlanFanoutUseCase turns one business event into per-recipient side
// effects. The persist message and the queued push/email work are written
// independently; a failure on one never rolls back or duplicates the other.
type PlanFanoutUseCase struct {
	Social      ports.SocialGraphRepository
	Preferences ports.PreferenceRepository
	Publisher   ports.EventPublisher
	Queue       ports.WorkQueue
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	ServiceName string
	Logger      *slog.Logger
}

// Execute runs the fanout workflow in this order:
// 1) rule lookup + fail-closed validation (no writes before this passes)
// 2) audience computation + suppression
// 3) one persist message per recipient
// 4) optional push/email work items, preference-gated
// 5) optional aggregated hook item for the subject.
func (u PlanFanoutUseCase) Execute(ctx context.Context, event entities.FanoutEvent) (FanoutResult, error) {
	logger := application.ResolveLogger(u.Logger)

	rule, ok := services.RuleFor(event.Kind)
	if !ok {
		return FanoutResult{}, fmt.Errorf("%w: %q", domainerrors.ErrUnknownNotificationKind, event.Kind)
	}
	if err := validateEvent(event, rule); err != nil {
		return FanoutResult{}, err
	}

	recipients, err := u.computeRecipients(ctx, event, rule)
	if err != nil {
		return FanoutResult{}, err
	}
	if len(recipients) == 0 {
		logger.Info("fanout produced no recipients",
			"event", "fanout_empty_audience",
			"module", "engagement/notification-service",
			"layer", "application",
			"kind", string(event.Kind),
			"actor_id", event.ActorID,
		)
		return FanoutResult{}, nil
	}

	payload := entities.NotificationPayload{
		Kind:          event.Kind,
		ActorIDs:      []string{event.ActorID},
		ActorCount:    1,
		SubjectUserID: event.SubjectUserID,
		VideoID:       event.VideoID,
		CommentID:     event.CommentID,
		Data:          event.Data,
	}

	result := FanoutResult{Recipients: recipients}
	now := u.now()
	var firstErr error

	for _, recipient := range recipients {
		notificationID, err := u.IDGenerator.NewID(ctx)
		if err != nil {
			return result, err
		}

		if err := u.publishPersist(ctx, notificationID, recipient, payload, now); err != nil {
			logger.Error("persist message publish failed",
				"event", "fanout_persist_publish_failed",
				"module", "engagement/notification-service",
				"layer", "application",
				"kind", string(event.Kind),
				"user_id", recipient,
				"error", err.Error(),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.PersistPublished++

		itemIDs, err := u.enqueueChannelWork(ctx, recipient, payload, rule, now)
		if err != nil {
			// The in-app record is already on its way; channel delivery
			// failing to enqueue must not undo or block it.
			logger.Error("channel work enqueue failed",
				"event", "fanout_enqueue_failed",
				"module", "engagement/notification-service",
				"layer", "application",
				"kind", string(event.Kind),
				"user_id", recipient,
				"error", err.Error(),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.WorkItemIDs = append(result.WorkItemIDs, itemIDs...)
	}

	if rule.Hook && event.SubjectUserID != "" {
		hookBody, _ := json.Marshal(hookWorkPayload{
			SubjectID: event.SubjectUserID,
			Counts:    map[string]int{string(event.Kind): len(recipients)},
		})
		itemID, err := u.Queue.Enqueue(ctx, workKindHook, hookBody, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			result.WorkItemIDs = append(result.WorkItemIDs, itemID)
		}
	}

	logger.Info("fanout planned",
		"event", "fanout_planned",
		"module", "engagement/notification-service",
		"layer", "application",
		"kind", string(event.Kind),
		"actor_id", event.ActorID,
		"recipient_count", len(recipients),
		"persist_published", result.PersistPublished,
		"work_item_count", len(result.WorkItemIDs),
	)
	return result, firstErr
}

func validateEvent(event entities.FanoutEvent, rule services.FanoutRule) error {
	if strings.TrimSpace(event.ActorID) == "" {
		return fmt.Errorf("%w: actor_id is required", domainerrors.ErrInvalidFanoutEvent)
	}
	if rule.RequiresSubject && strings.TrimSpace(event.SubjectUserID) == "" {
		return fmt.Errorf("%w: subject_user_id is required for %s", domainerrors.ErrInvalidFanoutEvent, rule.Kind)
	}
	if rule.RequiresVideo && strings.TrimSpace(event.VideoID) == "" {
		return fmt.Errorf("%w: video_id is required for %s", domainerrors.ErrInvalidFanoutEvent, rule.Kind)
	}
	if rule.RequiresComment && strings.TrimSpace(event.CommentID) == "" {
		return fmt.Errorf("%w: comment_id is required for %s", domainerrors.ErrInvalidFanoutEvent, rule.Kind)
	}
	if rule.Audience == services.AudienceMentioned && len(event.MentionedUserIDs) == 0 {
		return fmt.Errorf("%w: mentioned_user_ids are required for %s", domainerrors.ErrInvalidFanoutEvent, rule.Kind)
	}
	return nil
}

func (u PlanFanoutUseCase) computeRecipients(
	ctx context.Context,
	event entities.FanoutEvent,
	rule services.FanoutRule,
) ([]string, error) {
	var audience []string
	switch rule.Audience {
	case services.AudienceSubjectUser:
		audience = []string{event.SubjectUserID}
	case services.AudienceFollowers:
		followers, err := u.Social.ListFollowerIDs(ctx, event.ActorID)
		if err != nil {
			return nil, err
		}
		audience = followers
	case services.AudienceMentioned:
		audience = event.MentionedUserIDs
	default:
		return nil, fmt.Errorf("%w: rule for %s has no audience", domainerrors.ErrInvalidFanoutEvent, rule.Kind)
	}

	mentioned := make(map[string]struct{}, len(event.MentionedUserIDs))
	if rule.SuppressMentioned {
		for _, id := range event.MentionedUserIDs {
			mentioned[id] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(audience))
	filtered := make([]string, 0, len(audience))
	for _, id := range audience {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if id == event.ActorID && !rule.AllowActor {
			continue
		}
		if _, wasMentioned := mentioned[id]; wasMentioned {
			continue
		}
		filtered = append(filtered, id)
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	return u.Social.FilterSuppressedRecipients(ctx, event.ActorID, filtered)
}

func (u PlanFanoutUseCase) publishPersist(
	ctx context.Context,
	notificationID string,
	recipient string,
	payload entities.NotificationPayload,
	now time.Time,
) error {
	body, err := json.Marshal(ports.PersistNotificationMessage{
		NotificationID: notificationID,
		UserID:         recipient,
		Kind:           string(payload.Kind),
		ActorIDs:       payload.ActorIDs,
		ActorCount:     payload.ActorCount,
		SubjectUserID:  payload.SubjectUserID,
		VideoID:        payload.VideoID,
		CommentID:      payload.CommentID,
		Data:           payload.Data,
		CreatedAt:      now,
	})
	if err != nil {
		return err
	}

	messageID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return err
	}
	return u.Publisher.Publish(ctx, ports.TopicPersistNotification, ports.EventEnvelope{
		EventID:       messageID,
		EventType:     "notification.persist",
		SourceService: u.ServiceName,
		OccurredAtUTC: now,
		EntityType:    "notification",
		EntityID:      notificationID,
		Data:          body,
	})
}

func (u PlanFanoutUseCase) enqueueChannelWork(
	ctx context.Context,
	recipient string,
	payload entities.NotificationPayload,
	rule services.FanoutRule,
	now time.Time,
) ([]string, error) {
	var itemIDs []string

	if rule.Push {
		allowed, err := u.Preferences.AllowsPush(ctx, recipient, payload.Kind)
		if err != nil {
			return itemIDs, err
		}
		if allowed {
			body, err := json.Marshal(pushWorkPayload{
				UserID: recipient,
				Title:  rule.PushTitle,
				Body:   pushBody(payload),
				Data:   payload.Data,
			})
			if err != nil {
				return itemIDs, err
			}
			itemID, err := u.Queue.Enqueue(ctx, workKindPush, body, now)
			if err != nil {
				return itemIDs, err
			}
			itemIDs = append(itemIDs, itemID)
		}
	}

	if rule.Email {
		allowed, err := u.Preferences.AllowsEmail(ctx, recipient, payload.Kind)
		if err != nil {
			return itemIDs, err
		}
		if allowed {
			body, err := json.Marshal(emailWorkPayload{
				UserID:   recipient,
				Template: rule.EmailTemplate,
				Subject:  rule.PushTitle,
				Data:     payload.Data,
			})
			if err != nil {
				return itemIDs, err
			}
			itemID, err := u.Queue.Enqueue(ctx, workKindEmail, body, now)
			if err != nil {
				return itemIDs, err
			}
			itemIDs = append(itemIDs, itemID)
		}
	}

	return itemIDs, nil
}

func pushBody(payload entities.NotificationPayload) string {
	if title, ok := payload.Data["title"]; ok && title != "" {
		return title
	}
	return string(payload.Kind)
}

func (u PlanFanoutUseCase) now() time.Time {
	if u.Clock != nil {
		return u.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
