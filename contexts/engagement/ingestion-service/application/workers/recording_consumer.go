package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	application "clipfeed/contexts/engagement/ingestion-service/application"
	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	domainerrors "clipfeed/contexts/engagement/ingestion-service/domain/errors"
	"clipfeed/contexts/engagement/ingestion-service/ports"
)

const videoPublishedFanoutKind = "video.published"

type recordingPayload struct {
	VideoID      string `json:"video_id"`
	CreatorID    string `json:"creator_id"`
	RecordingURL string `json:"recording_url"`
	Title        string `json:"title"`
}

// RecordingConsumer handles meeting.recording.ready events from the video
// platform: mark the video available, then notify the creator's followers.
type RecordingConsumer struct {
	Catalog ports.VideoCatalog
	Fanout  ports.FanoutPlanner
	Clock   ports.Clock
	Logger  *slog.Logger
}

func (c RecordingConsumer) Handle(ctx context.Context, event entities.ExternalEvent) error {
	logger := application.ResolveLogger(c.Logger)

	var payload recordingPayload
	if err := json.Unmarshal(event.RawPayload, &payload); err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrInvalidEventPayload, err)
	}
	if payload.VideoID == "" || payload.CreatorID == "" || payload.RecordingURL == "" {
		return fmt.Errorf("%w: video_id, creator_id and recording_url are required",
			domainerrors.ErrInvalidEventPayload)
	}

	updated, err := c.Catalog.MarkRecordingAvailable(ctx, payload.VideoID, payload.RecordingURL, c.now())
	if err != nil {
		return err
	}
	if !updated {
		logger.Info("recording already published",
			"event", "ingest_recording_replayed",
			"module", "engagement/ingestion-service",
			"layer", "worker",
			"event_id", event.EventID,
			"video_id", payload.VideoID,
		)
		return nil
	}

	return c.Fanout.Plan(ctx, ports.FanoutRequest{
		Kind:    videoPublishedFanoutKind,
		ActorID: payload.CreatorID,
		VideoID: payload.VideoID,
		Data: map[string]string{
			"title": payload.Title,
		},
	})
}

func (c RecordingConsumer) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
