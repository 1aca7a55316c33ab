package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	deliveryservice "clipfeed/contexts/engagement/delivery-service"
	outboundadapter "clipfeed/contexts/engagement/delivery-service/adapters/outbound"
	deliverypostgres "clipfeed/contexts/engagement/delivery-service/adapters/postgres"
	deliveryentities "clipfeed/contexts/engagement/delivery-service/domain/entities"
	deliveryports "clipfeed/contexts/engagement/delivery-service/ports"
	ingestionservice "clipfeed/contexts/engagement/ingestion-service"
	ingestionpostgres "clipfeed/contexts/engagement/ingestion-service/adapters/postgres"
	ingestionports "clipfeed/contexts/engagement/ingestion-service/ports"
	notificationservice "clipfeed/contexts/engagement/notification-service"
	notificationpostgres "clipfeed/contexts/engagement/notification-service/adapters/postgres"
	notificationentities "clipfeed/contexts/engagement/notification-service/domain/entities"
	notificationports "clipfeed/contexts/engagement/notification-service/ports"
	"clipfeed/internal/platform/config"
	"clipfeed/internal/platform/db"
	"clipfeed/internal/platform/httpserver"
	"clipfeed/internal/platform/messaging"
	"clipfeed/internal/shared/events"
)

// Package bootstrap is the composition root.
// Context modules never import each other; every cross-context edge is a
// small bridge defined here.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres *db.Postgres

	ingestWorker    ingestionservice.Module
	deliveryWorker  deliveryservice.Module
	persistConsumer notificationservice.Module

	pollInterval time.Duration

	enableIngest   bool
	enableDelivery bool
	enablePersist  bool

	logger *slog.Logger
}

type wiring struct {
	postgres     *db.Postgres
	bus          *messaging.Kafka
	ingestion    ingestionservice.Module
	delivery     deliveryservice.Module
	notification notificationservice.Module
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	wired, err := buildWiring(cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(
		wired.ingestion,
		wired.delivery,
		wired.notification,
		logger,
		normalizeAddr(cfg.HTTPPort),
	)
	return &APIApp{
		server:   server,
		postgres: wired.postgres,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	wired, err := buildWiring(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &WorkerApp{
		postgres:        wired.postgres,
		ingestWorker:    wired.ingestion,
		deliveryWorker:  wired.delivery,
		persistConsumer: wired.notification,
		pollInterval:    cfg.WorkerPollInterval,
		enableIngest:    cfg.EnableIngestWorker,
		enableDelivery:  cfg.EnableDeliveryWorker,
		enablePersist:   cfg.EnablePersistConsumer,
		logger:          logger,
	}, nil
}

func buildWiring(cfg config.Config, logger *slog.Logger) (wiring, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return wiring{}, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return wiring{}, err
	}
	if err := pg.Migrate(
		ingestionpostgres.Migrate,
		deliverypostgres.Migrate,
		notificationpostgres.Migrate,
	); err != nil {
		_ = pg.Close()
		return wiring{}, err
	}

	bus, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		_ = pg.Close()
		return wiring{}, err
	}

	deliveryRepo := deliverypostgres.NewRepository(pg.DB, logger)

	// A handler must exist for hook.aggregate even without an endpoint,
	// otherwise planned hook items would sit Pending forever.
	var hooks deliveryports.HookClient = outboundadapter.DisabledHookClient{Logger: logger}
	if cfg.HookEndpointURL != "" {
		hooks = outboundadapter.NewWebhookHookClient(cfg.HookEndpointURL, logger)
	} else {
		logger.Warn("hook endpoint not configured, hook.aggregate items settle as ignored",
			"event", "bootstrap_hook_client_disabled",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}

	deliveryDeps := deliveryservice.Dependencies{
		Queue:          deliveryRepo,
		Push:           outboundadapter.LogPushClient{Logger: logger},
		Email:          outboundadapter.LogEmailClient{Logger: logger},
		Hooks:          hooks,
		Clock:          deliverypostgres.SystemClock{},
		Owner:          deliverypostgres.NewOwnerToken("worker"),
		BatchSize:      cfg.DeliveryBatchSize,
		MaxRetry:       cfg.DeliveryMaxRetry,
		Concurrency:    cfg.DeliveryConcurrency,
		LeaseTTL:       cfg.DeliveryLeaseTTL,
		HandlerTimeout: cfg.HandlerTimeout,
		RetryDelay:     cfg.DeliveryRetryDelay,
		IdleSleep:      cfg.WorkerPollInterval,
		Logger:         logger,
	}
	deliveryModule, err := deliveryservice.NewModule(deliveryDeps)
	if err != nil {
		_ = pg.Close()
		return wiring{}, err
	}

	notificationRepo := notificationpostgres.NewRepository(pg.DB, logger)
	notificationModule := notificationservice.NewModule(notificationservice.Dependencies{
		Notifications: notificationRepo,
		Social:        notificationRepo,
		Preferences:   notificationRepo,
		Publisher:     notificationBus{bus: bus},
		Subscriber:    notificationBus{bus: bus},
		Queue:         deliveryQueueBridge{queue: deliveryRepo},
		Clock:         notificationpostgres.SystemClock{},
		IDGenerator:   notificationpostgres.UUIDGenerator{},
		ServiceName:   cfg.ServiceName,
		Logger:        logger,
	})

	ingestionRepo := ingestionpostgres.NewRepository(pg.DB, logger)
	ingestionModule, err := ingestionservice.NewModule(ingestionservice.Dependencies{
		Events:    ingestionRepo,
		Ledger:    ingestionRepo,
		Catalog:   ingestionRepo,
		Fanout:    fanoutBridge{notification: notificationModule},
		Clock:     ingestionpostgres.SystemClock{},
		BatchSize: cfg.IngestBatchSize,
		Logger:    logger,
	})
	if err != nil {
		_ = pg.Close()
		return wiring{}, err
	}

	return wiring{
		postgres:     pg,
		bus:          bus,
		ingestion:    ingestionModule,
		delivery:     deliveryModule,
		notification: notificationModule,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if w.enablePersist {
		if err := w.persistConsumer.PersistConsumer.Start(ctx); err != nil {
			return err
		}
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"ingest_enabled", w.enableIngest,
		"delivery_enabled", w.enableDelivery,
		"persist_enabled", w.enablePersist,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	if w.enableDelivery {
		group.Go(func() error {
			return w.deliveryWorker.Worker.Run(groupCtx)
		})
	}
	if w.enableIngest {
		group.Go(func() error {
			return w.runIngestLoop(groupCtx)
		})
	}
	return group.Wait()
}

func (w *WorkerApp) runIngestLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.ingestWorker.Worker.RunOnce(ctx); err != nil {
			w.logger.Error("ingest cycle failed",
				"event", "bootstrap_ingest_cycle_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

// fanoutBridge adapts the ingestion context's planner port onto the
// notification module without the contexts importing each other.
type fanoutBridge struct {
	notification notificationservice.Module
}

func (b fanoutBridge) Plan(ctx context.Context, req ingestionports.FanoutRequest) error {
	_, err := b.notification.PlanFanout.Execute(ctx, notificationentities.FanoutEvent{
		Kind:             notificationentities.NotificationKind(req.Kind),
		ActorID:          req.ActorID,
		SubjectUserID:    req.SubjectUserID,
		VideoID:          req.VideoID,
		MentionedUserIDs: req.MentionedUserIDs,
		Data:             req.Data,
	})
	return err
}

// deliveryQueueBridge narrows the delivery queue to the string-kind enqueue
// surface the notification context sees.
type deliveryQueueBridge struct {
	queue *deliverypostgres.Repository
}

func (b deliveryQueueBridge) Enqueue(
	ctx context.Context,
	kind string,
	payload []byte,
	notBefore time.Time,
) (string, error) {
	return b.queue.Enqueue(ctx, deliveryentities.WorkItemKind(kind), payload, notBefore)
}

// notificationBus translates between the notification context's envelope
// type and the shared platform envelope.
type notificationBus struct {
	bus *messaging.Kafka
}

func (b notificationBus) Publish(
	ctx context.Context,
	topic string,
	event notificationports.EventEnvelope,
) error {
	return b.bus.Publish(ctx, topic, events.Envelope{
		EventID:       event.EventID,
		EventType:     event.EventType,
		SourceService: event.SourceService,
		OccurredAtUTC: event.OccurredAtUTC,
		EntityType:    event.EntityType,
		EntityID:      event.EntityID,
		Data:          event.Data,
	})
}

func (b notificationBus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, notificationports.EventEnvelope) error,
) error {
	return b.bus.Subscribe(ctx, topic, consumerGroup, func(ctx context.Context, event events.Envelope) error {
		return handler(ctx, notificationports.EventEnvelope{
			EventID:       event.EventID,
			EventType:     event.EventType,
			SourceService: event.SourceService,
			OccurredAtUTC: event.OccurredAtUTC,
			EntityType:    event.EntityType,
			EntityID:      event.EntityID,
			Data:          event.Data,
		})
	})
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
