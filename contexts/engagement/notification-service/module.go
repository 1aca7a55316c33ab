package notificationservice

import (
	"log/slog"

	"clipfeed/contexts/engagement/notification-service/adapters/memory"
	"clipfeed/contexts/engagement/notification-service/application/commands"
	"clipfeed/contexts/engagement/notification-service/application/queries"
	"clipfeed/contexts/engagement/notification-service/application/workers"
	"clipfeed/contexts/engagement/notification-service/ports"
	transporthttp "clipfeed/contexts/engagement/notification-service/transport/http"
)

// Module is the composition surface for notification planning and storage.
// Runtime wiring should consume PlanFanout and PersistConsumer; Store is
// exposed for tests/inspection.
type Module struct {
	PlanFanout      commands.PlanFanoutUseCase
	MarkRead        commands.MarkReadUseCase
	List            queries.ListNotificationsQuery
	CountUnread     queries.CountUnreadQuery
	PersistConsumer workers.PersistConsumer
	Handler         transporthttp.Handler
	Store           *memory.Store
}

type Dependencies struct {
	Notifications ports.NotificationRepository
	Social        ports.SocialGraphRepository
	Preferences   ports.PreferenceRepository
	Publisher     ports.EventPublisher
	Subscriber    ports.EventSubscriber
	Queue         ports.WorkQueue
	Clock         ports.Clock
	IDGenerator   ports.IDGenerator
	ServiceName   string
	Logger        *slog.Logger
}

// NewModule wires the fanout planner, read-side queries and the persist
// consumer against explicit ports.
func NewModule(deps Dependencies) Module {
	markRead := commands.MarkReadUseCase{
		Notifications: deps.Notifications,
		Clock:         deps.Clock,
		Logger:        deps.Logger,
	}
	list := queries.ListNotificationsQuery{
		Notifications: deps.Notifications,
	}
	countUnread := queries.CountUnreadQuery{
		Notifications: deps.Notifications,
	}

	return Module{
		PlanFanout: commands.PlanFanoutUseCase{
			Social:      deps.Social,
			Preferences: deps.Preferences,
			Publisher:   deps.Publisher,
			Queue:       deps.Queue,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			ServiceName: deps.ServiceName,
			Logger:      deps.Logger,
		},
		MarkRead:    markRead,
		List:        list,
		CountUnread: countUnread,
		PersistConsumer: workers.PersistConsumer{
			Subscriber:    deps.Subscriber,
			Notifications: deps.Notifications,
			Logger:        deps.Logger,
		},
		Handler: transporthttp.Handler{
			List:        list,
			CountUnread: countUnread,
			MarkRead:    markRead,
		},
	}
}

// NewInMemoryModule backs every repository with the memory store. The bus
// and the delivery queue are cross-context collaborators, so the caller
// supplies them; nil is fine when only the read side is exercised.
func NewInMemoryModule(
	publisher ports.EventPublisher,
	subscriber ports.EventSubscriber,
	queue ports.WorkQueue,
	logger *slog.Logger,
) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Notifications: store,
		Social:        store,
		Preferences:   store,
		Publisher:     publisher,
		Subscriber:    subscriber,
		Queue:         queue,
		Clock:         store,
		IDGenerator:   store,
		ServiceName:   "notification-service",
		Logger:        logger,
	})
	module.Store = store
	return module
}
