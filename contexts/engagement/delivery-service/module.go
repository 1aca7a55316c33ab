package deliveryservice

import (
	"log/slog"
	"time"

	"clipfeed/contexts/engagement/delivery-service/adapters/memory"
	outboundadapter "clipfeed/contexts/engagement/delivery-service/adapters/outbound"
	"clipfeed/contexts/engagement/delivery-service/application/workers"
	"clipfeed/contexts/engagement/delivery-service/domain/entities"
	"clipfeed/contexts/engagement/delivery-service/ports"
	transporthttp "clipfeed/contexts/engagement/delivery-service/transport/http"
)

// Module is the composition surface for outbound delivery within clipfeed.
// Runtime wiring should consume Queue and Worker; Store is exposed for
// tests/inspection.
type Module struct {
	Queue   ports.WorkQueue
	Worker  workers.Worker
	Handler transporthttp.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Queue          ports.WorkQueue
	Push           ports.PushClient
	Email          ports.EmailClient
	Hooks          ports.HookClient
	Clock          ports.Clock
	Owner          string
	BatchSize      int
	MaxRetry       int
	Concurrency    int
	LeaseTTL       time.Duration
	HandlerTimeout time.Duration
	RetryDelay     time.Duration
	IdleSleep      time.Duration
	Logger         *slog.Logger
}

// NewModule wires the delivery dispatcher and worker against explicit ports.
// Only kinds with a configured client get a handler, so an unregistered
// kind fails fast instead of looping through retries.
func NewModule(deps Dependencies) (Module, error) {
	handlers := make(map[entities.WorkItemKind]workers.Handler)
	if deps.Push != nil {
		handlers[entities.WorkItemKindPush] = workers.PushSender{
			Client: deps.Push,
			Logger: deps.Logger,
		}
	}
	if deps.Email != nil {
		handlers[entities.WorkItemKindEmail] = workers.EmailSender{
			Client: deps.Email,
			Logger: deps.Logger,
		}
	}
	if deps.Hooks != nil {
		handlers[entities.WorkItemKindHook] = workers.HookDigest{
			Client: deps.Hooks,
			Logger: deps.Logger,
		}
	}

	dispatcher, err := workers.NewDispatcher(handlers)
	if err != nil {
		return Module{}, err
	}

	worker := workers.Worker{
		Queue:          deps.Queue,
		Dispatcher:     dispatcher,
		Clock:          deps.Clock,
		Owner:          deps.Owner,
		BatchSize:      deps.BatchSize,
		MaxRetry:       deps.MaxRetry,
		Concurrency:    deps.Concurrency,
		LeaseTTL:       deps.LeaseTTL,
		HandlerTimeout: deps.HandlerTimeout,
		RetryDelay:     deps.RetryDelay,
		IdleSleep:      deps.IdleSleep,
		Logger:         deps.Logger,
	}

	return Module{
		Queue:  deps.Queue,
		Worker: worker,
		Handler: transporthttp.Handler{
			Queue:    deps.Queue,
			MaxRetry: worker.MaxRetry,
		},
	}, nil
}

// NewInMemoryModule backs the queue with the memory store and the delivery
// channels with the log stand-ins, tuned with local-run defaults.
func NewInMemoryModule(logger *slog.Logger) (Module, error) {
	store := memory.NewStore()
	module, err := NewModule(Dependencies{
		Queue:          store,
		Push:           outboundadapter.LogPushClient{Logger: logger},
		Email:          outboundadapter.LogEmailClient{Logger: logger},
		Hooks:          outboundadapter.DisabledHookClient{Logger: logger},
		Clock:          store,
		Owner:          "in-memory-worker",
		BatchSize:      10,
		MaxRetry:       3,
		Concurrency:    2,
		LeaseTTL:       5 * time.Minute,
		HandlerTimeout: 30 * time.Second,
		RetryDelay:     30 * time.Second,
		Logger:         logger,
	})
	if err != nil {
		return Module{}, err
	}
	module.Store = store
	return module, nil
}
