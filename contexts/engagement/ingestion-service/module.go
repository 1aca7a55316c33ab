package ingestionservice

import (
	"log/slog"

	"clipfeed/contexts/engagement/ingestion-service/adapters/memory"
	"clipfeed/contexts/engagement/ingestion-service/application/commands"
	"clipfeed/contexts/engagement/ingestion-service/application/workers"
	"clipfeed/contexts/engagement/ingestion-service/domain/entities"
	"clipfeed/contexts/engagement/ingestion-service/ports"
	transporthttp "clipfeed/contexts/engagement/ingestion-service/transport/http"
)

// Module is the composition surface for inbound event ingestion.
// Runtime wiring should consume RecordEvent and Worker; Store is exposed
// for tests/inspection.
type Module struct {
	RecordEvent commands.RecordEventUseCase
	Worker      workers.IngestWorker
	Handler     transporthttp.Handler
	Events      ports.EventStore
	Store       *memory.Store
}

type Dependencies struct {
	Events    ports.EventStore
	Ledger    ports.TransactionLedger
	Catalog   ports.VideoCatalog
	Fanout    ports.FanoutPlanner
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// NewModule wires the ingestion use case, dispatcher and worker against
// explicit ports.
func NewModule(deps Dependencies) (Module, error) {
	dispatcher, err := workers.NewDispatcher(map[entities.ExternalEventKind]workers.EventHandler{
		entities.ExternalEventKindTransactionSucceeded: workers.TransactionConsumer{
			Ledger: deps.Ledger,
			Fanout: deps.Fanout,
			Clock:  deps.Clock,
			Logger: deps.Logger,
		},
		entities.ExternalEventKindRecordingReady: workers.RecordingConsumer{
			Catalog: deps.Catalog,
			Fanout:  deps.Fanout,
			Clock:   deps.Clock,
			Logger:  deps.Logger,
		},
	})
	if err != nil {
		return Module{}, err
	}

	recordEvent := commands.RecordEventUseCase{
		Events: deps.Events,
		Logger: deps.Logger,
	}

	return Module{
		RecordEvent: recordEvent,
		Worker: workers.IngestWorker{
			Events:     deps.Events,
			Dispatcher: dispatcher,
			BatchSize:  deps.BatchSize,
			Logger:     deps.Logger,
		},
		Handler: transporthttp.Handler{
			RecordEvent: recordEvent,
			Events:      deps.Events,
		},
		Events: deps.Events,
	}, nil
}

// NewInMemoryModule backs every port with the memory store. The fanout
// planner lives in another context, so the caller supplies it.
func NewInMemoryModule(fanout ports.FanoutPlanner, logger *slog.Logger) (Module, error) {
	store := memory.NewStore()
	module, err := NewModule(Dependencies{
		Events:    store,
		Ledger:    store,
		Catalog:   store,
		Fanout:    fanout,
		Clock:     store,
		BatchSize: 10,
		Logger:    logger,
	})
	if err != nil {
		return Module{}, err
	}
	module.Store = store
	return module, nil
}
