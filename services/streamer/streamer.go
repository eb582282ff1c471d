package streamer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
	"github.com/ramiqadoumi/quote-stream/internal/kafka"
	"github.com/ramiqadoumi/quote-stream/internal/postgres"
	"github.com/ramiqadoumi/quote-stream/internal/quotes"
	redisstore "github.com/ramiqadoumi/quote-stream/internal/redis"
	"github.com/ramiqadoumi/quote-stream/internal/workflow"
	"github.com/ramiqadoumi/quote-stream/pkg/telemetry"
)

// SignalStopWorkflow is the signal-name token returned in stop acknowledgements.
const SignalStopWorkflow = "stop_workflow"

// StopAck acknowledges a delivered stop signal.
type StopAck struct {
	Status     string `json:"status"`
	WorkflowID string `json:"workflow_id"`
	Signal     string `json:"signal"`
}

// Service owns the workflow registry and all per-workflow bookkeeping.
// Each opened stream starts its own workflow through StartWorkflow; stop
// requests arrive independently through StopWorkflow.
type Service struct {
	registry *workflow.Registry
	provider quotes.Provider
	store    redisstore.SnapshotStore    // nil = disabled
	repo     postgres.WorkflowRepository // nil = disabled
	producer kafka.Producer              // nil = disabled
	logger   *slog.Logger

	runnerOpts []workflow.Option
}

// Option configures a Service.
type Option func(*Service)

func WithSnapshotStore(s redisstore.SnapshotStore) Option {
	return func(svc *Service) { svc.store = s }
}
func WithRepository(r postgres.WorkflowRepository) Option {
	return func(svc *Service) { svc.repo = r }
}
func WithProducer(p kafka.Producer) Option {
	return func(svc *Service) { svc.producer = p }
}

// WithRunnerOptions forwards options to every runner the service starts.
func WithRunnerOptions(opts ...workflow.Option) Option {
	return func(svc *Service) { svc.runnerOpts = opts }
}

// NewService constructs a Service around a quote provider.
func NewService(provider quotes.Provider, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		registry: workflow.NewRegistry(),
		provider: provider,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Registry exposes the live workflow registry (used by the janitor).
func (s *Service) Registry() *workflow.Registry { return s.registry }

// StartWorkflow creates a fresh workflow instance, registers it, and launches
// its run loop on runCtx. runCtx must outlive the HTTP request that opened
// the stream: a consumer disconnect is not a cancellation, only service
// shutdown or an explicit stop ends the workflow.
func (s *Service) StartWorkflow(runCtx context.Context) *workflow.Runner {
	id := uuid.New().String()

	opts := make([]workflow.Option, 0, len(s.runnerOpts)+2)
	opts = append(opts, workflow.WithLogger(s.logger))
	if s.store != nil {
		opts = append(opts, workflow.WithCheckpoints(s.store))
	}
	opts = append(opts, s.runnerOpts...)

	r := workflow.NewRunner(id, s.provider, opts...)
	s.registry.Register(r)

	if s.repo != nil {
		if err := s.repo.Create(runCtx, id, time.Now().UTC()); err != nil {
			// Non-fatal: the audit row is best-effort, the workflow still runs.
			s.logger.Error("failed to record workflow start",
				slog.String("workflow_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	go func() {
		result, err := r.Run(runCtx)
		s.finish(result, err)
	}()

	return r
}

// StopWorkflow forwards a stop request to the workflow with the given ID.
// Returns WorkflowNotFoundError when the ID is unknown to this runtime.
func (s *Service) StopWorkflow(id string) (*StopAck, error) {
	r, err := s.registry.Get(id)
	if err != nil {
		telemetry.StopSignalsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	r.RequestStop()
	telemetry.StopSignalsTotal.WithLabelValues("sent").Inc()
	s.logger.Info("stop signal sent", slog.String("workflow_id", id))

	return &StopAck{
		Status:     "signal sent",
		WorkflowID: id,
		Signal:     SignalStopWorkflow,
	}, nil
}

// LookupSnapshot returns the current state of a workflow: live registry
// first, then the Redis checkpoint for instances this process no longer
// tracks.
func (s *Service) LookupSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	if r, err := s.registry.Get(id); err == nil {
		snap := r.Snapshot()
		return &snap, nil
	}

	if s.store != nil {
		snap, err := s.store.GetSnapshot(ctx, id)
		if err == nil {
			return snap, nil
		}
		var notFound *domain.WorkflowNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return nil, &domain.WorkflowNotFoundError{WorkflowID: id}
}

// finish records a terminated workflow: Redis result, Postgres audit row,
// and the Kafka lifecycle event are all best-effort.
func (s *Service) finish(result *domain.Result, runErr error) {
	if result == nil {
		return
	}
	log := s.logger.With(
		slog.String("workflow_id", result.WorkflowID),
		slog.String("final_status", string(result.FinalStatus)),
	)
	if runErr != nil {
		log.Error("workflow failed", slog.String("error", runErr.Error()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.SaveResult(ctx, result); err != nil {
			log.Error("failed to save result", slog.String("error", err.Error()))
		}
	}
	if s.repo != nil {
		if err := s.repo.Finish(ctx, result); err != nil {
			log.Error("failed to record workflow finish", slog.String("error", err.Error()))
		}
	}
	if s.producer != nil {
		if err := s.producer.PublishResult(ctx, result); err != nil {
			log.Error("failed to publish lifecycle event", slog.String("error", err.Error()))
		}
	}
}
