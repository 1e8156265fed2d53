package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ytreport/internal/config"
	"ytreport/internal/logging"
)

// Store persists runs for the manager. Load and UpdatePending report unknown
// runs with an error wrapping services.ErrNotFound.
type Store interface {
	Checkpointer
	Load(ctx context.Context, runID string) (*RunState, error)
	CreateRun(ctx context.Context, state *RunState) error
	// ClaimNext moves the oldest pending run to running and returns it, or
	// nil when nothing is pending.
	ClaimNext(ctx context.Context) (*RunState, error)
	// ClaimRun moves the named run from pending to running. The flag is false
	// when the run was not pending.
	ClaimRun(ctx context.Context, runID string) (*RunState, bool, error)
	// UpdatePending applies fn to a run that is still pending. The flag is
	// false when the run had already been claimed or finished.
	UpdatePending(ctx context.Context, runID string, fn func(*RunState)) (bool, error)
	ReclaimStaleRuns(ctx context.Context, cutoff time.Time) (int64, error)
	UpdateHeartbeat(ctx context.Context, runID string) error
	ListRuns(ctx context.Context, statuses ...RunStatus) ([]*RunState, error)
	RunStats(ctx context.Context) (map[RunStatus]int, error)
}

// Manager coordinates background execution of submitted runs.
type Manager struct {
	cfg                *config.Config
	store              Store
	exec               *Executor
	logger             *slog.Logger
	clock              Clock
	workers            int
	pollInterval       time.Duration
	errorRetryInterval time.Duration

	heartbeat *HeartbeatMonitor
	wake      chan struct{}

	mu              sync.RWMutex
	running         bool
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	active          map[string]context.CancelCauseFunc
	cancelRequested map[string]struct{}
	lastErr         error
	lastRun         *RunState
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithManagerClock replaces the wall clock used for run timestamps and
// heartbeat cutoffs.
func WithManagerClock(clock Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store Store, exec *Executor, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	base := logger
	logger = logging.NewComponentLogger(base, "workflow-manager")

	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	m := &Manager{
		cfg:                cfg,
		store:              store,
		exec:               exec,
		logger:             logger,
		clock:              SystemClock{},
		workers:            workers,
		pollInterval:       time.Duration(cfg.Workflow.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		wake:               make(chan struct{}, 1),
		active:             make(map[string]context.CancelCauseFunc),
		cancelRequested:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.heartbeat = NewHeartbeatMonitor(
		store,
		base,
		m.clock,
		time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
		time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
	)
	return m
}

// Executor returns the executor that drives claimed runs.
func (m *Manager) Executor() *Executor {
	return m.exec
}

func (m *Manager) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
