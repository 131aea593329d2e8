// Package engine orchestrates per-test record/replay lifecycle.
//
// An Engine is created once per run with an explicit configuration. Each
// test file gets a Suite, which loads that file's store blob before any
// test executes, stages per-test results in memory, and flushes exactly
// once at suite end. Per test, the Suite decides record vs replay mode,
// pins the clock, and arms either a Recorder or a replay Plan for the
// interception layer.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ha404/autorecord/pkg/clock"
	"github.com/ha404/autorecord/pkg/config"
	"github.com/ha404/autorecord/pkg/logging"
	"github.com/ha404/autorecord/pkg/store"
)

// Mode is a test's operating mode.
type Mode int

// Operating modes.
const (
	// ModeRecord captures live traffic to build a new session.
	ModeRecord Mode = iota
	// ModeReplay serves stored interactions instead of contacting real
	// endpoints.
	ModeReplay
)

func (m Mode) String() string {
	switch m {
	case ModeRecord:
		return "record"
	case ModeReplay:
		return "replay"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Engine drives record/replay across one run.
type Engine struct {
	cfg   config.Config
	store *store.FileStore
	clock *clock.Controller
	log   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithBaseClock sets the clock read while unpinned. Tests inject a fake
// here; production uses the system clock.
func WithBaseClock(base clock.Clock) Option {
	return func(e *Engine) { e.clock = clock.NewController(base) }
}

// New creates an Engine over st governed by cfg. The configuration is
// validated (and its header whitelist compiled) up front.
func New(cfg config.Config, st *store.FileStore, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, errors.New("engine requires a store")
	}
	if result := cfg.Validate(); !result.IsValid() {
		return nil, fmt.Errorf("invalid configuration:\n%s", result.Error())
	}

	e := &Engine{
		cfg:   cfg,
		store: st,
		clock: clock.NewController(nil),
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Clock exposes the pinnable clock so time-dependent code under test reads
// a stable wall clock in both modes.
func (e *Engine) Clock() *clock.Controller {
	return e.clock
}

// Config returns the validated engine configuration.
func (e *Engine) Config() *config.Config {
	return &e.cfg
}

// StartSuite loads the persisted sessions for one test file. A corrupt
// blob downgrades to an empty store, forcing every test in the file to
// re-record rather than aborting the run.
func (e *Engine) StartSuite(fileKey string) (*Suite, error) {
	sessions, err := e.store.Load(fileKey)
	if err != nil {
		if !errors.Is(err, store.ErrCorrupt) {
			return nil, err
		}
		e.log.Warn("store blob corrupt, re-recording whole file", "fileKey", fileKey, "error", err)
	}

	e.log.Debug("suite started", "fileKey", fileKey, "sessions", len(sessions))
	return &Suite{
		eng:      e,
		fileKey:  fileKey,
		sessions: sessions,
		seen:     map[string]bool{},
	}, nil
}
