package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ha404/autorecord/internal/id"
	"github.com/ha404/autorecord/internal/payload"
	"github.com/ha404/autorecord/pkg/config"
	"github.com/ha404/autorecord/pkg/interaction"
	"github.com/ha404/autorecord/pkg/recorder"
	"github.com/ha404/autorecord/pkg/replay"
)

// ForceRecordMarker forces record mode for a single test. It is only
// recognized as a title prefix: the prefix (plus one following space) is
// stripped exactly once, and occurrences elsewhere in the title are
// literal text.
const ForceRecordMarker = "[rec]"

// StripMarker removes the force-record marker from a title and reports
// whether it was present.
func StripMarker(title string) (string, bool) {
	if !strings.HasPrefix(title, ForceRecordMarker) {
		return title, false
	}
	return strings.TrimPrefix(strings.TrimPrefix(title, ForceRecordMarker), " "), true
}

// Suite owns the in-memory session map for one test file run. Tests within
// a file execute sequentially, so the map has a single owner and no
// locking.
type Suite struct {
	eng      *Engine
	fileKey  string
	sessions map[string]*interaction.Session
	seen     map[string]bool
	flushed  bool
}

// FileKey returns the test file identifier this suite persists under.
func (s *Suite) FileKey() string { return s.fileKey }

// Sessions returns the in-memory session map. The suite remains the owner;
// callers must not mutate it.
func (s *Suite) Sessions() map[string]*interaction.Session { return s.sessions }

// Test is the per-test context handed to the interception layer.
type Test struct {
	suite    *Suite
	id       string
	mode     Mode
	pinnedMs int64
	recorder *recorder.Recorder
	plan     *replay.Plan
}

// ID returns the test identifier with any force-record marker stripped.
func (t *Test) ID() string { return t.id }

// Mode returns the test's operating mode.
func (t *Test) Mode() Mode { return t.mode }

// Config returns the engine configuration governing this test.
func (t *Test) Config() *config.Config { return t.suite.eng.Config() }

// Observe forwards a captured event to the recorder. It is a no-op in
// replay mode.
func (t *Test) Observe(ev recorder.Event) {
	if t.recorder != nil {
		t.recorder.Observe(ev)
	}
}

// Plan returns the stub plan in replay mode, nil in record mode.
func (t *Test) Plan() *replay.Plan { return t.plan }

// BeginTest decides the operating mode for one test and arms the matching
// component. Priority: explicit marker / force-record flag / always-record
// list, then replay when a session exists, then first-run record. The
// simulated clock is pinned for the test's duration: to a fresh instant
// when recording, to the stored instant when replaying.
func (s *Suite) BeginTest(title string) (*Test, error) {
	testID, marked := StripMarker(title)
	s.seen[testID] = true

	cfg := s.eng.Config()
	sess := s.sessions[testID]

	t := &Test{suite: s, id: testID}
	switch {
	case marked || cfg.ForceRecord || cfg.AlwaysRecord(testID):
		t.mode = ModeRecord
	case sess != nil:
		t.mode = ModeReplay
	default:
		t.mode = ModeRecord
	}

	if t.mode == ModeRecord {
		// Millisecond precision matches the persisted wire format, so
		// recording and a later replay pin the exact same instant.
		t.pinnedMs = s.eng.clock.Now().UnixMilli()
		s.eng.clock.Pin(time.UnixMilli(t.pinnedMs))
		t.recorder = recorder.New(cfg, s.eng.log)
	} else {
		s.eng.clock.Pin(sess.Time())
		t.plan = replay.NewPlan(sess, func(fixtureID string) (any, error) {
			return s.eng.store.ReadFixture(s.fileKey, fixtureID)
		})
	}

	s.eng.log.Debug("test started", "test", testID, "mode", t.mode.String())
	return t, nil
}

// EndTest unpins the clock and, in record mode, stages the test's new
// session in memory: responses above the externalization threshold move
// into fixture blobs with fresh ids, fixtures of the superseded session
// are deleted, and the session replaces any previous one wholesale.
// Nothing touches the store blob until End. A clean-mode run never stages
// new recordings.
func (s *Suite) EndTest(t *Test) error {
	defer s.eng.clock.Unpin()

	if t.mode != ModeRecord {
		return nil
	}

	cfg := s.eng.Config()
	if cfg.CleanMocks {
		s.eng.log.Debug("clean run, discarding recording", "test", t.id)
		return nil
	}

	routes := t.recorder.Interactions()
	if len(routes) == 0 {
		// A test that made no recordable requests keeps its previous
		// session, if any.
		return nil
	}

	for _, it := range routes {
		if payload.Size(it.Response) <= cfg.Threshold() {
			continue
		}
		fixtureID := id.Fixture()
		if err := s.eng.store.WriteFixture(s.fileKey, fixtureID, it.Response); err != nil {
			return fmt.Errorf("failed to externalize response for %s %s: %w", it.Method, it.URL, err)
		}
		it.FixtureID = fixtureID
		it.Response = nil
		s.eng.log.Debug("externalized oversized response", "test", t.id, "url", it.URL, "fixture", fixtureID)
	}

	// Collect superseded fixtures first, then delete, so removal never
	// interleaves with iteration over the old session.
	if old := s.sessions[t.id]; old != nil {
		stale := old.FixtureIDs()
		for _, fixtureID := range stale {
			if err := s.eng.store.DeleteFixture(s.fileKey, fixtureID); err != nil {
				return err
			}
		}
	}

	s.sessions[t.id] = &interaction.Session{Timestamp: t.pinnedMs, Routes: routes}
	s.eng.log.Info("recorded session", "test", t.id, "routes", len(routes))
	return nil
}

// End flushes the session map exactly once. When clean mode is enabled it
// first prunes sessions for tests not seen this run, together with the
// fixture blobs they reference.
func (s *Suite) End() error {
	if s.flushed {
		return nil
	}

	if s.eng.Config().CleanMocks {
		if err := s.clean(); err != nil {
			return err
		}
	}

	if err := s.eng.store.Flush(s.fileKey, s.sessions); err != nil {
		return err
	}
	s.flushed = true
	s.eng.log.Info("flushed store", "fileKey", s.fileKey, "sessions", len(s.sessions))
	return nil
}

// clean partitions stored test identifiers into seen and stale, then
// removes the stale sessions and their fixtures in a separate pass.
func (s *Suite) clean() error {
	var stale []string
	for testID := range s.sessions {
		if !s.seen[testID] {
			stale = append(stale, testID)
		}
	}
	sort.Strings(stale)

	var fixtures []string
	for _, testID := range stale {
		fixtures = append(fixtures, s.sessions[testID].FixtureIDs()...)
	}

	for _, testID := range stale {
		delete(s.sessions, testID)
		s.eng.log.Info("pruned stale session", "test", testID)
	}
	for _, fixtureID := range fixtures {
		if err := s.eng.store.DeleteFixture(s.fileKey, fixtureID); err != nil {
			return err
		}
	}
	return nil
}
