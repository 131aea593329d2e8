package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha404/autorecord/pkg/config"
	"github.com/ha404/autorecord/pkg/interaction"
	"github.com/ha404/autorecord/pkg/recorder"
	"github.com/ha404/autorecord/pkg/store"
)

const fileKey = "users.spec"

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func newEngine(t *testing.T, mutate func(*config.Config)) (*Engine, *store.FileStore) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	st := store.New(t.TempDir(), nil)
	eng, err := New(cfg, st)
	require.NoError(t, err)
	return eng, st
}

func userEvent() recorder.Event {
	return recorder.Event{
		URL:          "https://api.example.com/users",
		Method:       "GET",
		Status:       200,
		ResponseBody: []byte(`[{"id":1}]`),
	}
}

// runRecordedTest records one test with the given events and flushes.
func runRecordedTest(t *testing.T, eng *Engine, title string, events ...recorder.Event) {
	t.Helper()
	suite, err := eng.StartSuite(fileKey)
	require.NoError(t, err)
	tc, err := suite.BeginTest(title)
	require.NoError(t, err)
	require.Equal(t, ModeRecord, tc.Mode())
	for _, ev := range events {
		tc.Observe(ev)
	}
	require.NoError(t, suite.EndTest(tc))
	require.NoError(t, suite.End())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.WhitelistHeaders = []string{"[bad"}
	_, err := New(cfg, store.New(t.TempDir(), nil))
	assert.Error(t, err)

	_, err = New(config.Default(), nil)
	assert.Error(t, err)
}

func TestStripMarker(t *testing.T) {
	tests := []struct {
		title  string
		want   string
		marked bool
	}{
		{"[rec] fetches users", "fetches users", true},
		{"[rec]fetches users", "fetches users", true},
		{"fetches users", "fetches users", false},
		{"fetches [rec] users", "fetches [rec] users", false},
		{"fetches users [rec]", "fetches users [rec]", false},
	}
	for _, tt := range tests {
		got, marked := StripMarker(tt.title)
		assert.Equal(t, tt.want, got, tt.title)
		assert.Equal(t, tt.marked, marked, tt.title)
	}
}

func TestModeDecision(t *testing.T) {
	t.Run("first run records", func(t *testing.T) {
		eng, _ := newEngine(t, nil)
		suite, err := eng.StartSuite(fileKey)
		require.NoError(t, err)
		tc, err := suite.BeginTest("fetches users")
		require.NoError(t, err)
		assert.Equal(t, ModeRecord, tc.Mode())
		require.NoError(t, suite.EndTest(tc))
	})

	t.Run("existing session replays", func(t *testing.T) {
		eng, _ := newEngine(t, nil)
		runRecordedTest(t, eng, "fetches users", userEvent())

		suite, err := eng.StartSuite(fileKey)
		require.NoError(t, err)
		tc, err := suite.BeginTest("fetches users")
		require.NoError(t, err)
		assert.Equal(t, ModeReplay, tc.Mode())
		assert.NotNil(t, tc.Plan())
		require.NoError(t, suite.EndTest(tc))
	})

	t.Run("marker forces record", func(t *testing.T) {
		eng, _ := newEngine(t, nil)
		runRecordedTest(t, eng, "fetches users", userEvent())

		suite, err := eng.StartSuite(fileKey)
		require.NoError(t, err)
		tc, err := suite.BeginTest("[rec] fetches users")
		require.NoError(t, err)
		assert.Equal(t, ModeRecord, tc.Mode())
		assert.Equal(t, "fetches users", tc.ID())
		require.NoError(t, suite.EndTest(tc))
	})

	t.Run("forceRecord flag forces record", func(t *testing.T) {
		eng, _ := newEngine(t, func(c *config.Config) { c.ForceRecord = true })
		runRecordedTest(t, eng, "fetches users", userEvent())

		suite, err := eng.StartSuite(fileKey)
		require.NoError(t, err)
		tc, err := suite.BeginTest("fetches users")
		require.NoError(t, err)
		assert.Equal(t, ModeRecord, tc.Mode())
		require.NoError(t, suite.EndTest(tc))
	})

	t.Run("recordTests list forces record", func(t *testing.T) {
		eng, _ := newEngine(t, func(c *config.Config) { c.RecordTests = []string{"fetches users"} })
		runRecordedTest(t, eng, "fetches users", userEvent())

		suite, err := eng.StartSuite(fileKey)
		require.NoError(t, err)
		tc, err := suite.BeginTest("fetches users")
		require.NoError(t, err)
		assert.Equal(t, ModeRecord, tc.Mode())
		require.NoError(t, suite.EndTest(tc))
	})
}

func TestClockPinning(t *testing.T) {
	base := &fakeClock{t: time.Date(2026, 8, 26, 10, 30, 0, 123456789, time.UTC)}
	cfg := config.Default()
	st := store.New(t.TempDir(), nil)
	eng, err := New(cfg, st, WithBaseClock(base))
	require.NoError(t, err)

	suite, err := eng.StartSuite(fileKey)
	require.NoError(t, err)
	tc, err := suite.BeginTest("fetches users")
	require.NoError(t, err)

	recordedNow := eng.Clock().Now()
	assert.True(t, eng.Clock().Pinned())
	// Pinned at millisecond precision to match the wire format.
	assert.Equal(t, base.t.UnixMilli(), recordedNow.UnixMilli())

	tc.Observe(userEvent())
	require.NoError(t, suite.EndTest(tc))
	assert.False(t, eng.Clock().Pinned())
	require.NoError(t, suite.End())

	// Replay pins the stored instant even if the wall clock moved on.
	base.t = base.t.Add(48 * time.Hour)
	suite2, err := eng.StartSuite(fileKey)
	require.NoError(t, err)
	tc2, err := suite2.BeginTest("fetches users")
	require.NoError(t, err)
	require.Equal(t, ModeReplay, tc2.Mode())
	assert.Equal(t, recordedNow.UnixMilli(), eng.Clock().Now().UnixMilli())
	require.NoError(t, suite2.EndTest(tc2))
}

func TestRecordReplayRoundTrip(t *testing.T) {
	eng, _ := newEngine(t, nil)
	runRecordedTest(t, eng, "polls job",
		recorder.Event{URL: "https://api.example.com/jobs/1", Method: "GET", Status: 200, ResponseBody: []byte(`{"state":"pending"}`)},
		recorder.Event{URL: "https://api.example.com/jobs/1", Method: "GET", Status: 200, ResponseBody: []byte(`{"state":"done"}`)},
	)

	suite, err := eng.StartSuite(fileKey)
	require.NoError(t, err)
	tc, err := suite.BeginTest("polls job")
	require.NoError(t, err)
	require.Equal(t, ModeReplay, tc.Mode())

	first, err := tc.Plan().Next("GET", "https://api.example.com/jobs/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"state": "pending"}, first.Body)
	tc.Plan().Delivered("GET", "https://api.example.com/jobs/1")

	second, err := tc.Plan().Next("GET", "https://api.example.com/jobs/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"state": "done"}, second.Body)
	tc.Plan().Delivered("GET", "https://api.example.com/jobs/1")

	// Saturates on the last response.
	third, err := tc.Plan().Next("GET", "https://api.example.com/jobs/1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"state": "done"}, third.Body)

	require.NoError(t, suite.EndTest(tc))
}

func TestExternalizationBoundary(t *testing.T) {
	eng, st := newEngine(t, func(c *config.Config) { c.FixtureThreshold = 64 })

	small := []byte(`{"ok":true}`)
	big := []byte(`{"rows":"` + string(repeatBytes('x', 200)) + `"}`)

	runRecordedTest(t, eng, "downloads report",
		recorder.Event{URL: "https://api.example.com/small", Method: "GET", Status: 200, ResponseBody: small},
		recorder.Event{URL: "https://api.example.com/big", Method: "GET", Status: 200, ResponseBody: big},
	)

	sessions, err := st.Load(fileKey)
	require.NoError(t, err)
	sess := sessions["downloads report"]
	require.NotNil(t, sess)
	require.Len(t, sess.Routes, 2)

	var inline, external *interaction.Interaction
	for _, r := range sess.Routes {
		if r.URL == "https://api.example.com/small" {
			inline = r
		} else {
			external = r
		}
	}

	require.NotNil(t, inline)
	assert.Empty(t, inline.FixtureID)
	assert.NotNil(t, inline.Response)

	require.NotNil(t, external)
	assert.NotEmpty(t, external.FixtureID)
	assert.Nil(t, external.Response, "externalized body must not be stored inline")

	body, err := st.ReadFixture(fileKey, external.FixtureID)
	require.NoError(t, err)
	m, ok := body.(map[string]any)
	require.True(t, ok)
	assert.Len(t, m["rows"], 200)

	// Replaying resolves the fixture transparently.
	suite, err := eng.StartSuite(fileKey)
	require.NoError(t, err)
	tc, err := suite.BeginTest("downloads report")
	require.NoError(t, err)
	stub, err := tc.Plan().Next("GET", "https://api.example.com/big")
	require.NoError(t, err)
	assert.Equal(t, m, stub.Body)
	require.NoError(t, suite.EndTest(tc))
}

func TestReRecordDeletesSupersededFixtures(t *testing.T) {
	eng, st := newEngine(t, func(c *config.Config) {
		c.FixtureThreshold = 64
		c.RecordTests = []string{"downloads report"}
	})

	big := recorder.Event{URL: "https://api.example.com/big", Method: "GET", Status: 200,
		ResponseBody: []byte(`{"rows":"` + string(repeatBytes('x', 200)) + `"}`)}

	runRecordedTest(t, eng, "downloads report", big)

	ids, err := st.ListFixtures(fileKey)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	oldFixture := ids[0]

	// Second run re-records (recordTests) and supersedes the fixture.
	runRecordedTest(t, eng, "downloads report", big)

	ids, err = st.ListFixtures(fileKey)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.NotEqual(t, oldFixture, ids[0], "superseded fixture must be replaced")
}

func TestCleanModePrunesUnseenSessions(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir, nil)

	// Record A, B and C, where B owns a fixture.
	recCfg := config.Default()
	recCfg.FixtureThreshold = 64
	recEng, err := New(recCfg, st)
	require.NoError(t, err)

	suite, err := recEng.StartSuite(fileKey)
	require.NoError(t, err)
	for title, ev := range map[string]recorder.Event{
		"A": {URL: "/a", Method: "GET", Status: 200, ResponseBody: []byte(`"a"`)},
		"B": {URL: "/b", Method: "GET", Status: 200, ResponseBody: []byte(`"` + string(repeatBytes('b', 200)) + `"`)},
		"C": {URL: "/c", Method: "GET", Status: 200, ResponseBody: []byte(`"c"`)},
	} {
		tc, err := suite.BeginTest(title)
		require.NoError(t, err)
		tc.Observe(ev)
		require.NoError(t, suite.EndTest(tc))
	}
	require.NoError(t, suite.End())

	ids, err := st.ListFixtures(fileKey)
	require.NoError(t, err)
	require.Len(t, ids, 1, "B's response should be externalized")

	// Clean run executes only A and C.
	cleanCfg := config.Default()
	cleanCfg.CleanMocks = true
	cleanEng, err := New(cleanCfg, st)
	require.NoError(t, err)

	suite2, err := cleanEng.StartSuite(fileKey)
	require.NoError(t, err)
	for _, title := range []string{"A", "C"} {
		tc, err := suite2.BeginTest(title)
		require.NoError(t, err)
		require.NoError(t, suite2.EndTest(tc))
	}
	require.NoError(t, suite2.End())

	sessions, err := st.Load(fileKey)
	require.NoError(t, err)
	assert.Contains(t, sessions, "A")
	assert.Contains(t, sessions, "C")
	assert.NotContains(t, sessions, "B")

	ids, err = st.ListFixtures(fileKey)
	require.NoError(t, err)
	assert.Empty(t, ids, "B's fixture blobs must be deleted")
}

func TestCleanModeNeverStagesNewRecordings(t *testing.T) {
	eng, st := newEngine(t, func(c *config.Config) { c.CleanMocks = true })

	suite, err := eng.StartSuite(fileKey)
	require.NoError(t, err)
	tc, err := suite.BeginTest("brand new test")
	require.NoError(t, err)
	require.Equal(t, ModeRecord, tc.Mode())
	tc.Observe(userEvent())
	require.NoError(t, suite.EndTest(tc))
	require.NoError(t, suite.End())

	sessions, err := st.Load(fileKey)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestEmptyRecordingKeepsPreviousSession(t *testing.T) {
	eng, st := newEngine(t, nil)
	runRecordedTest(t, eng, "fetches users", userEvent())

	// Force re-record but observe nothing.
	suite, err := eng.StartSuite(fileKey)
	require.NoError(t, err)
	tc, err := suite.BeginTest("[rec] fetches users")
	require.NoError(t, err)
	require.NoError(t, suite.EndTest(tc))
	require.NoError(t, suite.End())

	sessions, err := st.Load(fileKey)
	require.NoError(t, err)
	require.Contains(t, sessions, "fetches users")
	assert.Len(t, sessions["fetches users"].Routes, 1)
}

func TestFlushHappensOnce(t *testing.T) {
	eng, _ := newEngine(t, nil)
	suite, err := eng.StartSuite(fileKey)
	require.NoError(t, err)
	require.NoError(t, suite.End())
	require.NoError(t, suite.End())
}

// repeatBytes builds a byte slice of n repeated characters.
func repeatBytes(c byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return b
}
