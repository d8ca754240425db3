package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldlab-data/kinemetric/internal/engine"
	"github.com/fieldlab-data/kinemetric/internal/timeutil"
	"github.com/fieldlab-data/kinemetric/internal/units"
)

func openTestStore(t *testing.T, clock timeutil.Clock) *Store {
	t.Helper()
	s, err := OpenWithClock(":memory:", clock)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult() engine.SessionResult {
	best := 1.85
	mean := 1.725
	return engine.SessionResult{
		SessionID:  "sess-1",
		Discipline: "broad_jump",
		Unit:       units.Metres,
		Trials: []engine.TrialMetric{
			{TrialID: "t1", Value: 1.6, Unit: units.Metres, Confidence: 0.9, Accepted: true, At: 12.5},
			{TrialID: "t2", Value: 0.4, Unit: units.Metres, Confidence: 0.9, Accepted: false,
				Violations: []engine.ViolationKind{engine.RangeTooSmall, engine.HeldTooBriefly}, At: 31.0},
			{TrialID: "t3", Value: 1.85, Unit: units.Metres, Confidence: 0.88, Accepted: true, At: 55.2},
		},
		Best:       &best,
		Mean:       &mean,
		CountValid: 2,
	}
}

func TestSaveAndGetSession(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, timeutil.RealClock{})
	want := sampleResult()
	require.NoError(t, s.SaveSession(want))

	got, err := s.GetSession("sess-1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round-tripped session mismatch (-want +got):\n%s", diff)
	}
}

func TestGetSessionMissing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, timeutil.RealClock{})
	_, err := s.GetSession("nope")
	assert.Error(t, err)
}

func TestSaveSessionWithoutAggregates(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, timeutil.RealClock{})
	res := engine.SessionResult{
		SessionID:  "sess-empty",
		Discipline: "sit_ups",
		Unit:       units.Reps,
	}
	require.NoError(t, s.SaveSession(res))

	got, err := s.GetSession("sess-empty")
	require.NoError(t, err)
	assert.Nil(t, got.Best, "NULL best must load as nil, not zero")
	assert.Nil(t, got.Mean)
	assert.Empty(t, got.Trials)
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	s := openTestStore(t, clock)

	first := sampleResult()
	require.NoError(t, s.SaveSession(first))

	clock.Advance(time.Hour)
	second := sampleResult()
	second.SessionID = "sess-2"
	second.Discipline = "sprint"
	second.Unit = units.Seconds
	require.NoError(t, s.SaveSession(second))

	all, err := s.ListSessions("", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "sess-2", all[0].SessionID, "newest first")
	assert.Equal(t, "sess-1", all[1].SessionID)
	assert.Greater(t, all[0].CreatedAt, all[1].CreatedAt)

	sprints, err := s.ListSessions("sprint", 10)
	require.NoError(t, err)
	require.Len(t, sprints, 1)
	assert.Equal(t, "sess-2", sprints[0].SessionID)

	limited, err := s.ListSessions("", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDuplicateSessionRejected(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, timeutil.RealClock{})
	require.NoError(t, s.SaveSession(sampleResult()))
	assert.Error(t, s.SaveSession(sampleResult()), "session_id is the primary key")
}
