package session

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overseer/internal/agent"
	"overseer/internal/mission"
	"overseer/internal/ratelimit"
)

var testCfg = ratelimit.Config{MaxTokens: 1000, PeriodValue: 1, PeriodUnit: ratelimit.UnitMinutes, AutoResumeMinutes: 5}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleState() *mission.State {
	st := mission.NewState()
	st.Status = mission.StatusPaused
	st.Query = "find the answer"
	st.Planned = true
	st.Tasks = []mission.Task{
		{ID: "t1", Title: "look", Agent: agent.RoleResearcher, Status: mission.TaskCompleted, Result: "found it", TokensUsed: 42},
		{ID: "t2", Title: "write", Agent: agent.RoleWriter, Status: mission.TaskPending},
	}
	st.CurrentTaskIndex = 1
	st.TokenUsage = 42
	st.WindowStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return st
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	sess := &SavedSession{
		ID:        NewID(),
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Query:     "find the answer",
		Config:    testCfg,
		State:     sampleState(),
	}
	require.NoError(t, s.Put(sess))

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.Query, got.Query)
	assert.Equal(t, sess.Config, got.Config)
	assert.Equal(t, sess.State.Tasks, got.State.Tasks)
	assert.Equal(t, sess.State.CurrentTaskIndex, got.State.CurrentTaskIndex)
	assert.Equal(t, sess.State.Status, got.State.Status)

	// Idempotence: a second read yields the same in-memory state.
	again, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, got.State, again.State)
	assert.Equal(t, got.Config, again.Config)
}

func TestGetUnknownIDIsNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListBoundedAndOrdered(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < Retention+3; i++ {
		require.NoError(t, s.Put(&SavedSession{
			ID:        fmt.Sprintf("sess-%02d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Query:     fmt.Sprintf("query %d", i),
			Config:    testCfg,
			State:     sampleState(),
		}))
	}

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, Retention)
	assert.Equal(t, "sess-12", list[0].ID, "most recent first")
	for i := 1; i < len(list); i++ {
		assert.True(t, !list[i].Timestamp.After(list[i-1].Timestamp), "ordering by recency")
	}

	// The oldest rows were pruned, not merely hidden.
	got, err := s.Get("sess-00")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAutosaveSlotOverwrittenAndExcluded(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutAutosave("first", testCfg, sampleState()))
	st2 := sampleState()
	st2.Query = "second"
	require.NoError(t, s.PutAutosave("second", testCfg, st2))

	got, err := s.GetAutosave()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Query, "autosave slot is always-overwritten")

	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list, "autosave never appears in manual history")

	require.NoError(t, s.ClearAutosave())
	got, err = s.GetAutosave()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAutosaveNotPrunedByRetention(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// An old autosave must survive a full wave of newer manual saves.
	require.NoError(t, s.Put(&SavedSession{
		ID: AutosaveID, Timestamp: base.Add(-time.Hour),
		Query: "old autosave", Config: testCfg, State: sampleState(),
	}))
	for i := 0; i < Retention+2; i++ {
		require.NoError(t, s.Put(&SavedSession{
			ID:        fmt.Sprintf("m-%02d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Query:     "manual",
			Config:    testCfg,
			State:     sampleState(),
		}))
	}

	got, err := s.GetAutosave()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "old autosave", got.Query)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	sess := &SavedSession{ID: "gone", Timestamp: time.Now(), Query: "q", Config: testCfg, State: sampleState()}
	require.NoError(t, s.Put(sess))
	require.NoError(t, s.Delete("gone"))

	got, err := s.Get("gone")
	require.NoError(t, err)
	assert.Nil(t, got)
}
