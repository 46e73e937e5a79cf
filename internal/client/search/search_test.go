package search

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarun-08/pingme/internal/models"
)

func directory() []models.Profile {
	return []models.Profile{
		{Username: "alice", Email: "alice@example.com"},
		{Username: "bob", Email: "bob@work.example.com"},
		{Username: "carol", Email: "carol@example.com"},
	}
}

func TestFilterEmptyQueryReturnsAll(t *testing.T) {
	got := Filter(directory(), "   ")
	require.Len(t, got, 3)
	assert.Equal(t, "alice", got[0].Username)
}

func TestFilterMatchesUsernameAndEmail(t *testing.T) {
	got := Filter(directory(), "BOB")
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].Username)

	got = Filter(directory(), "work")
	require.Len(t, got, 1, "email matches too")
	assert.Equal(t, "bob", got[0].Username)

	got = Filter(directory(), "example.com")
	assert.Len(t, got, 3)
}

func TestFilterPreservesOrder(t *testing.T) {
	got := Filter(directory(), "a")
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Username)
	assert.Equal(t, "carol", got[1].Username)
}

func TestFilterNoMatch(t *testing.T) {
	assert.Empty(t, Filter(directory(), "zzz"))
}

func TestFilterDoesNotAliasInput(t *testing.T) {
	in := directory()
	got := Filter(in, "")
	got[0].Username = "mutated"
	assert.Equal(t, "alice", in[0].Username)
}

func TestDebouncerRunsOnlyTheLastCall(t *testing.T) {
	db := NewDebouncer(20 * time.Millisecond)
	defer db.Stop()

	var ran atomic.Int64
	var last atomic.Int64
	for i := 1; i <= 5; i++ {
		i := int64(i)
		db.Do(func() {
			ran.Add(1)
			last.Store(i)
		})
	}

	require.Eventually(t, func() bool { return ran.Load() > 0 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond) // nothing else should fire
	assert.Equal(t, int64(1), ran.Load())
	assert.Equal(t, int64(5), last.Load())
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	db := NewDebouncer(20 * time.Millisecond)

	var ran atomic.Int64
	db.Do(func() { ran.Add(1) })
	db.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int64(0), ran.Load())

	db.Do(func() { ran.Add(1) }) // rejected after Stop
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int64(0), ran.Load())
}
