package bucket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Aidin1998/triggerbook/pkg/errors"
)

func TestIndex_InsertRemove(t *testing.T) {
	ix := NewIndex()
	require.NoError(t, ix.Insert(1, 40))
	require.NoError(t, ix.Insert(2, 40))
	require.NoError(t, ix.Insert(3, 40))
	require.NoError(t, ix.Insert(4, 38))

	assert.ElementsMatch(t, []uint64{1, 2, 3}, ix.MembersAt(40))
	assert.Equal(t, 4, ix.Len())
	assert.Equal(t, 2, ix.Levels())

	// removing the head moves the tail into its slot
	require.NoError(t, ix.Remove(1))
	assert.Equal(t, []uint64{3, 2}, ix.MembersAt(40))

	require.NoError(t, ix.Remove(2))
	require.NoError(t, ix.Remove(3))
	assert.Nil(t, ix.MembersAt(40))
	assert.Equal(t, 1, ix.Levels(), "empty level is dropped from the tree")

	level, ok := ix.LevelOf(4)
	assert.True(t, ok)
	assert.Equal(t, int64(38), level)
}

func TestIndex_CorruptionErrors(t *testing.T) {
	ix := NewIndex()
	require.NoError(t, ix.Insert(7, 1))

	assert.True(t, errors.Is(ix.Insert(7, 2), errors.IndexCorruption))
	assert.True(t, errors.Is(ix.Remove(8), errors.IndexCorruption))
}

func TestIndex_LevelsIn(t *testing.T) {
	ix := NewIndex()
	for i, level := range []int64{-3, 5, 10, 11, 30} {
		require.NoError(t, ix.Insert(uint64(i+1), level))
	}

	assert.Equal(t, []int64{5, 10, 11}, ix.LevelsIn(5, 11))
	assert.Equal(t, []int64{-3}, ix.LevelsIn(-10, 0))
	assert.Empty(t, ix.LevelsIn(12, 29))
}

func TestIndex_MembersAtIsACopy(t *testing.T) {
	ix := NewIndex()
	require.NoError(t, ix.Insert(1, 0))
	members := ix.MembersAt(0)
	members[0] = 99
	assert.Equal(t, []uint64{1}, ix.MembersAt(0))
}

// The reverse map and the level members always describe the same set.
func TestIndex_ReverseMapConsistency(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ix := NewIndex()
		want := map[uint64]int64{}
		var next uint64

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if len(want) == 0 || rapid.Bool().Draw(t, "insert") {
				next++
				level := rapid.Int64Range(-5, 5).Draw(t, "level")
				if err := ix.Insert(next, level); err != nil {
					t.Fatalf("insert: %v", err)
				}
				want[next] = level
				continue
			}
			ids := make([]uint64, 0, len(want))
			for id := range want {
				ids = append(ids, id)
			}
			victim := rapid.SampledFrom(ids).Draw(t, "victim")
			if err := ix.Remove(victim); err != nil {
				t.Fatalf("remove: %v", err)
			}
			delete(want, victim)
		}

		if ix.Len() != len(want) {
			t.Fatalf("len %d, want %d", ix.Len(), len(want))
		}
		seen := map[uint64]bool{}
		for _, level := range ix.LevelsIn(-5, 5) {
			for _, id := range ix.MembersAt(level) {
				if want[id] != level {
					t.Fatalf("id %d at level %d, want %d", id, level, want[id])
				}
				if seen[id] {
					t.Fatalf("id %d listed twice", id)
				}
				seen[id] = true
			}
		}
		if len(seen) != len(want) {
			t.Fatalf("members cover %d ids, want %d", len(seen), len(want))
		}
	})
}
