// Package bucket indexes resting orders by quantized price level.
//
// Membership within a level is unordered: removal swaps the departing id
// with the last member and shrinks the slice, so scan order carries no
// time priority.
package bucket

import (
	"github.com/tidwall/btree"

	"github.com/Aidin1998/triggerbook/pkg/errors"
)

type slot struct {
	level int64
	pos   int
}

// Index maps levels to member ids and ids back to their slot.
// It is not safe for concurrent use.
type Index struct {
	levels  *btree.Map[int64, []uint64]
	reverse map[uint64]slot
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		levels:  btree.NewMap[int64, []uint64](32),
		reverse: make(map[uint64]slot),
	}
}

// Insert appends id to the members of level.
func (ix *Index) Insert(id uint64, level int64) error {
	if s, ok := ix.reverse[id]; ok {
		return errors.IndexCorruption.Explain("order %d already indexed at level %d", id, s.level)
	}
	members, _ := ix.levels.Get(level)
	members = append(members, id)
	ix.levels.Set(level, members)
	ix.reverse[id] = slot{level: level, pos: len(members) - 1}
	return nil
}

// Remove drops id from its level in O(1).
func (ix *Index) Remove(id uint64) error {
	s, ok := ix.reverse[id]
	if !ok {
		return errors.IndexCorruption.Explain("order %d is not indexed", id)
	}
	members, ok := ix.levels.Get(s.level)
	if !ok || s.pos >= len(members) || members[s.pos] != id {
		return errors.IndexCorruption.Explain("order %d slot %d at level %d is out of range", id, s.pos, s.level)
	}

	last := len(members) - 1
	if s.pos != last {
		moved := members[last]
		members[s.pos] = moved
		ix.reverse[moved] = slot{level: s.level, pos: s.pos}
	}
	members = members[:last]
	delete(ix.reverse, id)

	if len(members) == 0 {
		ix.levels.Delete(s.level)
	} else {
		ix.levels.Set(s.level, members)
	}
	return nil
}

// Contains reports whether id is indexed.
func (ix *Index) Contains(id uint64) bool {
	_, ok := ix.reverse[id]
	return ok
}

// LevelOf returns the level id rests at.
func (ix *Index) LevelOf(id uint64) (int64, bool) {
	s, ok := ix.reverse[id]
	return s.level, ok
}

// MembersAt returns a copy of the ids resting at level.
func (ix *Index) MembersAt(level int64) []uint64 {
	members, _ := ix.levels.Get(level)
	if len(members) == 0 {
		return nil
	}
	return append([]uint64(nil), members...)
}

// LevelsIn returns the non-empty levels within [lo, hi] in ascending order.
// The result is a copy so callers may mutate the index while walking it.
func (ix *Index) LevelsIn(lo, hi int64) []int64 {
	var out []int64
	ix.levels.Ascend(lo, func(level int64, _ []uint64) bool {
		if level > hi {
			return false
		}
		out = append(out, level)
		return true
	})
	return out
}

// Len returns the number of indexed ids.
func (ix *Index) Len() int { return len(ix.reverse) }

// Levels returns the number of non-empty levels.
func (ix *Index) Levels() int { return ix.levels.Len() }
