// Package token implements the gap-aware tracking token used by the global
// event stream. A token is a pure value: constructing and advancing one
// never touches the database, only the reader does.
package token

import (
	"encoding/json"
	"fmt"

	"github.com/google/btree"

	"github.com/aevon-lab/eventstore/internal/eventstore/engineerr"
)

// gapItem is the btree element for a tracked gap. btree.Item compares by
// value, which is all a gap index needs.
type gapItem int64

func (a gapItem) Less(than btree.Item) bool {
	return a < than.(gapItem)
}

// degree is the btree branching factor. 32 keeps tree height small for the
// gap-set sizes this package expects (bounded by max_gap_offset/gap_cleaning_threshold,
// typically in the low thousands).
const degree = 32

// Token is the resumable position of a global-stream reader: the highest
// global index observed, plus the set of lower indices that were still
// missing the last time they were looked for.
//
// Token is immutable from the caller's perspective — every mutating
// operation returns a new Token. The zero Token is not valid; use New.
type Token struct {
	index int64
	gaps  *btree.BTree
}

// New constructs a token with the given index and gap set. Every element of
// gaps must be strictly less than index; New panics otherwise, since a
// token violating this invariant cannot have been produced by any legal
// sequence of reads.
func New(index int64, gaps []int64) Token {
	tree := btree.New(degree)
	for _, g := range gaps {
		if g >= index {
			panic(fmt.Sprintf("token: gap %d is not less than index %d", g, index))
		}
		tree.ReplaceOrInsert(gapItem(g))
	}
	return Token{index: index, gaps: tree}
}

// empty returns a Token with an initialized, empty gap tree. Used internally
// so every Token (including one built field-by-field inside this package)
// has a non-nil tree.
func empty(index int64) Token {
	return Token{index: index, gaps: btree.New(degree)}
}

// Index returns the highest global index this token has observed.
func (t Token) Index() int64 {
	return t.index
}

// Gaps returns the tracked gap indices in ascending order.
func (t Token) Gaps() []int64 {
	if t.gaps == nil {
		return nil
	}
	out := make([]int64, 0, t.gaps.Len())
	t.gaps.Ascend(func(item btree.Item) bool {
		out = append(out, int64(item.(gapItem)))
		return true
	})
	return out
}

// GapCount returns the number of tracked gaps.
func (t Token) GapCount() int {
	if t.gaps == nil {
		return 0
	}
	return t.gaps.Len()
}

// HasGap reports whether g is currently tracked as a gap.
func (t Token) HasGap(g int64) bool {
	if t.gaps == nil {
		return false
	}
	return t.gaps.Has(gapItem(g))
}

// Covers reports whether globalIndex has already been observed by this
// token: it is at or below index, and it is not a currently-tracked gap.
func (t Token) Covers(globalIndex int64) bool {
	if globalIndex > t.index {
		return false
	}
	return !t.HasGap(globalIndex)
}

// AdvanceTo produces the token that results from observing nextIndex.
//
//   - nextIndex > index: every integer in the open interval (index,
//     nextIndex) is a sequence number assigned between the last observation
//     and this one. If allowGaps, each is inserted into gaps (some earlier
//     writer may still be mid-commit); if not, none are — the reader has
//     decided anything that old and still missing is abandoned rather than
//     tracked. index becomes nextIndex.
//   - nextIndex == index: a no-op on index; nextIndex is removed from gaps
//     if present (it just filled).
//   - nextIndex < index: nextIndex is removed from gaps (filled); index is
//     unchanged.
//
// After either branch, any gap g with g < nextIndex-maxGapOffset is dropped:
// it is too far behind the frontier to be worth re-scanning for.
func (t Token) AdvanceTo(nextIndex int64, maxGapOffset int64, allowGaps bool) Token {
	next := t.clone()

	switch {
	case nextIndex > t.index:
		if allowGaps {
			for g := t.index + 1; g < nextIndex; g++ {
				next.gaps.ReplaceOrInsert(gapItem(g))
			}
		}
		next.index = nextIndex
	case nextIndex == t.index:
		next.gaps.Delete(gapItem(nextIndex))
	default: // nextIndex < t.index
		next.gaps.Delete(gapItem(nextIndex))
	}

	next.dropAbandoned(nextIndex, maxGapOffset)
	return next
}

// dropAbandoned removes every gap strictly below the abandonment threshold
// frontier-maxGapOffset, where frontier is the index just observed (not
// necessarily next.index, since a backward fill doesn't move the frontier).
func (t *Token) dropAbandoned(frontier int64, maxGapOffset int64) {
	if t.gaps.Len() == 0 {
		return
	}
	threshold := frontier - maxGapOffset
	var toDelete []btree.Item
	t.gaps.Ascend(func(item btree.Item) bool {
		g := int64(item.(gapItem))
		if g < threshold {
			toDelete = append(toDelete, item)
			return true
		}
		return false // gaps are ascending; once we're past threshold, stop
	})
	for _, item := range toDelete {
		t.gaps.Delete(item)
	}
}

// clone returns a deep copy of t so AdvanceTo never mutates the receiver.
func (t Token) clone() Token {
	cp := btree.New(degree)
	if t.gaps != nil {
		t.gaps.Ascend(func(item btree.Item) bool {
			cp.ReplaceOrInsert(item)
			return true
		})
	}
	return Token{index: t.index, gaps: cp}
}

// Merge returns the token representing the union of two observations of the
// same stream: the higher index, and the intersection of their gap sets
// (a gap only survives if both observers still consider it open).
func Merge(a, b Token) Token {
	idx := a.index
	if b.index > idx {
		idx = b.index
	}
	merged := empty(idx)
	a.gaps.Ascend(func(item btree.Item) bool {
		g := int64(item.(gapItem))
		if g < idx && b.HasGap(g) {
			merged.gaps.ReplaceOrInsert(gapItem(g))
		}
		return true
	})
	return merged
}

// Diff returns the gaps present in a but not in b — the gaps that b has
// already resolved (filled or abandoned) relative to a.
func Diff(a, b Token) []int64 {
	var out []int64
	a.gaps.Ascend(func(item btree.Item) bool {
		g := int64(item.(gapItem))
		if !b.HasGap(g) {
			out = append(out, g)
		}
		return true
	})
	return out
}

// Equal reports whether two tokens have the same index and the same gap set.
func Equal(a, b Token) bool {
	if a.index != b.index {
		return false
	}
	if a.GapCount() != b.GapCount() {
		return false
	}
	equal := true
	a.gaps.Ascend(func(item btree.Item) bool {
		if !b.HasGap(int64(item.(gapItem))) {
			equal = false
			return false
		}
		return true
	})
	return equal
}

// String renders the token for logging.
func (t Token) String() string {
	return fmt.Sprintf("Token{index=%d, gaps=%v}", t.index, t.Gaps())
}

// wireToken is the §6 wire format: {index, gaps}. The engine never persists
// Token itself — callers (projectors) own this encoding.
type wireToken struct {
	Index int64   `json:"index"`
	Gaps  []int64 `json:"gaps"`
}

// MarshalJSON encodes the token as the §6 wire format.
func (t Token) MarshalJSON() ([]byte, error) {
	gaps := t.Gaps()
	if gaps == nil {
		gaps = []int64{}
	}
	return json.Marshal(wireToken{Index: t.index, Gaps: gaps})
}

// UnmarshalJSON decodes the §6 wire format. Malformed JSON or a gap not
// strictly less than index (violating New's precondition) is rejected with
// an error wrapping engineerr.ErrInvalidToken, so callers can classify it
// with errors.Is without inspecting the message text.
func (t *Token) UnmarshalJSON(data []byte) error {
	var w wireToken
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %s", engineerr.ErrInvalidToken, err)
	}
	for _, g := range w.Gaps {
		if g >= w.Index {
			return fmt.Errorf("%w: gap %d is not less than index %d", engineerr.ErrInvalidToken, g, w.Index)
		}
	}
	*t = New(w.Index, w.Gaps)
	return nil
}
