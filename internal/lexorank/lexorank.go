// Package lexorank implements string-based fractional ranking for drag-and-drop
// ordering. Byte-wise comparison of ranks yields the display order, so any two
// items can take a new neighbour in O(1) without renumbering the rest.
package lexorank

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxLength is the rank length ceiling. Ranks at or beyond it get the
	// overflow fallback on the next append.
	MaxLength = 32

	alphabet = "abcdefghijklmnopqrstuvwxyz"
)

// NextAfter returns a rank that sorts immediately after last. An empty last
// means the list is empty and the midpoint of the alphabet is used.
func NextAfter(last string) string {
	if last == "" {
		return "m"
	}
	if IsOverflow(last) {
		return Fallback()
	}
	tail := last[len(last)-1]
	if tail == 'z' {
		return last + "a"
	}
	return last[:len(last)-1] + string(tail+1)
}

// Midpoint returns a rank strictly between before and any rank greater than
// before under byte comparison. Each insertion between the same pair grows
// the rank by one character.
func Midpoint(before, after string) string {
	if before == "" && after == "" {
		return "m"
	}
	if len(before) >= MaxLength {
		return Fallback()
	}
	return before + "a"
}

// IsOverflow reports whether a rank has hit the length ceiling and the next
// insertion should use the fallback rank instead.
func IsOverflow(rank string) bool {
	return len(rank) >= MaxLength
}

// Fallback builds a rank for the append-at-end case once normal ranks have
// overflowed. It begins with U+FFFF so it sorts after any printable-ASCII
// rank, and carries a timestamp plus random suffix for uniqueness.
func Fallback() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Degrade to timestamp-only uniqueness.
		return "￿" + strconv.FormatInt(time.Now().UnixMilli(), 36)
	}
	return "￿" + strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + hex.EncodeToString(buf[:])
}

// Ranked is the minimal view of an orderable item.
type Ranked struct {
	ID    string
	Order string
}

// Rebalance sorts items by their current rank and assigns fresh short
// ranks from the alphabet. Positions past the alphabet grow one "z"
// prefix per lap, keeping every rank distinct and strictly increasing.
// The input is not modified.
func Rebalance(items []Ranked) []Ranked {
	out := make([]Ranked, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Order = strings.Repeat("z", i/len(alphabet)) + string(alphabet[i%len(alphabet)])
	}
	return out
}
