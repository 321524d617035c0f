package lexorank_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavle/tavle/internal/lexorank"
)

func TestNextAfter_EmptyList(t *testing.T) {
	assert.Equal(t, "m", lexorank.NextAfter(""))
}

func TestNextAfter_IncrementsLastChar(t *testing.T) {
	assert.Equal(t, "n", lexorank.NextAfter("m"))
	assert.Equal(t, "ab", lexorank.NextAfter("aa"))
}

func TestNextAfter_AppendsAfterZ(t *testing.T) {
	assert.Equal(t, "za", lexorank.NextAfter("z"))
	assert.Equal(t, "azza", lexorank.NextAfter("azz"))
}

func TestNextAfter_SortsAfterInput(t *testing.T) {
	ranks := []string{"", "m", "z", "zz", "aab", "mzz"}
	for _, r := range ranks {
		next := lexorank.NextAfter(r)
		assert.Greater(t, next, r, "NextAfter(%q) = %q must sort after the input", r, next)
	}
}

func TestMidpoint_BetweenNeighbours(t *testing.T) {
	before, after := "m", "n"
	mid := lexorank.Midpoint(before, after)
	assert.Greater(t, mid, before)
	assert.Less(t, mid, after)
}

func TestMidpoint_GrowsOneCharPerInsertion(t *testing.T) {
	before, after := "m", "n"
	for i := 0; i < 5; i++ {
		mid := lexorank.Midpoint(before, after)
		require.Greater(t, mid, before)
		require.Less(t, mid, after)
		assert.Equal(t, len(before)+1, len(mid))
		before = mid
	}
}

func TestMidpoint_BothEmpty(t *testing.T) {
	assert.Equal(t, "m", lexorank.Midpoint("", ""))
}

func TestOverflow_FallbackSortsLast(t *testing.T) {
	long := strings.Repeat("m", lexorank.MaxLength)
	require.True(t, lexorank.IsOverflow(long))

	next := lexorank.NextAfter(long)
	assert.True(t, strings.HasPrefix(next, "￿"), "overflow rank must begin with U+FFFF")
	assert.Greater(t, next, strings.Repeat("z", lexorank.MaxLength),
		"fallback must sort after any printable-ASCII rank")
}

func TestOverflow_BelowCeilingIsNormal(t *testing.T) {
	almost := strings.Repeat("m", lexorank.MaxLength-1)
	require.False(t, lexorank.IsOverflow(almost))
	assert.False(t, strings.HasPrefix(lexorank.NextAfter(almost), "￿"))
}

func TestFallback_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		r := lexorank.Fallback()
		assert.False(t, seen[r], "fallback ranks should not collide")
		seen[r] = true
	}
}

func TestRebalance_PreservesRelativeOrder(t *testing.T) {
	items := []lexorank.Ranked{
		{ID: "c", Order: "maaaa"},
		{ID: "a", Order: "ma"},
		{ID: "b", Order: "maaa"},
	}
	out := lexorank.Rebalance(items)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, "c", out[2].ID)
	assert.Equal(t, "a", out[0].Order)
	assert.Equal(t, "b", out[1].Order)
	assert.Equal(t, "c", out[2].Order)
}

func TestRebalance_Idempotent(t *testing.T) {
	items := []lexorank.Ranked{
		{ID: "1", Order: "zzz"},
		{ID: "2", Order: "m"},
		{ID: "3", Order: "ma"},
		{ID: "4", Order: "b"},
	}
	once := lexorank.Rebalance(items)
	twice := lexorank.Rebalance(once)
	assert.Equal(t, once, twice)
}

func TestRebalance_ExtendsPastAlphabet(t *testing.T) {
	items := make([]lexorank.Ranked, 60)
	for i := range items {
		items[i] = lexorank.Ranked{ID: string(rune('A' + i)), Order: strings.Repeat("m", i+1)}
	}
	out := lexorank.Rebalance(items)
	assert.Equal(t, "z", out[25].Order)
	assert.Equal(t, "za", out[26].Order)
	assert.Equal(t, "zza", out[52].Order)
	for i := 1; i < len(out); i++ {
		assert.Less(t, out[i-1].Order, out[i].Order)
	}
}

func TestRebalance_DoesNotMutateInput(t *testing.T) {
	items := []lexorank.Ranked{{ID: "1", Order: "q"}, {ID: "2", Order: "c"}}
	_ = lexorank.Rebalance(items)
	assert.Equal(t, "q", items[0].Order)
	assert.Equal(t, "c", items[1].Order)
}
