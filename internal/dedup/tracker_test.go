package dedup

import (
	"strings"
	"sync"
	"testing"

	"dex-gem-sentry/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPairID(t *testing.T) {
	withAddr := types.PairRecord{PairAddress: "addr", URL: "https://dexscreener.com/solana/addr"}
	assert.Equal(t, "addr", PairID(withAddr))

	withURL := types.PairRecord{URL: "https://dexscreener.com/solana/x"}
	assert.Equal(t, "https://dexscreener.com/solana/x", PairID(withURL))

	a := types.PairRecord{BaseToken: &types.Token{Symbol: "AAA"}, Fdv: decimal.NewNullDecimal(decimal.NewFromInt(1))}
	aCopy := types.PairRecord{BaseToken: &types.Token{Symbol: "AAA"}, Fdv: decimal.NewNullDecimal(decimal.NewFromInt(1))}
	b := types.PairRecord{BaseToken: &types.Token{Symbol: "BBB"}, Fdv: decimal.NewNullDecimal(decimal.NewFromInt(1))}

	idA := PairID(a)
	assert.True(t, strings.HasPrefix(idA, "sha256:"))
	assert.Equal(t, idA, PairID(aCopy), "相同内容的标识应稳定")
	assert.NotEqual(t, idA, PairID(b), "不同内容的标识应不同")
}

func TestTracker_PartitionAndMark(t *testing.T) {
	tr := NewTracker(0)
	p1 := types.PairRecord{PairAddress: "p1"}
	p2 := types.PairRecord{PairAddress: "p2"}

	seen, fresh := tr.Partition([]types.PairRecord{p1, p2})
	assert.Empty(t, seen)
	require.Len(t, fresh, 2)
	assert.Equal(t, 0, tr.Size(), "Partition 不修改集合")

	tr.Mark(PairID(p1))
	assert.True(t, tr.Contains("p1"))

	seen, fresh = tr.Partition([]types.PairRecord{p1, p2})
	require.Len(t, seen, 1)
	assert.Equal(t, "p1", seen[0].PairAddress)
	require.Len(t, fresh, 1)
	assert.Equal(t, "p2", fresh[0].PairAddress)
}

func TestTracker_DuplicateInBatch(t *testing.T) {
	tr := NewTracker(0)
	p := types.PairRecord{PairAddress: "dup"}

	seen, fresh := tr.Partition([]types.PairRecord{p, p, p})
	assert.Len(t, fresh, 1, "同一批次中的重复标识只计一次新发现")
	assert.Len(t, seen, 2)
}

func TestTracker_Monotonic(t *testing.T) {
	tr := NewTracker(0)
	tr.Mark("a", "b")
	tr.Mark("a")
	assert.Equal(t, 2, tr.Size())
	tr.Mark("c")
	assert.Equal(t, 3, tr.Size())
}

func TestTracker_WarnOnGrowth(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	tr := NewTracker(2)
	tr.Mark("a")
	assert.Equal(t, 0, logs.Len())
	tr.Mark("b")
	assert.Equal(t, 1, logs.Len(), "达到阈值时告警")
	tr.Mark("c")
	assert.Equal(t, 1, logs.Len(), "翻倍前不重复告警")
	tr.Mark("d")
	assert.Equal(t, 2, logs.Len())
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Mark(string(rune('a' + n)))
				tr.Contains("a")
				tr.Partition([]types.PairRecord{{PairAddress: "x"}})
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, tr.Size())
}
