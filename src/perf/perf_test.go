package perf

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocksNest(t *testing.T) {
	rp := MakeNewRequestPerf("ingest", "POST", "/api/media")
	rp.StartBlock("IMAGE", "Compress")
	rp.StartBlock("STORAGE", "Put")
	rp.Checkpoint("DB", "before insert")

	assert.True(t, rp.EndBlock())
	assert.True(t, rp.Blocks[0].End.IsZero())
	assert.False(t, rp.Blocks[1].End.IsZero())

	rp.EndRequest()
	require.Len(t, rp.Blocks, 3)
	for _, b := range rp.Blocks {
		assert.False(t, b.End.IsZero(), b.Description)
		assert.GreaterOrEqual(t, b.DurationMs(), 0.0)
	}
	assert.False(t, rp.EndBlock())
	assert.GreaterOrEqual(t, rp.Duration().Nanoseconds(), int64(0))
}

func TestNilPerfIsSafe(t *testing.T) {
	var rp *RequestPerf
	rp.StartBlock("A", "b")
	rp.Checkpoint("A", "b")
	assert.False(t, rp.EndBlock())
	rp.EndRequest()
	assert.Zero(t, rp.Duration())

	assert.Nil(t, ExtractPerf(context.Background()))
}

func TestAttachAndExtract(t *testing.T) {
	rp := MakeNewRequestPerf("r", "GET", "/")
	ctx := AttachPerf(context.Background(), rp)
	assert.Same(t, rp, ExtractPerf(ctx))
}

func TestPerfCollectorKeepsRecentHistory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	collector := RunPerfCollector(ctx, 3)

	for i := 0; i < 5; i++ {
		rp := MakeNewRequestPerf(fmt.Sprintf("route %d", i), "GET", "/")
		rp.EndRequest()
		collector.SubmitRun(rp)
	}

	storage := collector.GetPerfCopy()
	require.Len(t, storage.AllRequests, 3)
	assert.Equal(t, "route 2", storage.AllRequests[0].Route)
	assert.Equal(t, "route 4", storage.AllRequests[2].Route)

	cancel()
	<-collector.Done
	collector.SubmitRun(MakeNewRequestPerf("late", "GET", "/"))
	assert.Empty(t, collector.GetPerfCopy().AllRequests)
}
