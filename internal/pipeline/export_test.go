package pipeline

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStrategy(t *testing.T) {
	cal := testCalendar(t, "2021-01-04", "2021-01-05", "2021-01-06", "2021-01-07", "2021-01-08")
	rows, err := New(gappedSource(), WithCalendar(cal)).Process(context.Background(), "sh600000")
	require.NoError(t, err)

	store, err := storage.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	n, err := WriteStrategy(ctx, store, "out", map[string][]core.AlignedBar{"sh600000": rows})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := store.Read(ctx, "out/sh600000.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 6)

	assert.Equal(t, strings.Join(strategyHeader, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2021-01-04,"))
	assert.True(t, strings.HasSuffix(lines[2], ",1000000000,0,0,0"), "06 is suspended: %s", lines[2])
	assert.True(t, strings.HasSuffix(lines[5], ",1000000000,,,"), "last row flags are empty: %s", lines[5])
}

func TestWriteFactor(t *testing.T) {
	src := gappedSource()
	src.bars["sz000001"] = src.bars["sh600000"]

	p := New(src)
	merged := make(map[string][]core.AlignedBar)
	for _, s := range []string{"sz000001", "sh600000"} {
		rows, err := p.Process(context.Background(), s)
		require.NoError(t, err)
		merged[s] = rows
	}

	all := MergeFactorRows(merged)
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Date.Before(all[i-1].Date), "ordered by date")
	}

	store, err := storage.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, WriteFactor(ctx, store, "factor/input.csv", all))

	data, err := store.Read(ctx, "factor/input.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, strings.Join(factorHeader, ","), lines[0])
	assert.Contains(t, lines[1], ",银行")
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "", formatFloat(math.NaN()))
	assert.Equal(t, "1", formatFloat(1))
	assert.Equal(t, "10.25", formatFloat(10.25))
}
