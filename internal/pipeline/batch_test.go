package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// stubProcessor returns canned results per symbol
type stubProcessor struct {
	rows  map[string][]core.AlignedBar
	errs  map[string]error
	delay time.Duration

	mu     sync.Mutex
	calls  []string
	active atomic.Int32
	peak   atomic.Int32
}

func (s *stubProcessor) Process(ctx context.Context, symbol string) ([]core.AlignedBar, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, symbol)
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err, ok := s.errs[symbol]; ok {
		return nil, err
	}
	return s.rows[symbol], nil
}

func oneRow(date string) []core.AlignedBar {
	var r core.AlignedBar
	r.Date = day(date)
	r.Trading = true
	return []core.AlignedBar{r}
}

func TestBatch_IsolatesFailuresAndEmptyResults(t *testing.T) {
	obsCore, logs := observer.New(zapcore.WarnLevel)
	proc := &stubProcessor{
		rows: map[string][]core.AlignedBar{
			"sh600000": oneRow("2021-01-04"),
			"sz000001": oneRow("2021-01-04"),
			"sh600001": {},
		},
		errs: map[string]error{
			"sh600002": core.Errorf(core.ErrData, "missing prev close"),
		},
	}

	b := NewBatch(proc, 2, zap.New(obsCore), metrics.NewRegistry())
	merged, summary, err := b.Run(context.Background(), []string{"sh600000", "sh600001", "sh600002", "sz000001"})
	require.NoError(t, err)

	assert.Equal(t, []string{"sh600000", "sz000001"}, Symbols(merged))
	assert.Equal(t, 2, summary.Loaded)
	assert.Equal(t, 1, summary.Empty)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Skipped())
	assert.ErrorIs(t, summary.Failures["sh600002"], core.ErrData)

	assert.Equal(t, 1, logs.FilterMessage("symbol skipped").Len())
	assert.Equal(t, 1, logs.FilterMessage("symbol has no rows in range").Len())
}

func TestBatch_OutOfWindowSymbolDropped(t *testing.T) {
	src := gappedSource()
	src.bars["sh600003"] = nil // entirely outside the window after reading

	b := NewBatch(New(src), 0, nil, nil)
	merged, summary, err := b.Run(context.Background(), []string{"sh600000", "sh600003"})
	require.NoError(t, err)

	assert.Equal(t, []string{"sh600000"}, Symbols(merged))
	assert.Len(t, merged["sh600000"], 3, "other symbols unaffected")
	assert.Equal(t, 1, summary.Empty)
}

func TestBatch_CalendarMismatchAborts(t *testing.T) {
	proc := &stubProcessor{
		rows: map[string][]core.AlignedBar{"sh600000": oneRow("2021-01-04")},
		errs: map[string]error{"sh600001": core.Errorf(core.ErrCalendarMismatch, "calendar is empty")},
	}

	b := NewBatch(proc, 1, nil, nil)
	merged, _, err := b.Run(context.Background(), []string{"sh600000", "sh600001"})
	assert.ErrorIs(t, err, core.ErrCalendarMismatch)
	assert.Nil(t, merged)
}

func TestBatch_BoundedParallelism(t *testing.T) {
	symbols := make([]string, 20)
	rows := make(map[string][]core.AlignedBar, len(symbols))
	for i := range symbols {
		symbols[i] = fmt.Sprintf("sh6%05d", i)
		rows[symbols[i]] = oneRow("2021-01-04")
	}
	proc := &stubProcessor{rows: rows, delay: 5 * time.Millisecond}

	merged, summary, err := NewBatch(proc, 3, nil, nil).Run(context.Background(), symbols)
	require.NoError(t, err)
	assert.Len(t, merged, len(symbols))
	assert.Equal(t, len(symbols), summary.Loaded)
	assert.LessOrEqual(t, proc.peak.Load(), int32(3))
	assert.Len(t, proc.calls, len(symbols))
}

func TestBatch_CancelledContextStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc := &stubProcessor{rows: map[string][]core.AlignedBar{"sh600000": oneRow("2021-01-04")}}
	merged, summary, err := NewBatch(proc, 1, nil, nil).Run(ctx, []string{"sh600000", "sh600001"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, merged)
	assert.Equal(t, 0, summary.Loaded)
	assert.Empty(t, proc.calls)
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
	assert.Equal(t, DefaultWorkers(), NewBatch(&stubProcessor{}, 0, nil, nil).workers)
}
