package pack

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/readport/errors"
	"github.com/c360/readport/message"
	"github.com/c360/readport/metric"
)

func record(group string, seq int) message.Record {
	return message.Record{
		Time:     time.Unix(int64(seq), 0),
		Values:   []message.Value{message.IntValue(int64(seq))},
		Group:    message.TextValue(group),
		GroupKey: group,
	}
}

func seqs(b Batch) []int64 {
	out := make([]int64, len(b.Records))
	for i, r := range b.Records {
		out[i] = r.Values[0].Int()
	}
	return out
}

func TestNewBuffer_Invalid(t *testing.T) {
	_, err := NewBuffer(0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewBuffer(1, WithMaxGroups(-1))
	require.Error(t, err)
}

func TestBuffer_FlushesEveryPackLength(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{10, 3}, {12, 4}, {1, 1}, {5, 1}, {2, 7}} {
		t.Run(fmt.Sprintf("n=%d,k=%d", tc.n, tc.k), func(t *testing.T) {
			buf, err := NewBuffer(tc.k)
			require.NoError(t, err)

			var batches []Batch
			for i := 0; i < tc.n; i++ {
				res := buf.Admit(record(message.DefaultGroup, i))
				batches = append(batches, res.Ready...)
				assert.Less(t, buf.Len(), tc.k, "at most k-1 records stay buffered")
			}

			require.Len(t, batches, tc.n/tc.k)
			for i, b := range batches {
				assert.Equal(t, tc.k, b.Len())
				assert.Equal(t, Full, b.Reason)
				want := make([]int64, tc.k)
				for j := range want {
					want[j] = int64(i*tc.k + j)
				}
				assert.Equal(t, want, seqs(b), "batch %d keeps arrival order", i)
			}
			assert.Equal(t, tc.n%tc.k, buf.Len())
		})
	}
}

func TestBuffer_GroupIsolation(t *testing.T) {
	buf, err := NewBuffer(3)
	require.NoError(t, err)

	// A A B A B B
	var ready []Batch
	for i, g := range []string{"A", "A", "B", "A", "B", "B"} {
		ready = append(ready, buf.Admit(record(g, i)).Ready...)
	}

	require.Len(t, ready, 2)
	assert.Equal(t, "A", ready[0].GroupKey)
	assert.Equal(t, []int64{0, 1, 3}, seqs(ready[0]))
	assert.Equal(t, "B", ready[1].GroupKey)
	assert.Equal(t, []int64{2, 4, 5}, seqs(ready[1]))
	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, 2, buf.Groups())
}

func TestBuffer_DrainReturnsPartialBatches(t *testing.T) {
	buf, err := NewBuffer(5)
	require.NoError(t, err)

	buf.Admit(record("1", 0))
	buf.Admit(record("2", 1))
	buf.Admit(record("1", 2))

	drained := buf.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "2", drained[0].GroupKey, "least recently admitted first")
	assert.Equal(t, []int64{1}, seqs(drained[0]))
	assert.Equal(t, "1", drained[1].GroupKey)
	assert.Equal(t, []int64{0, 2}, seqs(drained[1]))
	for _, b := range drained {
		assert.Equal(t, Drained, b.Reason)
	}

	assert.Equal(t, 0, buf.Len())
	assert.Empty(t, buf.Drain(), "second drain has nothing left")
}

func TestBuffer_MaxGroupsEvictsLeastRecent(t *testing.T) {
	buf, err := NewBuffer(10, WithMaxGroups(2))
	require.NoError(t, err)

	buf.Admit(record("A", 0))
	buf.Admit(record("B", 1))
	buf.Admit(record("A", 2)) // A is now most recent

	res := buf.Admit(record("C", 3))
	require.True(t, res.FlushReady())
	require.Len(t, res.Ready, 1)
	assert.Equal(t, "B", res.Ready[0].GroupKey)
	assert.Equal(t, Evicted, res.Ready[0].Reason)
	assert.Equal(t, []int64{1}, seqs(res.Ready[0]))

	assert.Equal(t, 2, buf.Groups())
	assert.Equal(t, 0, buf.GroupLen("B"))
	assert.Equal(t, 2, buf.GroupLen("A"))

	stats := buf.Stats()
	assert.Equal(t, int64(1), stats.GroupsEvicted)
	assert.Equal(t, int64(1), stats.BatchesEvicted)
}

func TestBuffer_EvictionAndFullInOneAdmit(t *testing.T) {
	buf, err := NewBuffer(1, WithMaxGroups(1))
	require.NoError(t, err)

	res := buf.Admit(record("A", 0))
	require.Len(t, res.Ready, 1)

	// A is empty after its flush, so it is evicted without a batch
	res = buf.Admit(record("B", 1))
	require.Len(t, res.Ready, 1)
	assert.Equal(t, "B", res.Ready[0].GroupKey)
	assert.Equal(t, Full, res.Ready[0].Reason)
}

func TestBuffer_ConservationUnderConcurrency(t *testing.T) {
	const (
		producers = 8
		perWorker = 1000
		k         = 7
	)
	buf, err := NewBuffer(k)
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		batches []Batch
		wg      sync.WaitGroup
	)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			group := fmt.Sprintf("g%d", p%3)
			for i := 0; i < perWorker; i++ {
				res := buf.Admit(record(group, p*perWorker+i))
				if res.FlushReady() {
					mu.Lock()
					batches = append(batches, res.Ready...)
					mu.Unlock()
				}
			}
		}(p)
	}
	wg.Wait()
	batches = append(batches, buf.Drain()...)

	seen := make(map[int64]bool, producers*perWorker)
	for _, b := range batches {
		for _, r := range b.Records {
			id := r.Values[0].Int()
			require.False(t, seen[id], "record %d emitted twice", id)
			seen[id] = true
			assert.Equal(t, b.GroupKey, r.GroupKey)
		}
		if b.Reason == Full {
			assert.Equal(t, k, b.Len())
		}
	}
	assert.Len(t, seen, producers*perWorker, "no record lost")

	stats := buf.Stats()
	assert.Equal(t, int64(producers*perWorker), stats.Admitted)
	assert.Equal(t, 0, stats.Buffered)
}

func TestBuffer_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	buf, err := NewBuffer(2, WithMetrics(registry, "dev"))
	require.NoError(t, err)

	buf.Admit(record("A", 0))
	buf.Admit(record("A", 1))
	buf.Admit(record("A", 2))

	assert.Equal(t, 3.0, testutil.ToFloat64(buf.metrics.admitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(buf.metrics.buffered))
	assert.Equal(t, 1.0, testutil.ToFloat64(buf.metrics.batches.WithLabelValues("full")))

	// A second buffer for the same device conflicts
	_, err = NewBuffer(2, WithMetrics(registry, "dev"))
	assert.Error(t, err)
}
