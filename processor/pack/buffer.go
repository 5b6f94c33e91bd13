package pack

import (
	"container/list"
	"sync"

	"github.com/c360/readport/message"
)

// Reason says why a batch left the buffer
type Reason int

const (
	// Full means the group reached the pack length
	Full Reason = iota
	// Evicted means the group was dropped to honour the group limit
	Evicted
	// Drained means the buffer was drained at shutdown
	Drained
)

// String returns the label used in logs
func (r Reason) String() string {
	switch r {
	case Full:
		return "full"
	case Evicted:
		return "evicted"
	case Drained:
		return "drained"
	default:
		return "unknown"
	}
}

// Batch is an ordered run of records of one group, ready to be persisted
type Batch struct {
	GroupKey string
	Group    message.Value
	Records  []message.Record
	Reason   Reason
}

// Len returns the number of records in the batch
func (b Batch) Len() int {
	return len(b.Records)
}

// AdmitResult reports the batches that became ready while admitting a record.
// Ready holds at most two batches: an evicted group and the admitted record's full group.
type AdmitResult struct {
	Ready []Batch
}

// FlushReady reports whether at least one batch must be written
func (r AdmitResult) FlushReady() bool {
	return len(r.Ready) > 0
}

type group struct {
	key     string
	value   message.Value
	records []message.Record
	// elem is the group's position in the recency list
	elem *list.Element
}

// Buffer accumulates records per group and releases a batch every time a
// group reaches the pack length. Safe for concurrent use.
type Buffer struct {
	packLength int
	maxGroups  int

	mu     sync.Mutex
	groups map[string]*group
	// recency orders group keys from least to most recently admitted
	recency  *list.List
	buffered int

	stats   Statistics
	metrics *bufferMetrics
}

// NewBuffer creates a buffer releasing batches of packLength records.
// packLength must be at least 1.
func NewBuffer(packLength int, opts ...Option) (*Buffer, error) {
	o := applyOptions(opts...)
	if packLength < 1 {
		return nil, errPackLength(packLength)
	}
	if o.maxGroups < 0 {
		return nil, errMaxGroups(o.maxGroups)
	}

	b := &Buffer{
		packLength: packLength,
		maxGroups:  o.maxGroups,
		groups:     make(map[string]*group),
		recency:    list.New(),
	}

	if o.metricsReg != nil {
		m, err := newBufferMetrics(o.metricsReg, o.metricsPrefix)
		if err != nil {
			return nil, err
		}
		b.metrics = m
	}

	return b, nil
}

// PackLength returns the batch size
func (b *Buffer) PackLength() int {
	return b.packLength
}

// Admit appends rec to its group. When the group reaches the pack length the
// full batch is returned and the group restarts empty in the same critical
// section, so every record is part of exactly one batch.
func (b *Buffer) Admit(rec message.Record) AdmitResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result AdmitResult

	g, ok := b.groups[rec.GroupKey]
	if !ok {
		if b.maxGroups > 0 && len(b.groups) >= b.maxGroups {
			if evicted, ok := b.evictOldestLocked(); ok {
				result.Ready = append(result.Ready, evicted)
			}
		}
		g = &group{
			key:     rec.GroupKey,
			value:   rec.Group,
			records: make([]message.Record, 0, b.initialCapacity()),
		}
		g.elem = b.recency.PushBack(g.key)
		b.groups[g.key] = g
		b.stats.GroupsCreated++
	} else {
		b.recency.MoveToBack(g.elem)
	}

	g.records = append(g.records, rec)
	b.buffered++
	b.stats.Admitted++

	if len(g.records) >= b.packLength {
		result.Ready = append(result.Ready, b.takeLocked(g, Full))
	}

	b.observeLocked(1, result)
	return result
}

// Drain empties every non-empty group and returns them as partial batches,
// ordered from least to most recently admitted. Used at shutdown.
func (b *Buffer) Drain() []Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	var batches []Batch
	for e := b.recency.Front(); e != nil; e = e.Next() {
		g := b.groups[e.Value.(string)]
		if len(g.records) == 0 {
			continue
		}
		batches = append(batches, b.takeLocked(g, Drained))
	}
	b.observeLocked(0, AdmitResult{Ready: batches})
	return batches
}

// Len returns the number of buffered records across all groups
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffered
}

// Groups returns the number of known groups, including empty ones
func (b *Buffer) Groups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups)
}

// GroupLen returns the number of buffered records of one group
func (b *Buffer) GroupLen(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if g, ok := b.groups[key]; ok {
		return len(g.records)
	}
	return 0
}

// Stats returns a snapshot of the buffer counters
func (b *Buffer) Stats() Statistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Buffered = b.buffered
	s.Groups = len(b.groups)
	return s
}

// takeLocked hands the group's records over to a batch and resets the group
func (b *Buffer) takeLocked(g *group, reason Reason) Batch {
	batch := Batch{
		GroupKey: g.key,
		Group:    g.value,
		Records:  g.records,
		Reason:   reason,
	}
	b.buffered -= len(g.records)
	g.records = make([]message.Record, 0, b.initialCapacity())

	switch reason {
	case Full:
		b.stats.BatchesFull++
	case Evicted:
		b.stats.BatchesEvicted++
	case Drained:
		b.stats.BatchesDrained++
	}
	return batch
}

// evictOldestLocked removes the least recently admitted group. An empty group
// is removed without producing a batch.
func (b *Buffer) evictOldestLocked() (Batch, bool) {
	front := b.recency.Front()
	if front == nil {
		return Batch{}, false
	}
	g := b.groups[front.Value.(string)]
	b.recency.Remove(front)
	delete(b.groups, g.key)
	b.stats.GroupsEvicted++

	if len(g.records) == 0 {
		return Batch{}, false
	}
	return b.takeLocked(g, Evicted), true
}

// initialCapacity caps preallocation for large pack lengths
func (b *Buffer) initialCapacity() int {
	const maxPrealloc = 4096
	if b.packLength < maxPrealloc {
		return b.packLength
	}
	return maxPrealloc
}

func (b *Buffer) observeLocked(admitted int, result AdmitResult) {
	if b.metrics == nil {
		return
	}
	if admitted > 0 {
		b.metrics.admitted.Add(float64(admitted))
	}
	for _, batch := range result.Ready {
		b.metrics.batches.WithLabelValues(batch.Reason.String()).Inc()
	}
	b.metrics.buffered.Set(float64(b.buffered))
	b.metrics.groups.Set(float64(len(b.groups)))
}
