package pack

// Statistics is a snapshot of buffer counters. Counters only grow; Buffered
// and Groups are the occupancy at snapshot time.
type Statistics struct {
	Admitted       int64
	BatchesFull    int64
	BatchesEvicted int64
	BatchesDrained int64
	GroupsCreated  int64
	GroupsEvicted  int64

	Buffered int
	Groups   int
}

// Released returns the number of batches that left the buffer
func (s Statistics) Released() int64 {
	return s.BatchesFull + s.BatchesEvicted + s.BatchesDrained
}
