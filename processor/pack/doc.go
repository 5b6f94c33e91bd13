// Package pack groups parsed records and releases them in fixed-size batches.
//
// A Buffer keeps one ordered run of records per group key. Admit appends a
// record to its group; when the group holds PackLength records the whole run
// is returned as a Batch and the group starts over, atomically. After N
// admissions to one group exactly floor(N/PackLength) batches have been
// released and N mod PackLength records remain buffered. Groups never affect
// each other.
//
//	buf, _ := pack.NewBuffer(12000, pack.WithMaxGroups(64))
//	if res := buf.Admit(rec); res.FlushReady() {
//	    for _, b := range res.Ready {
//	        writer.Write(ctx, b)
//	    }
//	}
//	// at shutdown
//	for _, b := range buf.Drain() {
//	    writer.Write(ctx, b)
//	}
//
// With WithMaxGroups the number of live groups is bounded: admitting a record
// of a new group evicts the least recently admitted group and releases its
// partial batch with Reason Evicted, so no record is lost.
package pack
