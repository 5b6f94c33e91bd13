// Package worker provides a generic worker pool with a bounded queue.
//
// The collector runs each device's file writer in a Pool with a single worker,
// so batches are written one at a time in the order they were queued, while
// the ingestion goroutine only blocks when the queue is full:
//
//	pool := worker.NewPool(1, 16, func(ctx context.Context, b pack.Batch) error {
//	    _, err := writer.Write(ctx, b)
//	    return err
//	}, worker.WithMetricsRegistry[pack.Batch](registry, device, "writer_queue"))
//	pool.Start(ctx)
//	pool.SubmitWait(ctx, batch) // blocks while the queue is full
//	pool.Stop(30 * time.Second)  // drains queued batches
//
// Stop closes the queue, releases blocked SubmitWait callers with
// ErrPoolStopped and waits for the workers to finish what was queued. When
// Stop times out, take the remaining items back with Abandon, cancel the
// context passed to Start and wait for the in-flight item with Wait:
//
//	if err := pool.Stop(timeout); err != nil {
//	    left := pool.Abandon()
//	    cancel()
//	    for _, b := range left {
//	        writer.Abandon(b, err)
//	    }
//	    pool.Wait(time.Second)
//	}
package worker
