// Package component defines the contracts shared by the collector's parts:
// the Discoverable inspection interface with its health and data flow
// reports, and the Initialize/Start/Stop lifecycle.
//
// Lifecycle follows one pattern everywhere:
//
//	c.Initialize()         // validate and allocate, no I/O that blocks
//	c.Start(ctx)           // begin work; cancelling ctx stops it
//	c.Stop(timeout)        // graceful shutdown, bounded by timeout
//
// Components never store the context passed to Start beyond the goroutines
// it bounds.
package component
