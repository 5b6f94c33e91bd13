package component

import (
	"context"
	"time"
)

// LifecycleComponent is a Discoverable that can be started and stopped.
// A pipeline is one; its stages are driven by the pipeline and only expose
// Discoverable.
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
