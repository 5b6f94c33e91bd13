package devicesim

import (
	"context"
	"net"
	"time"

	"github.com/c360/readport/pkg/retry"
)

type stepKind int

const (
	stepSend stepKind = iota
	stepSleep
	stepDisconnect
)

// Step is one instruction of a scripted session
type Step struct {
	kind  stepKind
	data  []byte
	delay time.Duration
}

// Send writes data as-is; include the line terminator where one is wanted
func Send(data string) Step {
	return Step{kind: stepSend, data: []byte(data)}
}

// SendBytes writes raw bytes
func SendBytes(data []byte) Step {
	return Step{kind: stepSend, data: data}
}

// Sleep pauses the session
func Sleep(d time.Duration) Step {
	return Step{kind: stepSleep, delay: d}
}

// Disconnect closes the connection and ends the session
func Disconnect() Step {
	return Step{kind: stepDisconnect}
}

// Script replays its steps on a connection. When the steps run out without a
// Disconnect the connection is held open, silent, until the server closes.
type Script []Step

// Serve implements Handler
func (s Script) Serve(ctx context.Context, conn net.Conn) error {
	for _, step := range s {
		switch step.kind {
		case stepSend:
			if _, err := conn.Write(step.data); err != nil {
				return err
			}
		case stepSleep:
			if err := retry.Sleep(ctx, step.delay); err != nil {
				return err
			}
		case stepDisconnect:
			return nil
		}
	}
	<-ctx.Done()
	return ctx.Err()
}
