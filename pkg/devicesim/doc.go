// Package devicesim simulates line-oriented instruments for tests and local
// development.
//
// A Server listens on a TCP port and runs one Handler per accepted
// connection. Two handlers are provided:
//
//   - Script replays a fixed session of steps (send, sleep, disconnect) and
//     is what the connection and pipeline tests use to drive reconnects and
//     idle timeouts deterministically.
//   - Sonic emits sonic-anemometer style messages at a configurable rate,
//     optionally split across writes to mimic a streaming serial bridge.
//
// Example:
//
//	srv, err := devicesim.Listen("127.0.0.1:0",
//		devicesim.Script{devicesim.Send("a\n"), devicesim.Disconnect()},
//		devicesim.Script{devicesim.Send("b\n")},
//	)
//	defer srv.Close()
//
// The i-th connection uses the i-th handler; connections past the last
// handler reuse the last one.
package devicesim
