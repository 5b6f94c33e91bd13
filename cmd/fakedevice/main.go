// Package main runs a fake instrument: a TCP server that streams sonic
// anemometer messages to every client that connects. It is meant for trying
// readport without hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/c360/readport/pkg/devicesim"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("fakedevice failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("fakedevice", flag.ContinueOnError)
	host := fs.String("host", "127.0.0.1", "Address to listen on")
	port := fs.Int("port", 4001, "Port to listen on")
	frequency := fs.Float64("frequency", 20, "Messages per second, 0 sends as fast as possible")
	broken := fs.Bool("broken", false, "Split messages across writes and start with a partial message")
	count := fs.Int("count", 0, "Messages per connection, 0 is unlimited")
	debug := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *port < 0 || *port > 65535 {
		return fmt.Errorf("invalid port: %d", *port)
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	server, err := devicesim.Listen(net.JoinHostPort(*host, strconv.Itoa(*port)), devicesim.Sonic{
		Frequency: *frequency,
		Broken:    *broken,
		Count:     *count,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Fake device listening",
		"address", server.Addr(),
		"frequency", *frequency,
		"broken", *broken,
		"pattern", devicesim.SonicPattern)

	<-ctx.Done()
	logger.Info("Shutting down", "connections_served", server.Accepted())
	return server.Close()
}
