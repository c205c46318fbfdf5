package server

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/framechat/internal/auth"
	"github.com/vovakirdan/framechat/internal/core"
	"github.com/vovakirdan/framechat/internal/frame"
	"github.com/vovakirdan/framechat/internal/metrics"
	"github.com/vovakirdan/framechat/internal/proto"
)

const (
	testSecret   = "hunter2"
	testMaxFrame = 4096
)

type serverOptions struct {
	roomCapacity int
	commandRate  float64
	commandBurst int
}

// startServer runs a server on a random port and tears it down with the
// test. It returns the bound address and the registry for state assertions.
func startServer(t *testing.T, opts serverOptions) (string, *core.Registry) {
	t.Helper()

	logger := zerolog.Nop()
	verifier, err := auth.New(testSecret, "", 31)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	registry := core.NewRegistry(opts.roomCapacity, &logger)
	m := metrics.NewWith(prometheus.NewRegistry(), "framechat")

	srv := New(Config{
		Addr:            "localhost:0",
		MaxFrame:        testMaxFrame,
		CommandRate:     opts.commandRate,
		CommandBurst:    opts.commandBurst,
		ShutdownTimeout: 2 * time.Second,
	}, registry, verifier, m, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Listen(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("server did not shut down in time")
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for !srv.Ready() {
		if time.Now().After(deadline) {
			t.Fatalf("server never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv.Addr(), registry
}

// testClient wraps a raw connection with frame/proto helpers.
type testClient struct {
	t    *testing.T
	conn net.Conn
}

// dial connects and consumes the HELLO greeting.
func dial(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	c := &testClient{t: t, conn: conn}
	greeting := c.expect("HELLO")
	if greeting.Arg1 != "1" {
		t.Fatalf("unexpected greeting version: %+v", greeting)
	}
	return c
}

func (c *testClient) send(line string) {
	c.t.Helper()
	if err := frame.Send(c.conn, []byte(line)); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

func (c *testClient) recv() (proto.Command, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, err := frame.Receive(c.conn, testMaxFrame)
	if err != nil {
		return proto.Command{}, err
	}
	return proto.Parse(string(payload))
}

// expect reads frames until one with the given command name arrives.
func (c *testClient) expect(name string) proto.Command {
	c.t.Helper()
	for {
		cmd, err := c.recv()
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", name, err)
		}
		if cmd.Is(name) {
			return cmd
		}
	}
}

// expectNone asserts that no frame with the given name arrives within the
// window.
func (c *testClient) expectNone(name string, window time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		_ = c.conn.SetReadDeadline(deadline)
		payload, err := frame.Receive(c.conn, testMaxFrame)
		if err != nil {
			return // timeout or closed: nothing arrived
		}
		cmd, err := proto.Parse(string(payload))
		if err != nil {
			continue
		}
		if cmd.Is(name) {
			c.t.Fatalf("unexpected %s frame: %+v", name, cmd)
		}
	}
}

// expectClosed asserts the server tears the connection down.
func (c *testClient) expectClosed() {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = c.conn.SetReadDeadline(deadline)
		if _, err := frame.Receive(c.conn, testMaxFrame); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return
		}
	}
	c.t.Fatalf("expected connection to be closed")
}

// authAs completes the handshake for the given username.
func (c *testClient) authAs(user string) {
	c.t.Helper()
	c.send("AUTH " + user + " " + testSecret)
	ok := c.expect(proto.ReplyOK)
	if ok.Arg1 != proto.CmdAuth {
		c.t.Fatalf("expected OK AUTH, got %+v", ok)
	}
}

func TestShutdownStopsAccepting(t *testing.T) {
	logger := zerolog.Nop()
	verifier, err := auth.New(testSecret, "", 31)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	registry := core.NewRegistry(0, &logger)
	m := metrics.NewWith(prometheus.NewRegistry(), "framechat")
	srv := New(Config{
		Addr:            "localhost:0",
		MaxFrame:        testMaxFrame,
		ShutdownTimeout: 2 * time.Second,
	}, registry, verifier, m, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Listen(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !srv.Ready() {
		if time.Now().After(deadline) {
			t.Fatalf("server never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
	addr := srv.Addr()

	// A live connection must not stall the drain.
	c := dial(t, addr)
	c.authAs("lingerer")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("listen returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("shutdown did not complete")
	}

	if _, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		t.Fatalf("expected dial to fail after shutdown")
	}
}

func TestOversizedFrameDisconnects(t *testing.T) {
	addr, _ := startServer(t, serverOptions{})

	c := dial(t, addr)
	c.authAs("alice")

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], testMaxFrame+1)
	if _, err := c.conn.Write(hdr[:]); err != nil {
		t.Fatalf("write oversized header: %v", err)
	}
	c.expectClosed()
}
