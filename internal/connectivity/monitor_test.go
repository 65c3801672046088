package connectivity

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func staticProbe(v *atomic.Bool) Probe {
	return func(context.Context) bool { return v.Load() }
}

func TestMonitorStartsOfflineAndNotifiesChanges(t *testing.T) {
	var up, internet atomic.Bool
	up.Store(true)
	m := New(staticProbe(&up), staticProbe(&internet), time.Hour)
	if m.Online() {
		t.Fatalf("expected offline before first check")
	}

	ch, cancel := m.Subscribe()
	defer cancel()

	if m.Check(context.Background()) {
		t.Fatalf("expected offline without internet")
	}

	internet.Store(true)
	if !m.Check(context.Background()) || !m.Online() {
		t.Fatalf("expected online")
	}
	m.Check(context.Background())

	select {
	case v := <-ch:
		if !v {
			t.Fatalf("expected online notification")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for notification")
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected duplicate notification %v", v)
	default:
	}

	up.Store(false)
	m.Check(context.Background())
	if v := <-ch; v {
		t.Fatalf("expected offline notification")
	}
}

func TestMonitorSubscribeCancel(t *testing.T) {
	m := New(func(context.Context) bool { return true }, func(context.Context) bool { return true }, time.Hour)
	ch, cancel := m.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	m.Set(true)
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	m := New(func(context.Context) bool { calls.Add(1); return true }, func(context.Context) bool { return true }, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not stop")
	}
	if !m.Online() {
		t.Fatalf("expected online")
	}
}

func TestDialProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	if !DialProbe(ln.Addr().String(), time.Second)(context.Background()) {
		t.Fatalf("expected probe to succeed")
	}

	oldDial := dialFn
	defer func() { dialFn = oldDial }()
	dialFn = func(context.Context, string, string) (net.Conn, error) { return nil, errors.New("unreachable") }
	if DialProbe("example.com:443", time.Second)(context.Background()) {
		t.Fatalf("expected probe to fail")
	}
}

func TestInterfaceProbe(t *testing.T) {
	oldIfaces := interfacesFn
	defer func() { interfacesFn = oldIfaces }()

	interfacesFn = func() ([]net.Interface, error) {
		return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}}, nil
	}
	if InterfaceProbe(context.Background()) {
		t.Fatalf("expected loopback-only to be unreachable")
	}

	interfacesFn = func() ([]net.Interface, error) {
		return []net.Interface{{Name: "wlan0", Flags: net.FlagUp}}, nil
	}
	if !InterfaceProbe(context.Background()) {
		t.Fatalf("expected reachable")
	}

	interfacesFn = func() ([]net.Interface, error) { return nil, errors.New("boom") }
	if InterfaceProbe(context.Background()) {
		t.Fatalf("expected unreachable on error")
	}
}
