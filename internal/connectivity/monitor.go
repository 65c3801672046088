package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/phcodesage/trail-zap/internal/config"
	"github.com/sirupsen/logrus"
)

// Probe reports whether one connectivity condition currently holds.
type Probe func(ctx context.Context) bool

// Monitor tracks whether the device is online: some network interface is up
// and the internet is actually reachable. It starts offline.
type Monitor struct {
	reachable Probe
	internet  Probe
	interval  time.Duration

	mu     sync.RWMutex
	online bool
	subs   map[chan bool]struct{}
}

func New(reachable, internet Probe, interval time.Duration) *Monitor {
	return &Monitor{
		reachable: reachable,
		internet:  internet,
		interval:  interval,
		subs:      map[chan bool]struct{}{},
	}
}

func NewFromConfig(cfg config.Config) *Monitor {
	return New(InterfaceProbe, DialProbe(cfg.ConnectivityProbeAddr, cfg.ConnectivityProbeTimeout), cfg.ConnectivityInterval)
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe returns a channel receiving the new value on every change.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 8)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, ch)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Check runs the probes once and publishes the result.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.reachable(ctx) && m.internet(ctx)
	m.set(online)
	return online
}

// Set overrides the current value, e.g. from a platform reachability callback.
func (m *Monitor) Set(online bool) {
	m.set(online)
}

func (m *Monitor) set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	logrus.WithField("online", online).Info("connectivity changed")
	for ch := range m.subs {
		select {
		case ch <- online:
		default:
		}
	}
}

// Run checks immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

var interfacesFn = net.Interfaces

// InterfaceProbe reports whether any non-loopback interface is up.
func InterfaceProbe(_ context.Context) bool {
	ifaces, err := interfacesFn()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}

var dialFn = func(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}

// DialProbe reports whether a TCP connection to addr opens within timeout.
func DialProbe(addr string, timeout time.Duration) Probe {
	return func(ctx context.Context) bool {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		conn, err := dialFn(ctx, "tcp", addr)
		if err != nil {
			logrus.WithError(err).Debug("internet probe failed")
			return false
		}
		_ = conn.Close()
		return true
	}
}
