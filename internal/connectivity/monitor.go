package connectivity

import (
	"context"
	"log/slog"
	"sync"
)

// Signal is one source's view of the network.
type Signal int

const (
	// SignalNone means the source sees no usable network.
	SignalNone Signal = iota
	// SignalNetwork means the source can reach the network.
	SignalNetwork
)

func (s Signal) String() string {
	if s == SignalNetwork {
		return "network"
	}
	return "none"
}

// Source produces connectivity signals. Check answers synchronously;
// Changes delivers subsequent signals until the source is stopped. A
// source must not block on Changes sends being consumed slowly; the
// monitor reads promptly, but sources should still prefer dropping an
// intermediate value over blocking.
type Source interface {
	Name() string
	Check(ctx context.Context) Signal
	Changes() <-chan Signal
}

// Monitor aggregates sources into a single online/offline verdict.
// Offline only when every source reports SignalNone; a single live
// signal keeps the session online.
type Monitor struct {
	logger  *slog.Logger
	sources []Source

	mu      sync.Mutex
	signals map[string]Signal
	online  bool
	subs    []chan bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor over the given sources. It does not
// start watching until Start is called.
func NewMonitor(logger *slog.Logger, sources ...Source) *Monitor {
	m := &Monitor{
		logger:  logger,
		sources: sources,
		signals: make(map[string]Signal, len(sources)),
	}
	for _, src := range sources {
		m.signals[src.Name()] = SignalNone
	}
	return m
}

// Start performs a direct check of every source, records the initial
// verdict, and begins watching for changes. The initial check is
// synchronous so callers observe an accurate state immediately instead
// of a pessimistic default.
func (m *Monitor) Start(ctx context.Context) {
	for _, src := range m.sources {
		m.apply(src.Name(), src.Check(ctx))
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.watch(watchCtx)
}

func (m *Monitor) watch(ctx context.Context) {
	defer close(m.done)

	var wg sync.WaitGroup
	for _, src := range m.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case sig, ok := <-src.Changes():
					if !ok {
						return
					}
					m.apply(src.Name(), sig)
				}
			}
		}(src)
	}
	wg.Wait()
}

// apply records one source's signal and notifies subscribers if the
// aggregate verdict flipped.
func (m *Monitor) apply(name string, sig Signal) {
	m.mu.Lock()
	m.signals[name] = sig

	online := false
	for _, s := range m.signals {
		if s != SignalNone {
			online = true
			break
		}
	}

	changed := online != m.online
	m.online = online
	var subs []chan bool
	if changed {
		subs = append(subs, m.subs...)
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Info("connectivity changed", "online", online, "source", name, "signal", sig.String())
	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Subscriber is behind; it will resync on its next read.
		}
	}
}

// Online reports the current aggregate verdict.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers for verdict transitions. The channel carries the
// new verdict; only changes are delivered, never repeats.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Stop halts watching. Safe to call before Start or more than once.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
}
