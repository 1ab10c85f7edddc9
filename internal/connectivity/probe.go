package connectivity

import (
	"context"
	"net"
	"time"
)

// Probe is a Source that checks reachability by dialing a TCP address on
// an interval. It is the default source when the host platform offers no
// native connectivity feed.
type Probe struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dialer   net.Dialer
	changes  chan Signal
	stop     chan struct{}
}

// NewProbe creates a probe against addr (host:port). interval controls
// how often the background watcher re-dials.
func NewProbe(addr string, interval time.Duration) *Probe {
	return &Probe{
		addr:     addr,
		interval: interval,
		timeout:  3 * time.Second,
		changes:  make(chan Signal, 1),
		stop:     make(chan struct{}),
	}
}

func (p *Probe) Name() string { return "probe:" + p.addr }

// Check dials the probe address once.
func (p *Probe) Check(ctx context.Context) Signal {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", p.addr)
	if err != nil {
		return SignalNone
	}
	conn.Close()
	return SignalNetwork
}

// Changes returns the probe's signal feed. Run must be started for the
// feed to produce anything.
func (p *Probe) Changes() <-chan Signal { return p.changes }

// Run re-dials on the configured interval and publishes every result.
// The monitor collapses repeats, so the probe does not dedupe. Returns
// when ctx is cancelled or Close is called.
func (p *Probe) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			sig := p.Check(ctx)
			select {
			case p.changes <- sig:
			default:
			}
		}
	}
}

// Close stops Run.
func (p *Probe) Close() { close(p.stop) }
