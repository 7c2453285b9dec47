// Package connectivity tracks whether the remote store is reachable and
// publishes online/offline transitions.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const probeTimeout = 5 * time.Second

// Prober checks reachability. A nil error means online.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// HTTPProber issues a HEAD request against URL.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

func (p HTTPProber) Probe(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.URL, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe %s: status %d", p.URL, resp.StatusCode)
	}
	return nil
}

// Monitor holds the current connectivity state.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[chan bool]struct{}
	prober Prober
	log    zerolog.Logger
}

// NewMonitor starts in the given state. prober may be nil when state is only
// driven through Set.
func NewMonitor(online bool, prober Prober, log zerolog.Logger) *Monitor {
	return &Monitor{
		online: online,
		subs:   make(map[chan bool]struct{}),
		prober: prober,
		log:    log,
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set updates the state and notifies subscribers if it changed.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	m.log.Info().Bool("online", online).Msg("connectivity changed")
	for ch := range m.subs {
		select {
		case ch <- online:
		default:
			// keep only the latest state
			select {
			case <-ch:
			default:
			}
			ch <- online
		}
	}
}

// Subscribe returns a channel of state transitions. It is closed when ctx is
// done.
func (m *Monitor) Subscribe(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

// Check runs the prober once and records the result.
func (m *Monitor) Check(ctx context.Context) {
	if m.prober == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := m.prober.Probe(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("connectivity probe failed")
	}
	m.Set(err == nil)
}

// Start probes once, then on the cron schedule until ctx is done.
func (m *Monitor) Start(ctx context.Context, schedule string) error {
	if m.prober == nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { m.Check(ctx) }); err != nil {
		return fmt.Errorf("Start: schedule %q: %w", schedule, err)
	}
	m.Check(ctx)
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
