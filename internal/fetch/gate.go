package fetch

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HostGate serializes fetches to the same host and spaces them by a fixed
// politeness delay. Fetches to different hosts do not wait on each other.
type HostGate struct {
	delay time.Duration

	mu    sync.Mutex
	hosts map[string]*hostSlot
}

type hostSlot struct {
	sem  chan struct{}
	last time.Time
}

// NewHostGate creates a gate with the given delay between fetches to one host
func NewHostGate(delay time.Duration) *HostGate {
	if delay < 0 {
		delay = 0
	}
	return &HostGate{
		delay: delay,
		hosts: make(map[string]*hostSlot),
	}
}

// Delay returns the configured politeness delay
func (g *HostGate) Delay() time.Duration {
	return g.delay
}

func (g *HostGate) slot(host string) *hostSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.hosts[host]
	if !ok {
		s = &hostSlot{sem: make(chan struct{}, 1)}
		g.hosts[host] = s
	}
	return s
}

// Do runs fn once the host is free and the politeness delay since the previous
// fetch to it has elapsed. It returns ctx.Err() if cancelled while waiting.
func (g *HostGate) Do(ctx context.Context, host string, fn func(ctx context.Context) error) error {
	s := g.slot(strings.ToLower(host))

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()

	if !s.last.IsZero() {
		if wait := g.delay - time.Since(s.last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	defer func() { s.last = time.Now() }()
	return fn(ctx)
}

// HostOf returns the host of a URL, or the input when it does not parse
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
