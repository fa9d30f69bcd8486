package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy the pool does not hold.
var ErrUnknownProxy = errors.New("proxy: not in pool")

// Config defines settings for the proxy Pool.
type Config struct {
	// MaxFailures before a proxy is benched. Defaults to 3.
	MaxFailures int
	// Cooldown is how long a benched proxy stays out of rotation. Defaults to 5m.
	Cooldown time.Duration
}

type endpoint struct {
	url         *url.URL
	failures    int
	successes   int
	benchedTill time.Time
}

// Pool hands out proxies round-robin, benching ones that keep failing.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	index     map[string]*endpoint
	cursor    int
	cfg       Config
	now       func() time.Time
}

// NewPool parses rawURLs and returns a pool over them. Entries without a
// scheme default to http. Blank entries and lines starting with '#' are skipped.
func NewPool(cfg Config, rawURLs ...string) (*Pool, error) {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	p := &Pool{
		index: make(map[string]*endpoint),
		cfg:   cfg,
		now:   time.Now,
	}
	for _, raw := range rawURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		if _, dup := p.index[u.String()]; dup {
			continue
		}
		ep := &endpoint{url: u}
		p.endpoints = append(p.endpoints, ep)
		p.index[u.String()] = ep
	}
	return p, nil
}

// Len reports the number of configured proxies.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Next returns the next proxy not on the bench, or nil when none is usable.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.endpoints {
		ep := p.endpoints[p.cursor]
		p.cursor = (p.cursor + 1) % len(p.endpoints)

		if !ep.benchedTill.IsZero() {
			if now.Before(ep.benchedTill) {
				continue
			}
			ep.benchedTill = time.Time{}
			ep.failures = 0
		}
		return ep.url
	}
	return nil
}

// MarkSuccess records a successful request through u.
func (p *Pool) MarkSuccess(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep, err := p.lookup(u)
	if err != nil {
		return err
	}
	ep.successes++
	if ep.failures > 0 {
		ep.failures--
	}
	return nil
}

// MarkFailure records a failed request through u and benches the proxy once
// it reaches MaxFailures.
func (p *Pool) MarkFailure(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep, err := p.lookup(u)
	if err != nil {
		return err
	}
	ep.failures++
	if ep.failures >= p.cfg.MaxFailures {
		ep.benchedTill = p.now().Add(p.cfg.Cooldown)
	}
	return nil
}

// lookup must be called with the lock held.
func (p *Pool) lookup(u *url.URL) (*endpoint, error) {
	if u == nil {
		return nil, errors.New("proxy: nil url")
	}
	ep, ok := p.index[u.String()]
	if !ok {
		return nil, ErrUnknownProxy
	}
	return ep, nil
}
