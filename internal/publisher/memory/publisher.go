// Package memory contains an in-memory result sink for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/site-downloader/internal/download"
	"github.com/JakeFAU/site-downloader/internal/publisher"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu        sync.RWMutex
	sessionID string
	events    []publisher.Event
}

// New returns a memory Publisher.
func New(sessionID string) *Publisher {
	return &Publisher{sessionID: sessionID}
}

// Consume records the result as an event.
func (p *Publisher) Consume(_ context.Context, result download.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publisher.NewEvent(p.sessionID, result))
	return nil
}

// Events returns the recorded events.
func (p *Publisher) Events() []publisher.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]publisher.Event, len(p.events))
	copy(out, p.events)
	return out
}
