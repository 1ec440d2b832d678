package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
)

// Poster queues work onto the designated thread
type Poster interface {
	Post(name string, fn func()) bool
}

// Sweeper posts fn to the loop on every tick
type Sweeper struct {
	name     string
	interval time.Duration
	clock    clockwork.Clock
	poster   Poster
	fn       func()
}

// NewSweeper creates a sweeper that posts fn every interval
func NewSweeper(name string, interval time.Duration, clock clockwork.Clock, poster Poster, fn func()) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sweeper{name: name, interval: interval, clock: clock, poster: poster, fn: fn}
}

// Run ticks until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if !s.poster.Post(s.name, s.fn) {
				log.Printf("[Loop] Warning: %s tick not queued", s.name)
			}
		}
	}
}
