package eventsystem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// EventLogger counts handled events and periodically logs the counts
type EventLogger struct {
	mu     sync.Mutex
	events map[string]int
}

func NewEventLogger() *EventLogger {
	return &EventLogger{events: make(map[string]int)}
}

// Register adds the counting handler to s for every event type
func (e *EventLogger) Register(s *System) {
	s.AddHandler("eventlogger", e.handleEvent)
}

func (e *EventLogger) handleEvent(evt *EventData) (bool, error) {
	e.mu.Lock()
	e.events[evt.Type.String()]++
	e.mu.Unlock()
	return false, nil
}

// Flush returns the counts since the last flush and resets them
func (e *EventLogger) Flush() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.events
	e.events = make(map[string]int)
	return out
}

// Run logs the counts every interval until ctx is done
func (e *EventLogger) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if line := formatCounts(e.Flush()); line != "" {
				logger.Info("events last " + interval.String() + ": " + line)
			}
		case <-ctx.Done():
			return
		}
	}
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}

	return strings.Join(parts, " ")
}
