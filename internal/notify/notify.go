// Package notify is the engine's notification port. The engine reports
// user-facing outcomes as structured notifications; rendering is the
// caller's concern.
package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

// Severity classifies a notification for the consumer.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one user-visible message.
type Notification struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Notifier receives notifications from the engine.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a zerolog logger, mapping severity to
// log level.
type LogNotifier struct {
	logger *zerolog.Logger
}

// NewLogNotifier creates a logger-backed notifier.
func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(n Notification) {
	var ev *zerolog.Event
	switch n.Severity {
	case SeverityWarning:
		ev = l.logger.Warn()
	case SeverityError:
		ev = l.logger.Error()
	default:
		ev = l.logger.Info()
	}
	ev.Str("severity", string(n.Severity)).Msg(n.Message)
}

// Collector accumulates notifications in memory. Used in tests and by
// consumers that poll for pending messages.
type Collector struct {
	mu    sync.Mutex
	notes []Notification
}

func (c *Collector) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
}

// Drain returns all accumulated notifications and clears the collector.
func (c *Collector) Drain() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notes
	c.notes = nil
	return out
}
