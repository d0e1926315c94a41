// Package notify fans out run and episode alerts to chat webhooks. Each
// alert has an event type; operators choose which types they receive.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Event types emitted by the episode runner.
const (
	EventEpisodeFinished = "episode_finished"
	EventEpisodeFailed   = "episode_failed"
	EventRunFinished     = "run_finished"
)

// Sender delivers one rendered message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Message is a notification before rendering.
type Message struct {
	Event  string
	Title  string
	Fields map[string]string
}

// Render formats fields as sorted "key: value" lines.
func (m Message) Render() string {
	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: %s", k, m.Fields[k])
	}
	return sb.String()
}

// Notifier dispatches messages to every sender whose event filter allows it.
// An empty filter allows every event.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify delivers m unless its event is filtered out. Every sender is tried;
// the failures are joined.
func (n *Notifier) Notify(ctx context.Context, m Message) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[m.Event] {
		n.logger.DebugContext(ctx, "notify: event filtered out", slog.String("event", m.Event))
		return nil
	}

	body := m.Render()
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, m.Title, body); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", m.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
