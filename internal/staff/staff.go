// Package staff posts operational alerts, such as newly registered orders,
// to the print shop's Slack or Discord channel.
package staff

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pbimprenta/printdesk/internal/config"
	"github.com/rs/zerolog"
)

// Field is a labelled value shown inside an alert.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Alert is a platform-neutral staff notification.
type Alert struct {
	Title  string
	Body   string
	Color  string // hex, e.g. "#36a64f"
	Fields []Field
}

// Text renders the alert as plain text, used as the chat fallback.
func (a Alert) Text() string {
	var b strings.Builder
	b.WriteString(a.Title)
	if a.Body != "" {
		b.WriteString("\n")
		b.WriteString(a.Body)
	}
	for _, f := range a.Fields {
		fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value)
	}
	return b.String()
}

// Notifier delivers staff alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Nop discards alerts.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Alert) error { return nil }

// New builds the notifier selected by cfg. An empty platform yields Nop.
func New(cfg config.StaffConfig, log zerolog.Logger) (Notifier, error) {
	switch strings.ToLower(cfg.Platform) {
	case "":
		return Nop{}, nil
	case "slack":
		s, err := NewSlack(SlackOpts{Token: cfg.SlackToken, ChannelID: cfg.Channel, Logger: log})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "discord":
		d, err := NewDiscord(DiscordOpts{Token: cfg.DiscordToken, ChannelID: cfg.Channel, Logger: log})
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("staff: unsupported platform %q", cfg.Platform)
	}
}

// Recorder implements Notifier for testing by recording every alert.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
	Err    error
}

// Notify records a and returns r.Err.
func (r *Recorder) Notify(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.Err
}

// Alerts returns a copy of the recorded alerts.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
func parseHexColor(hex string) int {
	hex = strings.TrimPrefix(hex, "#")
	var color int
	for _, c := range hex {
		color <<= 4
		switch {
		case c >= '0' && c <= '9':
			color |= int(c - '0')
		case c >= 'a' && c <= 'f':
			color |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			color |= int(c-'A') + 10
		}
	}
	return color
}
