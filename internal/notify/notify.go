// Package notify delivers operator alerts (stop-losses, failed cancels,
// persistence and auth failures) to configured channels.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"autostock/internal/config"
)

// Event types.
const (
	EventStopLoss         = "stop_loss"
	EventCancelFailed     = "cancel_failed"
	EventPersistenceError = "persistence_error"
	EventAuthError        = "auth_error"
)

type Event struct {
	Type    string    `json:"event"`
	Market  string    `json:"market"`
	Symbol  string    `json:"symbol,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func (e Event) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(e.Market), e.Type)
	if e.Symbol != "" {
		fmt.Fprintf(&b, " %s", e.Symbol)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every sender whose filter matches. Failures are
// logged, never returned, so alerting cannot break a trading cycle.
type Multi struct {
	Senders []Notifier
	Events  []string
	Timeout time.Duration
	Logger  *zap.Logger
}

func (m *Multi) Notify(ctx context.Context, e Event) error {
	if m == nil || len(m.Senders) == 0 || !eventMatch(m.Events, e.Type) {
		return nil
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for _, s := range m.Senders {
		if err := s.Notify(ctx, e); err != nil && m.Logger != nil {
			m.Logger.Warn("notification failed",
				zap.String("event", e.Type),
				zap.String("sender", fmt.Sprintf("%T", s)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// New builds the configured senders. Channels without credentials are skipped.
func New(cfg config.NotifyConfig, logger *zap.Logger) *Multi {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	m := &Multi{Events: cfg.Events, Timeout: timeout, Logger: logger}
	if u := strings.TrimSpace(cfg.WebhookURL); u != "" {
		m.Senders = append(m.Senders, Webhook{URL: u, HTTP: client})
	}
	if tok, chat := strings.TrimSpace(cfg.TelegramBotToken), strings.TrimSpace(cfg.TelegramChatID); tok != "" && chat != "" {
		m.Senders = append(m.Senders, Telegram{BotToken: tok, ChatID: chat, HTTP: client})
	}
	if u := strings.TrimSpace(cfg.SlackWebhookURL); u != "" {
		m.Senders = append(m.Senders, Slack{WebhookURL: u})
	}
	return m
}

func eventMatch(events []string, event string) bool {
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e == "*" || strings.EqualFold(e, event) {
			return true
		}
	}
	return false
}
