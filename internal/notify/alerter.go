// Package notify delivers operational alerts to Telegram and Discord. The
// Alerter watches refresh outcomes and raises an alert when congestion stays
// above the configured watermark for several consecutive refreshes or when
// refreshes keep failing, with a per-event cooldown so a bad hour does not
// page anyone twenty times.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

// Event types the Alerter can raise.
const (
	EventCongestion     = "congestion_alert"
	EventRefreshFailure = "refresh_failure"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// AlerterConfig tunes when alerts fire.
type AlerterConfig struct {
	// Events filters which event types are delivered. Empty allows all.
	Events []string
	// CongestionThreshold is the score at or above which a refresh counts
	// toward the congestion streak.
	CongestionThreshold float64
	// CongestionStreak is how many consecutive hot refreshes trigger the
	// congestion alert.
	CongestionStreak int
	// Cooldown is the minimum gap between two alerts of the same event type.
	Cooldown time.Duration
}

// Alerter turns refresh observations into notifications.
type Alerter struct {
	senders []Sender
	events  map[string]bool
	cfg     AlerterConfig
	logger  *slog.Logger

	mu       sync.Mutex
	streak   int
	lastSent map[string]time.Time
}

// NewAlerter creates an Alerter delivering to the given senders. Zero or
// negative config values fall back to sane defaults.
func NewAlerter(senders []Sender, cfg AlerterConfig, logger *slog.Logger) *Alerter {
	if cfg.CongestionThreshold <= 0 {
		cfg.CongestionThreshold = 0.9
	}
	if cfg.CongestionStreak < 1 {
		cfg.CongestionStreak = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}
	allowed := make(map[string]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Alerter{
		senders:  senders,
		events:   allowed,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "alerter")),
		lastSent: make(map[string]time.Time),
	}
}

// ObserveSnapshot feeds one successful refresh into the congestion tracker.
// The alert fires when the score has been at or above the threshold for the
// configured number of consecutive refreshes.
func (a *Alerter) ObserveSnapshot(ctx context.Context, snap domain.FeeSnapshot) {
	a.mu.Lock()
	if snap.NetworkCongestion < a.cfg.CongestionThreshold {
		a.streak = 0
		a.mu.Unlock()
		return
	}
	a.streak++
	fire := a.streak >= a.cfg.CongestionStreak
	streak := a.streak
	a.mu.Unlock()

	if !fire {
		return
	}
	a.raise(ctx, EventCongestion,
		"Network congestion high",
		fmt.Sprintf("Congestion score %.2f (base fee %.1f gwei, source %s) for %d consecutive refreshes.",
			snap.NetworkCongestion, snap.BaseFee, snap.Source, streak),
	)
}

// ObserveRefreshFailure raises a refresh-failure alert, subject to cooldown.
func (a *Alerter) ObserveRefreshFailure(ctx context.Context, err error) {
	a.raise(ctx, EventRefreshFailure,
		"Fee refresh failing",
		fmt.Sprintf("All fee sources failed on the last refresh: %v", err),
	)
}

// raise applies the event filter and cooldown, then dispatches.
func (a *Alerter) raise(ctx context.Context, event, title, message string) {
	if len(a.events) > 0 && !a.events[event] {
		a.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return
	}

	a.mu.Lock()
	if last, ok := a.lastSent[event]; ok && time.Since(last) < a.cfg.Cooldown {
		a.mu.Unlock()
		return
	}
	a.lastSent[event] = time.Now()
	a.mu.Unlock()

	if err := a.dispatch(ctx, title, message); err != nil {
		a.logger.WarnContext(ctx, "alert delivery incomplete",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// dispatch iterates over all senders. Errors from individual senders are
// collected into a combined error; a single sender failure does not prevent
// delivery to the remaining senders.
func (a *Alerter) dispatch(ctx context.Context, title, message string) error {
	if len(a.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range a.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		a.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// postJSON is the shared delivery primitive for webhook-style senders.
func postJSON(ctx context.Context, client *http.Client, name, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, string(respBody))
	}
	return nil
}
