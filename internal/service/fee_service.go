package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/gaspilot/internal/domain"
)

// FeeService aggregates the configured fee sources behind an in-memory
// snapshot cache. It guarantees at most one upstream round-trip in flight at
// a time: concurrent callers join the pending fetch and share its outcome.
type FeeService struct {
	primary         domain.FeeSource
	fallbacks       []domain.FeeSource
	refreshInterval time.Duration
	maxRetries      int
	logger          *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	snapshot domain.FeeSnapshot
	hasSnap  bool
	inflight bool
	stats    FeeStats
}

// FeeStats is a point-in-time view of aggregator activity for diagnostics.
type FeeStats struct {
	Fetches         uint64    `json:"fetches"`
	PrimaryFailures uint64    `json:"primaryFailures"`
	Fallbacks       uint64    `json:"fallbacks"`
	Failures        uint64    `json:"failures"`
	RetryCounter    int       `json:"retryCounter"`
	LastSource      string    `json:"lastSource,omitempty"`
	LastError       string    `json:"lastError,omitempty"`
	LastFetchedAt   time.Time `json:"lastFetchedAt"`
}

// NewFeeService creates the aggregator. Sources after the first in fallbacks
// are tried in order, one attempt each, once the primary exhausts its retries.
func NewFeeService(
	primary domain.FeeSource,
	fallbacks []domain.FeeSource,
	refreshInterval time.Duration,
	maxRetries int,
	logger *slog.Logger,
) *FeeService {
	if refreshInterval <= 0 {
		refreshInterval = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &FeeService{
		primary:         primary,
		fallbacks:       fallbacks,
		refreshInterval: refreshInterval,
		maxRetries:      maxRetries,
		logger:          logger.With(slog.String("component", "fee_service")),
	}
}

// Snapshot returns the cached snapshot when it is younger than the refresh
// interval and nothing is being fetched; otherwise it joins or starts a
// fetch and returns that result.
func (s *FeeService) Snapshot(ctx context.Context) (domain.FeeSnapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshot, s.hasSnap
	busy := s.inflight
	s.mu.RUnlock()

	if ok && !busy && !snap.Stale(s.refreshInterval) {
		return snap, nil
	}
	return s.fetchShared(ctx)
}

// Refresh forces a fetch, joining any already in flight. The refresh loop
// uses it to keep the cache warm on a fixed cadence.
func (s *FeeService) Refresh(ctx context.Context) (domain.FeeSnapshot, error) {
	return s.fetchShared(ctx)
}

// Cached returns the last stored snapshot regardless of age. Diagnostics and
// degraded responses use it; optimization paths should use Snapshot.
func (s *FeeService) Cached() (domain.FeeSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.hasSnap
}

// Stats returns a copy of the aggregator counters.
func (s *FeeService) Stats() FeeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *FeeService) fetchShared(ctx context.Context) (domain.FeeSnapshot, error) {
	v, err, _ := s.group.Do("fees", func() (any, error) {
		// Joined callers still need the result when the initiating caller
		// goes away, so the fetch itself is never cancelled. Per-source
		// HTTP timeouts bound it instead.
		return s.fetch(context.WithoutCancel(ctx))
	})
	if err != nil {
		return domain.FeeSnapshot{}, err
	}
	return v.(domain.FeeSnapshot), nil
}

// fetch runs one full source pass: the primary with retries, then each
// fallback once. The consecutive-failure counter resets after the fallback
// pass whatever its outcome.
func (s *FeeService) fetch(ctx context.Context) (domain.FeeSnapshot, error) {
	s.setInflight(true)
	defer s.setInflight(false)

	var lastErr error

	for attempt := 1; attempt <= s.maxRetries+1; attempt++ {
		snap, err := s.primary.FetchFees(ctx)
		if err == nil {
			s.store(snap, s.primary.Name())
			return snap, nil
		}
		lastErr = err
		s.bumpRetry()
		s.logger.WarnContext(ctx, "primary fee source failed",
			slog.String("source", s.primary.Name()),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	defer s.resetRetry()

	for _, src := range s.fallbacks {
		snap, err := src.FetchFees(ctx)
		if err == nil {
			s.mu.Lock()
			s.stats.Fallbacks++
			s.mu.Unlock()
			s.store(snap, src.Name())
			s.logger.InfoContext(ctx, "fallback fee source served snapshot",
				slog.String("source", src.Name()),
			)
			return snap, nil
		}
		lastErr = err
		s.logger.WarnContext(ctx, "fallback fee source failed",
			slog.String("source", src.Name()),
			slog.String("error", err.Error()),
		)
	}

	s.mu.Lock()
	s.stats.Failures++
	if lastErr != nil {
		s.stats.LastError = lastErr.Error()
	}
	s.mu.Unlock()
	return domain.FeeSnapshot{}, fmt.Errorf("fee_service: all sources failed: %w: %v",
		domain.ErrUpstreamUnavailable, lastErr)
}

func (s *FeeService) store(snap domain.FeeSnapshot, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
	s.hasSnap = true
	s.stats.Fetches++
	s.stats.RetryCounter = 0
	s.stats.LastSource = source
	s.stats.LastError = ""
	s.stats.LastFetchedAt = snap.FetchedAt
}

func (s *FeeService) setInflight(v bool) {
	s.mu.Lock()
	s.inflight = v
	s.mu.Unlock()
}

func (s *FeeService) bumpRetry() {
	s.mu.Lock()
	s.stats.RetryCounter++
	s.stats.PrimaryFailures++
	s.mu.Unlock()
}

func (s *FeeService) resetRetry() {
	s.mu.Lock()
	s.stats.RetryCounter = 0
	s.mu.Unlock()
}
