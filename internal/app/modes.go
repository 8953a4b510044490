package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/gaspilot/internal/domain"
	"github.com/alanyoungcy/gaspilot/internal/server"
	"github.com/alanyoungcy/gaspilot/internal/server/handler"
	"github.com/alanyoungcy/gaspilot/internal/server/ws"
)

// Bus channel names mirror the hub channels behind a process-wide prefix so
// unrelated consumers of the same Redis can be filtered out.
const (
	busChannelPrefix = "gaspilot:"
	busPattern       = busChannelPrefix + "*"
)

func busChannel(channel string) string { return busChannelPrefix + channel }

// emitFunc delivers one envelope to a named channel. Each mode supplies its
// own: serve fans out through the bus (or the hub when no bus is configured),
// watch publishes to the bus only.
type emitFunc func(channel string, payload []byte)

// ServeMode runs the full service: the WebSocket hub, the REST API, and the
// background refresh loop that keeps the snapshot cache warm and pushes fee
// updates out to subscribers.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	startedAt := time.Now().UTC()
	hub := ws.NewHub(a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// When the bus is wired it is the single fan-out path: publishes loop
	// back through the bridge below, so every instance's clients see the
	// update exactly once. The hub is the direct path otherwise.
	emit := func(channel string, payload []byte) {
		if deps.Bus != nil {
			err := deps.Bus.Publish(ctx, busChannel(channel), payload)
			if err == nil {
				return
			}
			a.logger.WarnContext(ctx, "serve mode: bus publish failed, broadcasting locally only",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
		hub.Broadcast(channel, payload)
	}

	// Policy updates reach WebSocket subscribers the same way fee updates do.
	deps.Policies.OnUpdate(func(p domain.Policy) {
		payload, err := ws.Envelope(ws.TypePolicyUpdate, p)
		if err != nil {
			a.logger.Warn("serve mode: encode policy update",
				slog.String("error", err.Error()),
			)
			return
		}
		emit(ws.ChannelPolicy, payload)
	})

	// Bridge bus messages into the local hub so this node's clients see
	// updates regardless of which instance fetched them.
	if deps.Bus != nil {
		g.Go(func() error {
			ch, err := deps.Bus.Subscribe(ctx, busPattern)
			if err != nil {
				return fmt.Errorf("serve mode: subscribe %s: %w", busPattern, err)
			}
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case raw, ok := <-ch:
					if !ok {
						return nil
					}
					routeBusMessage(hub, raw)
				}
			}
		})
	}

	g.Go(func() error {
		return a.runRefreshLoop(ctx, deps, emit)
	})

	// HTTP server.
	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, but serve mode always runs the HTTP server")
	}
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Fees:   handler.NewFeeHandler(deps.Fees, deps.Policies, deps.Engine, a.logger),
		Policy: handler.NewPolicyHandler(deps.Policies, a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, startedAt, deps.Fees, deps.Policies, hub),
	}, hub, a.logger)

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("serve mode: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// WatchMode runs the refresh loop and alerting without the HTTP surface. It
// suits a dedicated poller instance that keeps the shared bus fed while the
// serve instances handle client traffic.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	if deps.Bus == nil && deps.Alerter == nil {
		a.logger.WarnContext(ctx, "watch mode has no bus and no notification channels; refreshes go nowhere")
	}

	emit := func(channel string, payload []byte) {
		if deps.Bus == nil {
			return
		}
		if err := deps.Bus.Publish(ctx, busChannel(channel), payload); err != nil {
			a.logger.WarnContext(ctx, "watch mode: bus publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}

	return a.runRefreshLoop(ctx, deps, emit)
}

// runRefreshLoop fetches a fresh snapshot immediately and then on every tick
// of the aggregator refresh interval, feeding outcomes to the alerter and
// emitting fee-update envelopes.
func (a *App) runRefreshLoop(ctx context.Context, deps *Dependencies, emit emitFunc) error {
	interval := a.cfg.Aggregator.RefreshInterval.Duration
	if interval <= 0 {
		interval = 30 * time.Second
	}

	refresh := func() {
		snap, err := deps.Fees.Refresh(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "refresh loop: fee refresh failed",
				slog.String("error", err.Error()),
			)
			if deps.Alerter != nil {
				deps.Alerter.ObserveRefreshFailure(ctx, err)
			}
			return
		}
		if deps.Alerter != nil {
			deps.Alerter.ObserveSnapshot(ctx, snap)
		}

		payload, err := ws.Envelope(ws.TypeFeeUpdate, snap)
		if err != nil {
			a.logger.WarnContext(ctx, "refresh loop: encode fee update",
				slog.String("error", err.Error()),
			)
			return
		}
		emit(ws.ChannelFees, payload)
	}

	// Prime the cache before the first tick so early API calls hit it.
	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			refresh()
		}
	}
}

// routeBusMessage inspects an envelope's type and forwards it to the matching
// hub channel. Unknown types are dropped; a newer instance on the same bus may
// speak types this one does not know.
func routeBusMessage(hub *ws.Hub, raw []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return
	}
	switch head.Type {
	case ws.TypeFeeUpdate:
		hub.Broadcast(ws.ChannelFees, raw)
	case ws.TypePolicyUpdate:
		hub.Broadcast(ws.ChannelPolicy, raw)
	case ws.TypeServiceStatus:
		hub.Broadcast(ws.ChannelStatus, raw)
	}
}
