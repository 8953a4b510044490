package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	busredis "github.com/alanyoungcy/gaspilot/internal/bus/redis"
	"github.com/alanyoungcy/gaspilot/internal/config"
	"github.com/alanyoungcy/gaspilot/internal/domain"
	"github.com/alanyoungcy/gaspilot/internal/notify"
	"github.com/alanyoungcy/gaspilot/internal/optimizer"
	"github.com/alanyoungcy/gaspilot/internal/platform/ethrpc"
	"github.com/alanyoungcy/gaspilot/internal/platform/gasstation"
	"github.com/alanyoungcy/gaspilot/internal/platform/scanapi"
	"github.com/alanyoungcy/gaspilot/internal/service"
)

// Dependencies bundles every long-lived component that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Optional members are nil when their config section is
// disabled or empty.
type Dependencies struct {
	// Core services
	Fees     *service.FeeService
	Policies *service.PolicyService
	Engine   *optimizer.Engine

	// Bus fans fee and policy updates out across instances. Nil when Redis
	// is disabled; updates then stay in-process.
	Bus domain.FeeBus

	// Alerter raises congestion and refresh-failure notifications. Nil when
	// no notification channel is configured.
	Alerter *notify.Alerter
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Fee sources: gas station primary, scan oracle fallback, optional RPC ---
	primary := gasstation.NewClient(
		cfg.Oracle.GasStation.BaseURL,
		cfg.Oracle.GasStation.Timeout.Duration,
	)
	fallbacks := []domain.FeeSource{
		scanapi.NewClient(
			cfg.Oracle.Scan.BaseURL,
			cfg.Oracle.Scan.APIKey,
			cfg.Oracle.Scan.Timeout.Duration,
		),
	}
	if cfg.Oracle.RPC.Enabled {
		rpcClient, err := ethrpc.NewClient(cfg.Oracle.RPC.URL, cfg.Oracle.RPC.HistoryBlocks)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: rpc fee source: %w", err)
		}
		closers = append(closers, rpcClient.Close)
		fallbacks = append(fallbacks, rpcClient)
	}

	deps.Fees = service.NewFeeService(
		primary,
		fallbacks,
		cfg.Aggregator.RefreshInterval.Duration,
		cfg.Aggregator.MaxRetries,
		logger,
	)

	// --- Policy and optimizer ---
	initial := domain.Policy{
		Aggressiveness:     domain.Aggressiveness(strings.ToLower(cfg.Policy.Aggressiveness)),
		MaxWaitTimeSeconds: cfg.Policy.MaxWaitTimeSeconds,
		MinSavingsPercent:  cfg.Policy.MinSavingsPercent,
		FeePercent:         cfg.Policy.FeePercent,
	}
	deps.Policies = service.NewPolicyService(initial, logger)
	deps.Engine = optimizer.NewEngine(logger)

	// --- Redis bus (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := busredis.New(ctx, busredis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = busredis.NewFeeBus(redisClient)
		logger.InfoContext(ctx, "redis bus connected", slog.String("addr", cfg.Redis.Addr))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Alerter = notify.NewAlerter(senders, notify.AlerterConfig{
			Events:              cfg.Notify.Events,
			CongestionThreshold: cfg.Notify.CongestionThreshold,
			CongestionStreak:    cfg.Notify.CongestionStreak,
			Cooldown:            cfg.Notify.Cooldown.Duration,
		}, logger)
	}

	return deps, cleanup, nil
}
