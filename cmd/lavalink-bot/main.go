// cmd/lavalink-bot/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keshon/lavalink/internal/config"
	"github.com/keshon/lavalink/internal/discord"
	"github.com/keshon/lavalink/internal/lavalink"
	applog "github.com/keshon/lavalink/internal/log"
	"github.com/keshon/lavalink/pkg/jobmgr"
	"github.com/keshon/lavalink/pkg/retrylimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const supervisorJob = "node-supervisor"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := applog.New(applog.Config{Console: true, Output: os.Stderr})
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := applog.New(applog.Config{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Service: "lavalink-bot",
	})
	if cfg.DiscordToken == "" {
		logger.Fatal().Msg("DISCORD_TOKEN is not set")
	}
	logger.Info().Str("node", cfg.BaseURL()).Int("shards", cfg.Shards).Msg("starting bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsSrv := serveMetrics(cfg.MetricsAddr, reg, logger)

	bot, err := discord.New(discord.Config{
		Token:        cfg.DiscordToken,
		Shards:       cfg.Shards,
		SearchPrefix: cfg.SearchPrefix,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create discord bot")
	}
	userID, err := bot.Open()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open discord session")
	}
	if cfg.UserID != "" && cfg.UserID != userID {
		logger.Warn().Str("configured", cfg.UserID).Str("actual", userID).Msg("configured user id does not match the bot, using the bot's")
	}

	lost := make(chan struct{}, 1)
	reconnect := retrylimit.DefaultRetryConfig()
	reconnect.MaxAttempts = cfg.ReconnectAttempts
	if reconnect.MaxAttempts == 0 {
		reconnect.MaxAttempts = 1
	}

	node, err := lavalink.NewNode(lavalink.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Password:       cfg.Password,
		UserID:         userID,
		Shards:         cfg.Shards,
		ClientName:     cfg.ClientName,
		Voice:          bot.Gateway(),
		ConnectTimeout: cfg.ConnectTimeout,
		Reconnect:      reconnect,
		SearchTimeout:  cfg.SearchTimeout,
		SearchLimiter:  retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		Logger:         logger,
		Registerer:     reg,
		OnTrackEnd:     bot.OnTrackEnd,
		OnStateChange: func(from, to lavalink.State, err error) {
			// Runs on the receive loop; the supervisor does the reconnect.
			if from == lavalink.StateConnected && to == lavalink.StateIdle && errors.Is(err, lavalink.ErrTransport) {
				select {
				case lost <- struct{}{}:
				default:
				}
			}
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create lavalink node")
	}
	bot.Attach(node)

	errCh := make(chan error, 1)
	jobs := jobmgr.NewManager(func(name string, s jobmgr.Status, err error) {
		logger.Debug().Str("job", name).Str("status", string(s)).Err(err).Msg("job status")
		if s == jobmgr.StatusError {
			select {
			case errCh <- err:
			default:
			}
		}
	})
	if err := jobs.StartAsync(ctx, supervisorJob, func(ctx context.Context) error {
		return superviseNode(ctx, node, lost, logger)
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to start node supervisor")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("received signal, shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("lavalink node gave up")
	}

	cancel()
	jobs.StopAll()
	node.Destroy()
	if err := bot.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close discord sessions")
	}
	if metricsSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info().Msg("bot exited cleanly")
}

// superviseNode connects the node and reconnects it every time the channel
// is lost, until ctx ends or the retry budget runs out.
func superviseNode(ctx context.Context, node *lavalink.Node, lost <-chan struct{}, logger zerolog.Logger) error {
	if err := node.ConnectWithRetry(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect to lavalink: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-lost:
			logger.Warn().Str("node", node.Addr()).Msg("lavalink connection lost, reconnecting")
			if err := node.ConnectWithRetry(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("reconnect to lavalink: %w", err)
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}
