package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"frameworks/lookout/internal/alarm"
	"frameworks/lookout/internal/config"
	"frameworks/lookout/internal/dispatch"
	"frameworks/lookout/internal/handlers"
	"frameworks/lookout/internal/metrics"
	"frameworks/lookout/internal/realtime"
	"frameworks/lookout/internal/store"
	"frameworks/lookout/pkg/clients"
	"frameworks/lookout/pkg/clients/monitor"
	"frameworks/lookout/pkg/logging"
	"frameworks/lookout/pkg/monitoring"
	"frameworks/lookout/pkg/redis"
	"frameworks/lookout/pkg/server"
	"frameworks/lookout/pkg/speech"
)

// app is the wired lookout service.
type app struct {
	cfg        config.Config
	logger     logging.Logger
	engine     *alarm.Engine
	client     *realtime.Client
	dispatcher *dispatch.Dispatcher
	loader     *store.Loader
	router     *gin.Engine
	redis      *goredis.Client

	preloadCtx context.Context
}

func newApp(ctx context.Context, cfg config.Config, logger logging.Logger, m *metrics.Metrics, hc *monitoring.HealthChecker, mc *monitoring.MetricsCollector) (*app, error) {
	a := &app{cfg: cfg, logger: logger, preloadCtx: ctx}

	speaker, err := a.buildSpeaker(ctx, m)
	if err != nil {
		return nil, err
	}

	history := alarm.NewHistory(alarm.DefaultHistorySize)
	a.engine = alarm.New(alarm.Options{
		Speaker:  speaker,
		Logger:   logger,
		Metrics:  m,
		OnNotify: history.Record,
	})
	a.engine.Configure(cfg.SpeechEnabled)

	channels := store.NewChannels()
	alerts := store.NewAlerts()
	source := monitor.NewClient(cfg.SourceURL, monitor.WithHTTPExecutorConfig(clients.HTTPExecutorConfig{
		MaxRetries: 3,
		OnRetry: func(attempt int, lastErr error) {
			logger.WithError(lastErr).WithField("attempt", attempt).Debug("Retrying monitor API request")
		},
	}))
	a.loader = store.NewLoader(source, channels, alerts, logger, m)
	a.dispatcher = dispatch.New(channels, alerts, a.engine, logger)

	wsURL, err := realtime.EndpointURL(cfg.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("realtime endpoint: %w", err)
	}
	a.client = realtime.NewClient(realtime.Config{
		URL:           wsURL,
		Logger:        logger,
		Metrics:       m,
		OnStateChange: a.onConnectionState,
	})

	hc.AddCheck("realtime", monitoring.ConnectivityHealthCheck("realtime", a.client.Connected))
	hc.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"LOOKOUT_SOURCE_URL":     cfg.SourceURL,
		"LOOKOUT_SPEECH_BACKEND": cfg.SpeechBackend,
	}))
	if a.redis != nil {
		rc := a.redis
		hc.AddCheck("redis", monitoring.PingHealthCheck("redis", func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}))
	}

	h := handlers.NewLookoutHandlers(handlers.Deps{
		Engine:        a.engine,
		Connection:    a.client,
		Channels:      channels,
		Alerts:        alerts,
		Acknowledger:  a.loader,
		Messages:      a.dispatcher,
		History:       history,
		SpeechBackend: cfg.SpeechBackend,
		Logger:        logger,
	})
	a.router = server.SetupServiceRouter(logger, "lookout", hc, mc)
	h.Register(a.router.Group("/api/v1"))
	a.router.NoRoute(h.HandleNotFound)

	return a, nil
}

// buildSpeaker picks the speech backend. The redis backend also keeps the
// client for health checks.
func (a *app) buildSpeaker(ctx context.Context, m *metrics.Metrics) (speech.Speaker, error) {
	switch a.cfg.SpeechBackend {
	case config.SpeechNone:
		return speech.Nop{}, nil
	case config.SpeechRedis:
		rc, err := redis.NewClientFromURL(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("speech redis: %w", err)
		}
		a.redis = rc

		breakerCfg := clients.DefaultCircuitBreakerConfig("speech-broadcast")
		breakerCfg.Logger = a.logger
		breakerCfg.OnStateChange = func(name string, _, to clients.CircuitBreakerState) {
			m.BreakerTransition(name, to.String())
		}
		pubsub := redis.NewTypedPubSub[speech.Cue](rc, a.logger)
		return speech.NewBroadcaster(pubsub, a.cfg.SpeechChannel, clients.NewCircuitBreaker(breakerCfg), a.logger), nil
	default:
		cmd := speech.NewCommand(a.cfg.SpeechCommand, speech.EspeakArgs, a.logger)
		if !cmd.Available() {
			a.logger.WithField("binary", a.cfg.SpeechCommand).Warn("Speech binary not found, running silent")
		}
		return cmd, nil
	}
}

// onConnectionState runs with the realtime client locked, so the preload
// goes to its own goroutine.
func (a *app) onConnectionState(s realtime.State) {
	if s != realtime.StateOpen || !a.cfg.Preload {
		return
	}
	go func() {
		_ = a.loader.Preload(a.preloadCtx)
	}()
}

// run serves HTTP and the realtime session until ctx is done, then stops the
// client and the engine before returning.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	serverCfg := server.DefaultConfig("lookout", a.cfg.Port)
	serverCfg.Port = a.cfg.Port
	g.Go(func() error {
		return server.Start(gctx, serverCfg, a.router, a.logger)
	})

	if a.cfg.SuppressionSweep > 0 {
		g.Go(func() error {
			a.engine.RunSweeper(gctx, a.cfg.SuppressionSweep)
			return nil
		})
	}

	a.client.Start(a.dispatcher.Handle)
	a.logger.WithFields(logging.Fields{
		"url":     a.client.URL(),
		"port":    a.cfg.Port,
		"speech":  a.cfg.SpeechBackend,
		"enabled": strconv.FormatBool(a.cfg.SpeechEnabled),
	}).Info("Lookout running")

	g.Go(func() error {
		<-gctx.Done()
		a.client.Stop()
		a.engine.Close()
		if a.redis != nil {
			_ = a.redis.Close()
		}
		return nil
	})

	return g.Wait()
}
