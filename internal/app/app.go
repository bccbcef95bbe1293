package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"financial-alarms/internal/alerting"
	"financial-alarms/internal/cache"
	"financial-alarms/internal/config"
	"financial-alarms/internal/fetcher"
	"financial-alarms/internal/metrics"
	"financial-alarms/internal/scheduler"
	"financial-alarms/internal/service"
	"financial-alarms/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newGateway assembles the per-asset-class market data routing, optionally
// fronted by the shared series cache.
func (a *App) newGateway() (fetcher.SeriesFetcher, func()) {
	crypto := fetcher.NewBinance(fetcher.BinanceOptions{
		BaseURL:   a.Config.Market.Binance.BaseURL,
		Interval:  a.Config.Market.Binance.Interval,
		Timeout:   a.Config.Market.Binance.RequestTimeout,
		UserAgent: a.Config.Market.Binance.UserAgent,
	}, a.Logger)

	quote := fetcher.NewQuoteAPI(fetcher.QuoteAPIOptions{
		BaseURL:   a.Config.Market.Quote.BaseURL,
		APIKey:    a.Config.Market.Quote.APIKey,
		Timeout:   a.Config.Market.Quote.RequestTimeout,
		UserAgent: a.Config.Market.Quote.UserAgent,
	}, a.Logger)

	router := fetcher.NewRouter(crypto, quote)
	closer := func() {}

	if !a.Config.Cache.Enabled {
		return router, closer
	}

	var store cache.Cache
	redisCache := cache.NewRedis(cache.RedisOptions{
		Addr:     a.Config.Cache.Addr,
		Password: a.Config.Cache.Password,
		DB:       a.Config.Cache.DB,
		Prefix:   a.Config.Cache.Prefix,
	})
	if err := redisCache.Ping(context.Background()); err != nil {
		a.Logger.Warn().Err(err).Msg("redis unreachable, falling back to in-process cache")
		store = cache.NewMemory()
	} else {
		store = redisCache
		closer = func() {
			_ = redisCache.Close()
		}
	}

	return fetcher.NewCached(router, store, a.Config.Cache.TTL, a.Logger), closer
}

func (a *App) newNotifier() alerting.Notifier {
	smtp := a.Config.Alerting.SMTP
	if smtp.Host == "" {
		return nil
	}

	base := alerting.NewSMTPNotifier(alerting.SMTPOptions{
		Host:     smtp.Host,
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		From:     smtp.From,
		Timeout:  smtp.Timeout,
	}, a.Logger)

	return alerting.WithRetry(base, a.Config.Alerting.MaxAttempts, a.Config.Alerting.RetryBackoff, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(ctx context.Context) (*service.Service, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	gateway, closeGateway := a.newGateway()

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("alerting.smtp.host not configured; fired alarms will park as failed")
	}

	var m *metrics.Metrics
	if a.Config.Metrics.Enabled {
		m = metrics.NewMetrics()
	}

	svc := service.New(a.Config, sched, store, gateway, notifier, m, a.Logger)
	closer := func() {
		closeGateway()
		closeStore()
	}
	return svc, closer, nil
}

// Run executes the long-running alarm evaluation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closeSvc, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closeSvc()

	if a.Config.Metrics.Enabled {
		go func() {
			if serveErr := metrics.Serve(ctx, a.Config.Metrics.Addr, a.Logger); serveErr != nil && !errors.Is(serveErr, context.Canceled) {
				a.Logger.Error().Err(serveErr).Msg("metrics listener terminated")
			}
		}()
	}

	// 后台清扫 triggered/failed 的过期记录。
	go func() {
		_ = scheduler.RunEvery(ctx, a.Config.Sweeper.Interval, a.Logger, func(ctx context.Context) error {
			_, cleanErr := svc.Cleanup(ctx)
			return cleanErr
		})
	}()

	a.Logger.Info().Msg("starting alarm evaluation service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("alarm evaluation service stopped")
	return nil
}

// Tick runs a single evaluation sweep and exits. Useful for cron-driven
// deployments and smoke tests.
func (a *App) Tick(ctx context.Context) error {
	svc, closeSvc, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closeSvc()

	summary, err := svc.Sweep(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("evaluated", summary.Evaluated).
		Int("notified", summary.Notified).
		Int("failed", summary.Failed).
		Msg("single sweep finished")
	return nil
}

// Cleanup runs one stale-record sweep and exits.
func (a *App) Cleanup(ctx context.Context) error {
	svc, closeSvc, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closeSvc()

	_, err = svc.Cleanup(ctx)
	return err
}
