// Package app wires the daemon together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"wallet-notifier/internal/api"
	"wallet-notifier/internal/config"
	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/errtrack"
	"wallet-notifier/internal/horizon"
	"wallet-notifier/internal/multisig"
	"wallet-notifier/internal/notify"
	"wallet-notifier/internal/observability"
	"wallet-notifier/internal/pipeline"
	"wallet-notifier/internal/singleton"
	"wallet-notifier/internal/storage"
	chstore "wallet-notifier/internal/storage/clickhouse"
	"wallet-notifier/internal/storage/memory"
	"wallet-notifier/internal/storage/migrations"
	pgstore "wallet-notifier/internal/storage/postgres"
	"wallet-notifier/internal/worker"
)

var networks = []domain.Network{domain.NetworkMainnet, domain.NetworkTestnet}

// stores holds the storage implementations.
type stores struct {
	accounts storage.AccountStore
	trades   storage.TradeStore
	cursors  storage.CursorStore
}

// App centralizes dependency wiring for the daemon.
type App struct {
	cfg    *config.Config
	logger *log.Logger

	limiter *horizon.Limiter
	proxy   singleton.Value[*worker.Proxy]

	stores   stores
	tracker  *errtrack.Tracker
	redis    *redis.Client
	shell    *notify.Redis
	notifier *pipeline.Notifier

	closers []func()
}

// New creates an App. Nothing is connected until Run.
func New(cfg *config.Config, logger *log.Logger) *App {
	return &App{
		cfg:     cfg,
		logger:  logger,
		limiter: horizon.NewLimiter(cfg.Horizon.RateLimit, cfg.Horizon.Burst),
	}
}

// Run connects every component and blocks until ctx is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.cleanup()

	observability.RecordStart()

	if err := a.openStores(ctx); err != nil {
		return err
	}
	a.tracker = a.newTracker()

	dispatcher := a.newDispatcher()

	proxy, err := a.Worker(ctx)
	if err != nil {
		return err
	}

	n := pipeline.NewNotifier(a.streamSources(), proxy).
		WithDispatcher(dispatcher).
		WithTracker(a.tracker).
		WithTradeStore(a.stores.trades).
		WithCursorStore(a.stores.cursors).
		WithActivityLimit(a.cfg.Pipeline.ActivityLimit).
		WithDebounceDelay(a.cfg.Pipeline.DebounceDelay).
		WithLogger(log.New(a.logger.Writer(), "[pipeline] ", a.logger.Flags()))

	if a.cfg.Multisig.URL != "" {
		client, err := multisig.NewClient(ctx, a.cfg.Multisig.URL, nil,
			log.New(a.logger.Writer(), "[multisig] ", a.logger.Flags()))
		if err != nil {
			return fmt.Errorf("connect multisig service: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		n.WithSignatureSource(client)
	}
	a.notifier = n

	g, gctx := errgroup.WithContext(ctx)

	if err := n.Start(gctx); err != nil {
		return fmt.Errorf("start notifier: %w", err)
	}
	defer n.Stop()

	if err := a.trackAccounts(gctx); err != nil {
		return err
	}

	server := api.New(api.Deps{
		Notifier: n,
		Worker:   proxy,
		Accounts: a.stores.accounts,
		Trades:   a.stores.trades,
		Cursors:  a.stores.cursors,
		Errors:   a.tracker,
		Logger:   log.New(a.logger.Writer(), "[api] ", a.logger.Flags()),
	})
	g.Go(func() error {
		return server.ListenAndServe(gctx, a.cfg.HTTPAddr)
	})

	if a.shell != nil {
		g.Go(func() error {
			if err := a.shell.ListenClicks(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("listen clicks: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// Worker returns the proxy of the background worker, spawning it on first
// use. The worker owns one Horizon REST client per network.
func (a *App) Worker(ctx context.Context) (*worker.Proxy, error) {
	return a.proxy.Get(func() (*worker.Proxy, error) {
		logger := log.New(a.logger.Writer(), "[worker] ", a.logger.Flags())
		factory := func(ctx context.Context) (worker.Handler, error) {
			clients := make(map[domain.Network]horizon.API, len(networks))
			for _, network := range networks {
				clients[network] = a.horizonClient(network, logger)
			}
			return worker.NewNetWorker(ctx, clients,
				worker.WithProbeInterval(a.cfg.Worker.ProbeInterval),
				worker.WithNetLogger(logger),
			), nil
		}
		bridge := worker.Spawn(ctx, factory,
			worker.WithLogger(logger),
			worker.WithQueueSize(a.cfg.Worker.QueueSize),
		)
		return worker.NewProxy(bridge), nil
	})
}

// Notifier returns the running notifier, nil before Run.
func (a *App) Notifier() *pipeline.Notifier {
	return a.notifier
}

func (a *App) horizonClient(network domain.Network, logger *log.Logger) *horizon.Client {
	return horizon.NewClient(network, a.cfg.Horizon.URL(network),
		horizon.WithTimeout(a.cfg.Horizon.Timeout),
		horizon.WithLimiter(a.limiter),
		horizon.WithLogger(logger),
	)
}

// streamSources creates the effect stream clients. Streams stay on the main
// side so that pausing the worker never drops effects.
func (a *App) streamSources() map[domain.Network]horizon.EffectSource {
	logger := log.New(a.logger.Writer(), "[horizon] ", a.logger.Flags())
	sources := make(map[domain.Network]horizon.EffectSource, len(networks))
	for _, network := range networks {
		client := a.horizonClient(network, logger)
		a.closers = append(a.closers, func() { _ = client.Close() })
		sources[network] = client
	}
	return sources
}

func (a *App) openStores(ctx context.Context) error {
	if a.cfg.UseMemory {
		a.logger.Println("Using in-memory storage")
		a.stores = stores{
			accounts: memory.NewAccountStore(),
			trades:   memory.NewTradeStore(),
			cursors:  memory.NewCursorStore(),
		}
		return nil
	}

	pool, err := pgstore.NewPool(ctx, a.cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, a.cfg.ClickHouseDSN)
	if err != nil {
		return fmt.Errorf("clickhouse migrations: %w", err)
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })

	a.stores = stores{
		accounts: pgstore.NewAccountStore(pool),
		trades:   chstore.NewTradeStore(conn),
		cursors:  pgstore.NewCursorStore(pool),
	}
	return nil
}

func (a *App) newTracker() *errtrack.Tracker {
	logger := log.New(a.logger.Writer(), "[errtrack] ", a.logger.Flags())
	if len(a.cfg.Kafka.Brokers) == 0 {
		return errtrack.New(logger)
	}
	sink := errtrack.NewKafkaSink(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
	a.closers = append(a.closers, func() {
		if err := sink.Close(); err != nil {
			a.logger.Printf("error closing Kafka sink: %v", err)
		}
	})
	a.logger.Printf("Reporting errors to Kafka topic %s", a.cfg.Kafka.Topic)
	return errtrack.New(logger, sink)
}

func (a *App) newDispatcher() notify.Dispatcher {
	logger := log.New(a.logger.Writer(), "[notify] ", a.logger.Flags())
	if a.cfg.Redis.Addr == "" {
		return notify.NewLogDispatcher(logger)
	}

	a.redis = redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr})
	a.closers = append(a.closers, func() {
		if err := a.redis.Close(); err != nil {
			a.logger.Printf("error closing Redis client: %v", err)
		}
	})

	cfg := notify.DefaultRedisConfig()
	if a.cfg.Redis.NotifyChannel != "" {
		cfg.NotifyChannel = a.cfg.Redis.NotifyChannel
	}
	if a.cfg.Redis.ClickChannel != "" {
		cfg.ClickChannel = a.cfg.Redis.ClickChannel
	}
	if a.cfg.Redis.NavigateChannel != "" {
		cfg.NavigateChannel = a.cfg.Redis.NavigateChannel
	}
	a.shell = notify.NewRedis(a.redis, cfg, logger)
	return a.shell
}

// trackAccounts stores the statically configured accounts, then tracks every
// stored account. A failing account is reported and skipped.
func (a *App) trackAccounts(ctx context.Context) error {
	now := time.Now().UTC().UnixMilli()
	for _, ac := range a.cfg.Accounts {
		account := &domain.Account{
			ID:        domain.AccountID(ac.PublicKey, ac.Testnet),
			Name:      ac.Name,
			PublicKey: ac.PublicKey,
			Testnet:   ac.Testnet,
			CreatedAt: now,
		}
		if err := a.stores.accounts.Upsert(ctx, account); err != nil {
			return fmt.Errorf("store account %s: %w", account.ID, err)
		}
	}

	accounts, err := a.stores.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, account := range accounts {
		if err := a.notifier.Track(*account); err != nil {
			a.tracker.Track(ctx, "track", err, map[string]string{"account": account.ID})
		}
	}
	a.logger.Printf("Tracking %d accounts", len(accounts))
	return nil
}

func (a *App) cleanup() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
