package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LeventeLantos/chat-hub/internal/broker"
	"github.com/LeventeLantos/chat-hub/internal/cache"
	"github.com/LeventeLantos/chat-hub/internal/client"
	"github.com/LeventeLantos/chat-hub/internal/config"
	"github.com/LeventeLantos/chat-hub/internal/dispatch"
	"github.com/LeventeLantos/chat-hub/internal/normalize"
	"github.com/LeventeLantos/chat-hub/internal/pipeline"
	"github.com/LeventeLantos/chat-hub/internal/repo"
	"github.com/LeventeLantos/chat-hub/internal/supervisor"
)

// Hub owns the worker pool and restarts the supervisor group, with fresh
// store connections, whenever one of its queues loses its stream.
type Hub struct {
	cfg   config.Config
	pool  *ants.Pool
	stats *supervisor.Registry
	log   *zap.Logger

	source    broker.Source
	openDB    func(ctx context.Context, dsn string) (*gorm.DB, error)
	openRedis func(ctx context.Context, url string) (*redis.Client, error)
}

func New(cfg config.Config, log *zap.Logger) (*Hub, error) {
	pool, err := ants.NewPool(cfg.Workers.PoolSize,
		ants.WithPanicHandler(func(p any) {
			log.Error("task panic recovered", zap.Any("panic", p), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}

	return &Hub{
		cfg:       cfg,
		pool:      pool,
		stats:     supervisor.NewRegistry(cfg.Broker.Queues()...),
		log:       log,
		source:    broker.NewAMQPSource(cfg.Broker, log.Named("broker")),
		openDB:    repo.Open,
		openRedis: openRedis,
	}, nil
}

// Run blocks until ctx is done. It never returns an error for connectivity
// problems; those are retried.
func (h *Hub) Run(ctx context.Context) error {
	delay := h.cfg.Broker.ReconnectDelay
	for {
		gen := h.stats.NextGeneration()
		log := h.log.With(zap.Uint64("generation", gen))

		res, ok := h.connectStores(ctx, log)
		if !ok {
			return nil
		}

		tasks := &sync.WaitGroup{}
		sup := supervisor.New(supervisor.Options{
			Source:     h.source,
			Pool:       h.pool,
			Handler:    h.handler(res).Handle,
			RetryDelay: delay,
			Tasks:      tasks,
			Stats:      h.stats,
			Log:        log.Named("supervisor"),
		})

		log.Info("starting consumers", zap.Strings("queues", h.cfg.Broker.Queues()))
		err := supervisor.RunGroup(ctx, h.cfg.Broker.Queues(), sup.Run)

		h.retire(res, tasks, log)

		if ctx.Err() != nil {
			log.Info("consumers stopped")
			return nil
		}
		if err == nil {
			err = errors.New("consumer group exited")
		}
		log.Error("consumer group failed, restarting", zap.Error(err), zap.Duration("restart_in", delay))
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

func (h *Hub) handler(res *resources) *pipeline.Router {
	store := repo.NewGormStore(res.db, h.log.Named("repo"))
	exec := client.NewExecutor(h.cfg.HTTP.Timeout, h.log.Named("client"))
	disp := dispatch.NewDispatcher(store, exec, h.log.Named("dispatch"))

	ing := pipeline.NewIngestor(
		normalize.New(h.cfg.Locale.CaptionLang),
		cache.NewRedisCache(res.rdb),
		h.log.Named("ingest"),
	)
	return pipeline.NewRouter(h.cfg.Broker.OutgoingQueue, disp, ing)
}

func (h *Hub) connectStores(ctx context.Context, log *zap.Logger) (*resources, bool) {
	for {
		res, err := h.openStores(ctx)
		if err == nil {
			return res, true
		}
		if ctx.Err() != nil {
			return nil, false
		}
		log.Warn("store connection failed, retrying", zap.Error(err), zap.Duration("retry_in", h.cfg.Broker.ReconnectDelay))
		if !sleep(ctx, h.cfg.Broker.ReconnectDelay) {
			return nil, false
		}
	}
}

func (h *Hub) openStores(ctx context.Context) (*resources, error) {
	db, err := h.openDB(ctx, h.cfg.Stores.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if h.cfg.Stores.AutoMigrate {
		if err := repo.Migrate(db.WithContext(ctx)); err != nil {
			_ = repo.Close(db)
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	rdb, err := h.openRedis(ctx, h.cfg.Stores.RedisURL)
	if err != nil {
		_ = repo.Close(db)
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &resources{db: db, rdb: rdb}, nil
}

// retire closes a generation's stores once its tasks have finished, without
// holding up the restart.
func (h *Hub) retire(res *resources, tasks *sync.WaitGroup, log *zap.Logger) {
	go func() {
		tasks.Wait()
		if err := res.Close(); err != nil {
			log.Warn("close retired stores", zap.Error(err))
			return
		}
		log.Debug("retired stores closed")
	}()
}

func (h *Hub) Status() supervisor.Snapshot {
	snap := h.stats.Snapshot()
	snap.Pool = supervisor.PoolStats{
		Capacity: h.pool.Cap(),
		Running:  h.pool.Running(),
		Free:     h.pool.Free(),
		Waiting:  h.pool.Waiting(),
	}
	return snap
}

func (h *Hub) Ready() bool { return h.stats.Ready() }

// ReportStats logs the current snapshot; it is the stats scheduler's tick.
func (h *Hub) ReportStats(context.Context) {
	snap := h.Status()
	fields := []zap.Field{
		zap.Uint64("generation", snap.Generation),
		zap.Int("pool_running", snap.Pool.Running),
		zap.Int("pool_waiting", snap.Pool.Waiting),
	}
	for _, q := range snap.Queues {
		fields = append(fields, zap.Any(q.Queue, q))
	}
	h.log.Info("hub stats", fields...)
}

// Close releases the worker pool. Tasks already running are not waited for.
func (h *Hub) Close() {
	h.pool.Release()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
