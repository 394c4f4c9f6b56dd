package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/LeventeLantos/chat-hub/internal/broker"
	"github.com/LeventeLantos/chat-hub/internal/config"
)

type fakeAck struct{ n atomic.Int32 }

func (a *fakeAck) Ack(uint64, bool) error {
	a.n.Add(1)
	return nil
}

func (a *fakeAck) Nack(uint64, bool, bool) error { return nil }
func (a *fakeAck) Reject(uint64, bool) error     { return nil }

type fakeStream struct {
	ch        chan amqp.Delivery
	closeOnce sync.Once
}

func (s *fakeStream) Deliveries() <-chan amqp.Delivery { return s.ch }
func (s *fakeStream) Err() error                       { return errors.New("channel closed by broker") }
func (s *fakeStream) Close() error                     { return nil }

func (s *fakeStream) kill() { s.closeOnce.Do(func() { close(s.ch) }) }

type fakeSource struct {
	mu      sync.Mutex
	streams map[string][]*fakeStream
}

func (f *fakeSource) Consume(ctx context.Context, queue string) (broker.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streams == nil {
		f.streams = map[string][]*fakeStream{}
	}
	s := &fakeStream{ch: make(chan amqp.Delivery)}
	f.streams[queue] = append(f.streams[queue], s)
	return s, nil
}

func (f *fakeSource) latest(queue string) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	ss := f.streams[queue]
	return ss[len(ss)-1]
}

type harness struct {
	hub    *Hub
	source *fakeSource
	mr     *miniredis.Miniredis
	dbPath string

	mu  sync.Mutex
	dbs []*gorm.DB
}

func newHarness(t *testing.T, log *zap.Logger) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	h := &harness{
		source: &fakeSource{},
		mr:     mr,
		dbPath: filepath.Join(t.TempDir(), "hub.db"),
	}

	cfg := config.Config{
		Broker: config.BrokerConfig{
			OutgoingQueue:  "outgoing_requests",
			IncomingQueues: []string{"incoming_requests", "incoming_webhooks", "incoming_contacts"},
			Prefetch:       1,
			ReconnectDelay: 10 * time.Millisecond,
		},
		Stores: config.StoresConfig{
			DatabaseURL: h.dbPath,
			RedisURL:    "redis://" + mr.Addr() + "/0",
			AutoMigrate: true,
		},
		Workers: config.WorkersConfig{PoolSize: 8},
		HTTP:    config.HTTPConfig{Timeout: time.Second},
		Locale:  config.LocaleConfig{CaptionLang: "pt-BR"},
	}

	hub, err := New(cfg, log)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(hub.Close)

	hub.source = h.source
	hub.openDB = func(ctx context.Context, dsn string) (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.dbs = append(h.dbs, db)
		h.mu.Unlock()
		return db, nil
	}
	h.hub = hub
	return h
}

func (h *harness) start(t *testing.T) (cancel func(), done <-chan error) {
	t.Helper()

	ctx, cancelFn := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.hub.Run(ctx) }()
	t.Cleanup(cancelFn)

	waitFor(t, h.hub.Ready)
	return cancelFn, errc
}

func (h *harness) openedDBs() []*gorm.DB {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*gorm.DB(nil), h.dbs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func queueFailed(h *Hub, queue string) uint64 {
	for _, q := range h.Status().Queues {
		if q.Queue == queue {
			return q.Failed
		}
	}
	return 0
}

func TestHub_MalformedOutgoingIsAckedWithoutWrites(t *testing.T) {
	t.Parallel()

	h := newHarness(t, zap.NewNop())
	h.start(t)

	ack := &fakeAck{}
	h.source.latest("outgoing_requests").ch <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`{"action":"upsertChat",`)}

	waitFor(t, func() bool { return ack.n.Load() == 1 })
	waitFor(t, func() bool { return queueFailed(h.hub, "outgoing_requests") == 1 })

	db := h.openedDBs()[0]
	for _, table := range []string{"chats", "customers", "messages"} {
		var n int64
		if err := db.Table(table).Count(&n).Error; err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Fatalf("expected no rows in %s, got %d", table, n)
		}
	}
}

func TestHub_OutgoingUpsertReachesStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t, zap.NewNop())
	h.start(t)

	ack := &fakeAck{}
	body := `{"action":"upsertCustomer","id":"cu1","name":"Ana","number":"5511987654321","last_chat_id":null}`
	h.source.latest("outgoing_requests").ch <- amqp.Delivery{Acknowledger: ack, Body: []byte(body)}

	db := h.openedDBs()[0]
	waitFor(t, func() bool {
		var n int64
		return db.Table("customers").Where("id = ?", "cu1").Count(&n).Error == nil && n == 1
	})
}

func TestHub_IncomingMessageLandsInCache(t *testing.T) {
	t.Parallel()

	h := newHarness(t, zap.NewNop())
	h.start(t)

	payload := `{"sender":"me","data":{"key":{"remoteJid":"551187654321@s.whatsapp.net","id":"A"},"message":{"conversation":"oi"}}}`
	h.source.latest("incoming_webhooks").ch <- amqp.Delivery{Acknowledger: &fakeAck{}, Body: []byte(payload)}

	waitFor(t, func() bool {
		msgs, err := h.mr.List("chat:5511987654321@s.whatsapp.net:messages")
		return err == nil && len(msgs) == 1
	})
}

func TestHub_StreamLossRestartsGroupWithFreshStores(t *testing.T) {
	t.Parallel()

	h := newHarness(t, zap.NewNop())
	h.start(t)

	if g := h.hub.Status().Generation; g != 1 {
		t.Fatalf("expected generation 1, got %d", g)
	}

	h.source.latest("incoming_contacts").kill()

	waitFor(t, func() bool { return h.hub.Status().Generation == 2 && h.hub.Ready() })

	dbs := h.openedDBs()
	if len(dbs) != 2 {
		t.Fatalf("expected a fresh database handle per generation, got %d", len(dbs))
	}
	waitFor(t, func() bool {
		sqlDB, err := dbs[0].DB()
		return err == nil && sqlDB.Ping() != nil
	})

	h.source.latest("outgoing_requests").ch <- amqp.Delivery{Acknowledger: &fakeAck{}, Body: []byte(`{"action":"upsertMessage","id":"m1","from":"a","to":"b","text":"t","delivered":false,"chat_id":"c"}`)}
	waitFor(t, func() bool {
		var n int64
		return dbs[1].Table("messages").Count(&n).Error == nil && n == 1
	})
}

func TestHub_RetriesStoreConnection(t *testing.T) {
	t.Parallel()

	h := newHarness(t, zap.NewNop())
	open := h.hub.openDB
	var attempts atomic.Int32
	h.hub.openDB = func(ctx context.Context, dsn string) (*gorm.DB, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		return open(ctx, dsn)
	}

	h.start(t)
	if n := attempts.Load(); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestHub_ShutdownReturnsNil(t *testing.T) {
	t.Parallel()

	h := newHarness(t, zap.NewNop())
	cancel, done := h.start(t)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after shutdown")
	}
	if h.hub.Ready() {
		t.Fatalf("expected not ready after shutdown")
	}
}

func TestHub_ReportStatsLogsSnapshot(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	h := newHarness(t, zap.New(core))

	h.hub.ReportStats(context.Background())

	entries := logs.FilterMessage("hub stats").All()
	if len(entries) != 1 {
		t.Fatalf("expected one stats entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	for _, q := range []string{"outgoing_requests", "incoming_requests", "incoming_webhooks", "incoming_contacts"} {
		if _, ok := fields[q]; !ok {
			t.Fatalf("expected stats for %s, got %v", q, fields)
		}
	}
	if fields["pool_running"] != int64(0) {
		t.Fatalf("unexpected pool_running: %v", fields["pool_running"])
	}
}
