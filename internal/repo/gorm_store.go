package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/LeventeLantos/chat-hub/internal/model"
)

type GormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ ChatStore = (*GormStore)(nil)

func NewGormStore(db *gorm.DB, log *zap.Logger) *GormStore {
	return &GormStore{db: db, log: log}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the chats, customers and messages tables when missing.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&chatRow{}, &customerRow{}, &messageRow{})
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertChat writes tabulation only when it is set. Without it the column is
// left out of both the insert and the update, so a stored value survives.
// agent_id is always written and a nil clears it.
func (s *GormStore) UpsertChat(ctx context.Context, chat *model.Chat) error {
	cols := []string{"situation", "is_active", "agent_id", "customer_id"}
	if chat.Tabulation != nil {
		cols = append(cols, "tabulation")
	}
	row := chatRow{
		ID:         chat.ID,
		Situation:  chat.Situation,
		IsActive:   chat.IsActive,
		AgentID:    chat.AgentID,
		Tabulation: chat.Tabulation,
		CustomerID: chat.CustomerID,
	}
	return s.upsert(ctx, "chats", chat.ID, &row, cols)
}

// UpsertCustomer treats last_chat_id the way UpsertChat treats tabulation.
func (s *GormStore) UpsertCustomer(ctx context.Context, customer *model.Customer) error {
	cols := []string{"name", "number"}
	if customer.LastChatID != nil {
		cols = append(cols, "last_chat_id")
	}
	row := customerRow{
		ID:         customer.ID,
		Name:       customer.Name,
		Number:     customer.Number,
		LastChatID: customer.LastChatID,
	}
	return s.upsert(ctx, "customers", customer.ID, &row, cols)
}

func (s *GormStore) UpsertMessage(ctx context.Context, msg *model.Message) error {
	row := messageRow{
		ID:        msg.ID,
		From:      msg.From,
		To:        msg.To,
		Text:      msg.Text,
		Delivered: msg.Delivered,
		ChatID:    msg.ChatID,
	}
	return s.upsert(ctx, "messages", msg.ID, &row, []string{"from", "to", "text", "delivered", "chat_id"})
}

// upsert inserts id plus cols and, on an id conflict, overwrites exactly cols.
func (s *GormStore) upsert(ctx context.Context, table, id string, row any, cols []string) error {
	err := s.db.WithContext(ctx).
		Select(append([]string{"id"}, cols...)).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).
		Create(row).Error
	if err == nil {
		return nil
	}

	fields := []zap.Field{zap.String("table", table), zap.String("id", id), zap.Error(err)}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fields = append(fields, zap.String("sqlstate", pgErr.Code), zap.String("constraint", pgErr.ConstraintName))
	}
	s.log.Error("upsert failed", fields...)
	return fmt.Errorf("upsert %s %s: %w", table, id, err)
}
