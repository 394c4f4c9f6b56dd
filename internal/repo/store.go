package repo

import (
	"context"

	"github.com/LeventeLantos/chat-hub/internal/model"
)

// ChatStore writes outbound commands to the relational store. Every write is
// an insert-or-update keyed by id; the last writer wins.
type ChatStore interface {
	UpsertChat(ctx context.Context, chat *model.Chat) error
	UpsertCustomer(ctx context.Context, customer *model.Customer) error
	UpsertMessage(ctx context.Context, msg *model.Message) error
}
