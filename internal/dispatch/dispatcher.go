package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/LeventeLantos/chat-hub/internal/model"
	"github.com/LeventeLantos/chat-hub/internal/repo"
)

type Requester interface {
	Send(ctx context.Context, req *model.OutboundRequest) error
}

// Dispatcher routes outgoing commands to the relational store or to the
// HTTP executor.
type Dispatcher struct {
	store     repo.ChatStore
	requester Requester
	log       *zap.Logger
}

func NewDispatcher(store repo.ChatStore, requester Requester, log *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, requester: requester, log: log}
}

func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	d.log.Debug("received outgoing payload", zap.ByteString("raw", raw))
	d.log.Info("processing outgoing payload", zap.Int("bytes", len(raw)))

	cmd, err := Decode(raw)
	if err != nil {
		d.log.Error("cannot decode outgoing payload", zap.Error(err), zap.ByteString("raw", raw))
		return err
	}

	log := d.log.With(zap.String("kind", string(cmd.Kind)))
	switch cmd.Kind {
	case UpsertChat:
		err = d.store.UpsertChat(ctx, cmd.Chat)
	case UpsertCustomer:
		err = d.store.UpsertCustomer(ctx, cmd.Customer)
	case UpsertMessage:
		err = d.store.UpsertMessage(ctx, cmd.Message)
	case SendRequest:
		log = log.With(zap.String("action", cmd.Request.Action))
		err = d.requester.Send(ctx, cmd.Request)
	}
	if err != nil {
		log.Error("outgoing command failed", zap.Error(err))
		return fmt.Errorf("%s: %w", cmd.Kind, err)
	}

	log.Info("outgoing command done")
	return nil
}
