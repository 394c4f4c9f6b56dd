package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/LeventeLantos/chat-hub/internal/cache"
	"github.com/LeventeLantos/chat-hub/internal/normalize"
)

// Ingestor writes normalized inbound payloads to the chat cache.
type Ingestor struct {
	normalizer *normalize.Normalizer
	cache      cache.ChatCache
	log        *zap.Logger
}

func NewIngestor(n *normalize.Normalizer, c cache.ChatCache, log *zap.Logger) *Ingestor {
	return &Ingestor{normalizer: n, cache: c, log: log}
}

func (i *Ingestor) Ingest(ctx context.Context, raw []byte) error {
	res, err := i.normalizer.Normalize(raw)
	if err != nil {
		i.log.Error("cannot parse incoming payload", zap.Error(err), zap.ByteString("raw", raw))
		return err
	}
	log := i.log.With(zap.String("chat_id", res.ChatID))

	if res.Message == nil {
		if err := i.cache.EnsureChatExists(ctx, res.ChatID, res.RemoteJID, res.Metadata, res.Raw); err != nil {
			log.Error("cannot seed chat from contact", zap.Error(err))
			return err
		}
		log.Info("contact stored")
		return nil
	}

	msg, err := json.Marshal(res.Message)
	if err != nil {
		return fmt.Errorf("encode canonical message: %w", err)
	}
	if err := i.cache.InsertMessageToChat(ctx, res.ChatID, msg, res.RemoteJID, res.Metadata, res.Raw); err != nil {
		log.Error("cannot store incoming message", zap.Error(err))
		return err
	}
	log.Info("incoming message stored", zap.String("message_id", res.Message.ID), zap.String("type", string(res.Message.Type)))
	return nil
}
