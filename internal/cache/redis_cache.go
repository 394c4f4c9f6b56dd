package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"

	"github.com/LeventeLantos/chat-hub/internal/model"
)

const knownChatsKey = "chats"

func chatKey(chatID string) string     { return "chat:" + chatID }
func messagesKey(chatID string) string { return "chat:" + chatID + ":messages" }

// RedisCache serializes every operation behind one mutex: at most one cache
// command sequence is in flight across all delivery tasks.
type RedisCache struct {
	mu  sync.Mutex
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// EnsureChatExists creates the chat header and registers the chat in the
// known-chats set. It is a no-op when the header already exists.
func (c *RedisCache) EnsureChatExists(ctx context.Context, chatID, remoteJID string, metadata, raw map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureChatExists(ctx, chatID, remoteJID, metadata, raw)
}

// InsertMessageToChat appends messageJSON to the chat's message list after
// making sure the chat exists. Messages are never deduplicated.
func (c *RedisCache) InsertMessageToChat(ctx context.Context, chatID string, messageJSON []byte, remoteJID string, metadata, raw map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureChatExists(ctx, chatID, remoteJID, metadata, raw); err != nil {
		return err
	}
	if err := c.rdb.RPush(ctx, messagesKey(chatID), messageJSON).Err(); err != nil {
		return fmt.Errorf("append message to %s: %w", chatID, err)
	}
	return nil
}

func (c *RedisCache) ensureChatExists(ctx context.Context, chatID, remoteJID string, metadata, raw map[string]any) error {
	n, err := c.rdb.Exists(ctx, chatKey(chatID)).Result()
	if err != nil {
		return fmt.Errorf("check chat %s: %w", chatID, err)
	}
	if n > 0 {
		return nil
	}

	header, err := buildHeader(chatID, remoteJID, metadata, raw)
	if err != nil {
		return fmt.Errorf("encode chat header %s: %w", chatID, err)
	}

	// The header is a one-element list, not a plain string key.
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, chatKey(chatID), header)
		pipe.SAdd(ctx, knownChatsKey, chatID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create chat %s: %w", chatID, err)
	}
	return nil
}

func buildHeader(chatID, remoteJID string, metadata, raw map[string]any) ([]byte, error) {
	if metadata != nil {
		return json.Marshal(metadata)
	}
	return json.Marshal(model.ChatHeader{
		ID:         chatID,
		Situation:  model.Enqueued,
		IsActive:   true,
		InstanceID: instanceID(raw),
		Number:     remoteJID,
	})
}

func instanceID(raw map[string]any) *string {
	v, ok := raw["apikey"]
	if !ok || v == nil {
		return nil
	}
	s := cast.ToString(v)
	return &s
}
