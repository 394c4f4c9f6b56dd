package cache

import "context"

type ChatCache interface {
	EnsureChatExists(ctx context.Context, chatID, remoteJID string, metadata, raw map[string]any) error
	InsertMessageToChat(ctx context.Context, chatID string, messageJSON []byte, remoteJID string, metadata, raw map[string]any) error
}
