package normalize

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"

	"github.com/LeventeLantos/chat-hub/internal/model"
)

// UnknownChat is the chat id used when no identifier can be found.
const UnknownChat = "unknown_chat"

const (
	imageMessage = "imageMessage"
	audioMessage = "audioMessage"

	imageDataURI = "data:image/png;base64,"
	audioDataURI = "data:audio/ogg;base64,"
)

var ErrMalformedPayload = errors.New("malformed payload")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Probed in order; the first non-empty string wins.
var chatIDPaths = [][]any{
	{"key", "remote_jid"},
	{"data", "key", "remoteJid"},
	{"number"},
}

// Contact payloads carry their instance under one of these when instance_id
// is missing.
var instanceSiblings = []string{"instanceId", "instance", "apikey"}

type Result struct {
	ChatID    string
	RemoteJID string

	// Metadata is set for contact payloads and seeds the chat header verbatim.
	Metadata map[string]any
	// Message is nil for contact payloads.
	Message *model.CanonicalMessage
	// Raw is the decoded payload when it is a JSON object.
	Raw map[string]any
}

type Normalizer struct {
	captions captions
}

func New(captionLang string) *Normalizer {
	return &Normalizer{captions: captionsFor(captionLang)}
}

// Normalize turns any inbound webhook, status or contact payload into a chat
// identity plus either a canonical message or chat metadata. Missing fields
// become zero values rather than errors; only invalid JSON is rejected.
func (n *Normalizer) Normalize(raw []byte) (*Result, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	fields, _ := doc.(map[string]any)

	remote := resolveRemoteJID(raw)
	res := &Result{
		ChatID:    JID(remote),
		RemoteJID: remote,
		Raw:       fields,
	}

	if isContact(fields) {
		res.Metadata = contactMetadata(fields)
		return res, nil
	}

	res.Message = n.extractMessage(raw)
	return res, nil
}

func (n *Normalizer) extractMessage(raw []byte) *model.CanonicalMessage {
	text, _ := stringAt(raw, "data", "message", "conversation")
	msg := &model.CanonicalMessage{
		ID:        "msg_" + scalarAt(raw, "data", "key", "id"),
		From:      scalarAt(raw, "sender"),
		To:        scalarAt(raw, "data", "key", "remoteJid"),
		Text:      text,
		Body:      text,
		Type:      model.Text,
		Timestamp: timestamp(raw),
	}

	media, _ := stringAt(raw, "data", "message", "base64")
	switch scalarAt(raw, "data", "messageType") {
	case imageMessage:
		msg.Type = model.Image
		msg.Body = imageDataURI + media
		msg.Text = n.captions.forType(model.Image)
	case audioMessage:
		msg.Type = model.Audio
		msg.Body = audioDataURI + media
		msg.Text = n.captions.forType(model.Audio)
	}
	return msg
}

func resolveRemoteJID(raw []byte) string {
	for _, path := range chatIDPaths {
		if v, ok := stringAt(raw, path...); ok && v != "" {
			return v
		}
	}
	return UnknownChat
}

func timestamp(raw []byte) string {
	if ts := scalarAt(raw, "date_time"); ts != "" {
		return ts
	}
	return scalarAt(raw, "data", "messageTimestamp")
}

func isContact(fields map[string]any) bool {
	if fields == nil {
		return false
	}
	for _, k := range []string{"name", "number", "created_at"} {
		if _, ok := fields[k]; !ok {
			return false
		}
	}
	return true
}

func contactMetadata(fields map[string]any) map[string]any {
	meta := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		meta[k] = v
	}
	if _, ok := meta["instance_id"]; ok {
		return meta
	}
	meta["instance_id"] = nil
	for _, k := range instanceSiblings {
		if v, ok := fields[k]; ok && v != nil {
			meta["instance_id"] = v
			break
		}
	}
	return meta
}

func stringAt(raw []byte, path ...any) (string, bool) {
	v := jsoniter.Get(raw, path...)
	if v.ValueType() != jsoniter.StringValue {
		return "", false
	}
	return v.ToString(), true
}

// scalarAt reads strings and numbers alike; anything else yields "".
func scalarAt(raw []byte, path ...any) string {
	v := jsoniter.Get(raw, path...)
	switch v.ValueType() {
	case jsoniter.StringValue:
		return v.ToString()
	case jsoniter.NumberValue:
		return cast.ToString(v.GetInterface())
	}
	return ""
}
