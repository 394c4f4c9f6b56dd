package dispatch

import (
	"bytes"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/LeventeLantos/chat-hub/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Kind string

const (
	UpsertChat     Kind = "upsertChat"
	UpsertCustomer Kind = "upsertCustomer"
	UpsertMessage  Kind = "upsertMessage"
	SendRequest    Kind = "sendRequest"
)

// Checked in this order; a payload naming several kinds takes the first.
var matchOrder = []Kind{UpsertChat, UpsertCustomer, UpsertMessage, SendRequest}

var ErrUnknownCommand = errors.New("unknown command: payload names none of upsertChat, upsertCustomer, upsertMessage, sendRequest")

type DecodeError struct {
	Kind Kind
	Raw  string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v raw=%q", e.Kind, e.Err, e.Raw)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Command holds exactly one decoded record, selected by Kind.
type Command struct {
	Kind     Kind
	Chat     *model.Chat
	Customer *model.Customer
	Message  *model.Message
	Request  *model.OutboundRequest
}

// Classify finds the first marker contained anywhere in raw.
func Classify(raw []byte) (Kind, error) {
	for _, k := range matchOrder {
		if bytes.Contains(raw, []byte(k)) {
			return k, nil
		}
	}
	return "", ErrUnknownCommand
}

func Decode(raw []byte) (Command, error) {
	kind, err := Classify(raw)
	if err != nil {
		return Command{}, err
	}

	cmd := Command{Kind: kind}
	var key string
	switch kind {
	case UpsertChat:
		var v model.Chat
		err = json.Unmarshal(raw, &v)
		cmd.Chat, key = &v, v.ID
	case UpsertCustomer:
		var v model.Customer
		err = json.Unmarshal(raw, &v)
		cmd.Customer, key = &v, v.ID
	case UpsertMessage:
		var v model.Message
		err = json.Unmarshal(raw, &v)
		cmd.Message, key = &v, v.ID
	case SendRequest:
		var v model.OutboundRequest
		err = json.Unmarshal(raw, &v)
		cmd.Request, key = &v, v.URL
	}
	if err == nil && key == "" {
		err = errMissingKey(kind)
	}
	if err != nil {
		return Command{}, &DecodeError{Kind: kind, Raw: string(raw), Err: err}
	}
	return cmd, nil
}

func errMissingKey(k Kind) error {
	if k == SendRequest {
		return errors.New("missing field url")
	}
	return errors.New("missing field id")
}
