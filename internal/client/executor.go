package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/LeventeLantos/chat-hub/internal/model"
)

var ErrUnsupportedMethod = errors.New("unsupported method")

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status: %d body=%q", e.Code, e.Body)
}

var allowedMethods = map[string]string{
	"GET":    http.MethodGet,
	"POST":   http.MethodPost,
	"DELETE": http.MethodDelete,
}

type Executor struct {
	client *http.Client
	log    *zap.Logger
}

func NewExecutor(timeout time.Duration, log *zap.Logger) *Executor {
	return &Executor{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Send performs req. A body, when present, is sent as JSON for every method,
// GET and DELETE included. Any non-2xx status is returned as *StatusError.
func (e *Executor) Send(ctx context.Context, req *model.OutboundRequest) error {
	method, ok := allowedMethods[req.Method]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
	}

	target, err := withParams(req.URL, req.Params)
	if err != nil {
		return err
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return err
		}
		e.log.Debug("request body", zap.String("action", req.Action), zap.ByteString("body", b))
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	e.log.Info("sending request", zap.String("action", req.Action), zap.String("method", method), zap.String("url", target))

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	e.log.Info("request succeeded",
		zap.String("action", req.Action),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("response", respBody),
	)
	return nil
}

func withParams(raw string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
