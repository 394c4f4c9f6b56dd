package model

type OutboundRequest struct {
	Action  string            `json:"action"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    map[string]any    `json:"body,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}
