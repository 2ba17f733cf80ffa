package datachannel

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Handler processes a specific command type.
type Handler func(sessionID, actionID string, payload json.RawMessage) error

// Router dispatches incoming data channel messages to registered handlers.
type Router struct {
	logger   *zap.Logger
	handlers map[string]Handler
}

// NewRouter creates a new message router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for a specific message type.
func (r *Router) Register(msgType string, h Handler) {
	r.handlers[msgType] = h
}

// Dispatch parses a raw data channel message and routes it to the
// appropriate handler. Unknown types are logged and ignored.
func (r *Router) Dispatch(raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	h, ok := r.handlers[env.Type]
	if !ok {
		r.logger.Warn("unknown message type", zap.String("type", env.Type))
		return nil
	}

	return h(env.SessionID, env.ActionID, env.Payload)
}
