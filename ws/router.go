package ws

import (
	"encoding/json"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"

	"github.com/karaokehub/karaokehub/types"
)

// HandlerFunc processes one inbound action inside the hub run loop. A
// returned error becomes a typed error acknowledgment for acknowledged
// actions; relay actions deny silently and return nil.
type HandlerFunc func(h *Hub, c *Client, msg types.WireMessage) error

type handlerSpec struct {
	fn HandlerFunc
	// ack marks the command-and-acknowledge family: the client gets a
	// TYPE_SUCCESS or TYPE_ERROR response for every request.
	ack bool
	// global actions work on connections that joined no room, e.g.
	// starring songs from the lobby.
	global bool
}

// Router maps wire action types onto handlers. All types are registered
// explicitly at startup; anything else on the wire is logged and ignored.
type Router struct {
	handlers map[string]handlerSpec
	logger   hclog.Logger
}

func NewRouter(logger hclog.Logger) *Router {
	return &Router{handlers: make(map[string]handlerSpec), logger: logger}
}

func (r *Router) Handle(actionType string, ack bool, fn HandlerFunc) {
	r.handlers[actionType] = handlerSpec{fn: fn, ack: ack}
}

// HandleGlobal registers an action that does not need a room.
func (r *Router) HandleGlobal(actionType string, ack bool, fn HandlerFunc) {
	r.handlers[actionType] = handlerSpec{fn: fn, ack: ack, global: true}
}

// Dispatch runs the handler for one inbound message. Handler errors and
// panics are contained here: the client may get an error ack, the
// connection always survives.
func (r *Router) Dispatch(h *Hub, c *Client, msg types.WireMessage) {
	spec, ok := r.handlers[msg.Type]
	if !ok {
		r.logger.Warn("ignoring unknown action type", "type", msg.Type, "user", c.claims.UserId)
		return
	}
	if h.Room.Id == "" && !spec.global {
		r.logger.Info("action needs a room", "type", msg.Type, "user", c.claims.UserId)
		if spec.ack {
			c.enqueue(mustWireMessage(msg.Type+types.SuffixError, types.ErrorAck{Error: "no room joined"}))
		}
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked", "type", msg.Type, "panic", rec)
			if spec.ack {
				c.enqueue(mustWireMessage(msg.Type+types.SuffixError, types.ErrorAck{Error: "internal error"}))
			}
		}
	}()

	if err := spec.fn(h, c, msg); err != nil {
		r.logger.Info("action rejected", "type", msg.Type, "user", c.claims.UserId, "error", err)
		if spec.ack {
			c.enqueue(mustWireMessage(msg.Type+types.SuffixError, types.ErrorAck{Error: err.Error()}))
		}
		return
	}
	if spec.ack {
		c.enqueue(mustWireMessage(msg.Type+types.SuffixSuccess, nil))
	}
}

// decodePayload unmarshals the raw payload into a map and weak-decodes it
// into the typed payload struct, tolerating clients that send numbers as
// strings.
func decodePayload(raw json.RawMessage, out interface{}) error {
	payloadMap := make(map[string]interface{})
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payloadMap); err != nil {
			return err
		}
	}
	return mapstructure.WeakDecode(payloadMap, out)
}
