package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/arko-chat/jsbridge/internal/service"
	"github.com/arko-chat/jsbridge/internal/ws"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ClientRequest is a frame sent by a devtools client.
type ClientRequest struct {
	Action   string          `json:"action"`
	Function string          `json:"function,omitempty"`
	Argument json.RawMessage `json:"argument,omitempty"`
	URL      string          `json:"url,omitempty"`
}

// HandleWS streams journal entries to the client and accepts INVOKE and
// LOAD frames.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}

	hub := h.svc.Bridge.Hub()
	client := ws.NewClient(hub, conn)
	hub.Register(client)
	go client.WritePump()

	state := h.svc.Bridge.State()
	h.push(hub, client, service.Frame{Type: "state", State: &state})

	client.ReadPump(func(raw []byte) {
		var msg ClientRequest
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.push(hub, client, service.Frame{Type: "error", Error: "invalid frame"})
			return
		}

		var err error
		switch msg.Action {
		case "INVOKE":
			err = h.svc.Bridge.Invoke(msg.Function, msg.Argument)
		case "LOAD":
			err = h.svc.Bridge.Load(msg.URL)
		case "STATE":
		default:
			h.push(hub, client, service.Frame{Type: "error", Error: "unknown action " + msg.Action})
			return
		}
		if err != nil {
			h.logger.Warn("ws "+msg.Action+" failed", "err", err)
			h.push(hub, client, service.Frame{Type: "error", Error: err.Error()})
			return
		}
		state := h.svc.Bridge.State()
		h.push(hub, client, service.Frame{Type: "state", State: &state})
	})
}

func (h *Handler) push(hub *ws.Hub, c *ws.Client, f service.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("failed to encode frame", "type", f.Type, "err", err)
		return
	}
	hub.Push(c, data)
}
