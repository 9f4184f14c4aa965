package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/arko-chat/jsbridge/internal/diagnostics"
	"github.com/arko-chat/jsbridge/internal/ws"
)

// Frame is what devtools clients receive over the live feed.
type Frame struct {
	Type  string             `json:"type"`
	Entry *diagnostics.Entry `json:"entry,omitempty"`
	State *StateView         `json:"state,omitempty"`
	Error string             `json:"error,omitempty"`
}

type BaseService struct {
	journal *diagnostics.Journal
	hub     *ws.Hub
	logger  *slog.Logger

	listener uint64
}

// NewBaseService forwards every journal entry to the hub.
func NewBaseService(
	journal *diagnostics.Journal,
	hub *ws.Hub,
	logger *slog.Logger,
) *BaseService {
	s := &BaseService{
		journal: journal,
		hub:     hub,
		logger:  logger,
	}
	s.listener = journal.Listen(context.Background(), func(e diagnostics.Entry) {
		s.broadcast(Frame{Type: "entry", Entry: &e})
	})
	return s
}

func (s *BaseService) Journal() *diagnostics.Journal {
	return s.journal
}

func (s *BaseService) Hub() *ws.Hub {
	return s.hub
}

func (s *BaseService) record(e diagnostics.Entry) diagnostics.Entry {
	return s.journal.Record(e)
}

func (s *BaseService) broadcast(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		s.logger.Error("failed to encode frame", "type", f.Type, "err", err)
		return
	}
	s.hub.Broadcast(data)
}

func (s *BaseService) close() {
	s.journal.Unlisten(s.listener)
}
