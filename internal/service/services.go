package service

import (
	"log/slog"

	"github.com/arko-chat/jsbridge/internal/bridge"
	"github.com/arko-chat/jsbridge/internal/diagnostics"
	"github.com/arko-chat/jsbridge/internal/ws"
)

type Services struct {
	Bridge *BridgeService

	base *BaseService
}

func New(
	env bridge.Environment,
	journal *diagnostics.Journal,
	hub *ws.Hub,
	mode bridge.CorrelationMode,
	logger *slog.Logger,
) *Services {
	base := NewBaseService(journal, hub, logger)
	return &Services{
		Bridge: NewBridgeService(env, base, mode),
		base:   base,
	}
}

func (s *Services) Close() error {
	err := s.Bridge.Close()
	s.base.close()
	return err
}
