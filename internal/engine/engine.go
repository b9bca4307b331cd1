// Package engine implements experiment assignment, conversion recording and
// the statistical winner decision. The engine is stateless between calls;
// every guarantee it makes is backed by the store's uniqueness constraints.
package engine

import (
	"go.uber.org/zap"

	"github.com/splitpilot/splitpilot/internal/analytics"
	"github.com/splitpilot/splitpilot/internal/store"
)

type Engine struct {
	store  store.Store
	logger *zap.Logger
	sink   analytics.Sink
}

// New wires the engine to its store. logger and sink may be nil.
func New(s store.Store, logger *zap.Logger, sink analytics.Sink) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = analytics.Nop()
	}
	return &Engine{store: s, logger: logger, sink: sink}
}
