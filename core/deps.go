package core

import (
	"time"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/internal/persist"
)

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	Generator Generator
	EventSink EventSink
	// Store overrides the file store derived from the state directory.
	Store  persist.Store
	Logger pslog.Logger
	Now    func() time.Time
}
