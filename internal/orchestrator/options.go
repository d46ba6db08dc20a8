package orchestrator

import (
	"github.com/docuflow/docuflow/internal/agent"
	"github.com/docuflow/docuflow/internal/coord"
	"github.com/docuflow/docuflow/internal/state"
)

// Option configures an Orchestrator. Use With* functions to create
// Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	registry     *agent.Registry
	extractor    agent.TextExtractor
	coordination *coord.Service
	archive      state.Store
	logger       *DebugLogger
	eventBuffer  int
}

// WithRegistry sets the agent registry. Without it the default
// document-agent registry is used.
func WithRegistry(r *agent.Registry) Option {
	return func(o *orchestratorOptions) { o.registry = r }
}

// WithExtractor sets the text-extraction backend for the default
// registry. Ignored when WithRegistry is also given.
func WithExtractor(e agent.TextExtractor) Option {
	return func(o *orchestratorOptions) { o.extractor = e }
}

// WithCoordination enables distributed coordination fan-out.
func WithCoordination(s *coord.Service) Option {
	return func(o *orchestratorOptions) { o.coordination = s }
}

// WithArchive enables the result archive for workflows whose
// persistence level is "archived".
func WithArchive(store state.Store) Option {
	return func(o *orchestratorOptions) { o.archive = store }
}

// WithDebugLogger sets the debug logger.
func WithDebugLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithEventBuffer sets the event channel's buffer size.
func WithEventBuffer(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}
