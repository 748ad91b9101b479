// Package api exposes the engine's functionality as a JSON REST API under
// /api/0, per spec.md §6. Handlers are thin: validation and orchestration
// live in internal/store, internal/extract, internal/enrich, and
// internal/orchestrator; this package only decodes requests, calls into
// those packages, and serialises results or errors.
package api

import (
	"log/slog"
	"time"

	"github.com/flowmine/engine/internal/enrich"
	"github.com/flowmine/engine/internal/extract"
	"github.com/flowmine/engine/internal/mining"
	"github.com/flowmine/engine/internal/orchestrator"
	"github.com/flowmine/engine/internal/store"
)

// API bundles everything a handler might need. Handlers hang off an
// *API value rather than taking these piecemeal, matching the gateway
// Service receiver pattern.
type API struct {
	Store        *store.Store
	Extractor    *extract.Engine
	EnrichQueue  *enrich.Queue
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger

	MaxGap         time.Duration
	AFKMinDuration time.Duration
	MiningDefaults mining.DiscoverOptions
}

// New constructs an API with defaults applied for any unset option.
func New(deps API) *API {
	a := deps
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.MaxGap == 0 {
		a.MaxGap = 120 * time.Second
	}
	if a.AFKMinDuration == 0 {
		a.AFKMinDuration = 60 * time.Second
	}
	if a.MiningDefaults.Mine.MaxLength == 0 {
		a.MiningDefaults = mining.DefaultDiscoverOptions()
	}
	return &a
}
