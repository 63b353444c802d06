package detectors

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
)

// Registry is a process-wide collection of detector instances.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]Detector
	log       zerolog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		detectors: make(map[string]Detector),
		log:       log.With().Str("component", "detector_registry").Logger(),
	}
}

// Register adds or replaces a detector by name.
func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors[d.Name()] = d
	r.log.Debug().Str("name", d.Name()).Msg("registered detector")
}

// All returns every registered detector, sorted by name for deterministic
// iteration order (downstream alert-insertion order depends on it).
func (r *Registry) All() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Detector, 0, len(r.detectors))
	for _, d := range r.detectors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// DetectAll runs every enabled, registered detector against fs via
// DetectSafe and returns the candidates that survived.
func (r *Registry) DetectAll(fs domain.FeatureSet, cfg *config.Config) []domain.AlertCandidate {
	var out []domain.AlertCandidate
	for _, d := range r.All() {
		if cand, ok := DetectSafe(d, fs, cfg, r.log); ok {
			out = append(out, cand)
		}
	}
	return out
}

// NewPopulatedRegistry builds a registry with all six detectors registered.
func NewPopulatedRegistry(log zerolog.Logger) *Registry {
	r := NewRegistry(log)
	dlog := log.With().Str("component", "detectors").Logger()
	r.Register(NewLowIVDetector(dlog))
	r.Register(NewRichPremiumDetector(dlog))
	r.Register(NewEarningsCrushDetector(dlog))
	r.Register(NewTermKinkDetector(dlog))
	r.Register(NewSkewAnomalyDetector(dlog))
	r.Register(NewRegimeShiftDetector(dlog))
	r.log.Info().Int("detectors", len(r.detectors)).Msg("detector registry initialized")
	return r
}
