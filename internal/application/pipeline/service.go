package pipeline

import (
	"context"
	"fmt"
	"sort"

	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// Service exposes pipeline runs keyed by source name. It is the surface the
// HTTP API, CLI, and worker share: they name a source, the service finds the
// configured profile and drives the orchestrator.
type Service struct {
	orch     *Orchestrator
	profiles map[rtypes.Source]*SourceProfile
}

func NewService(orch *Orchestrator, profiles ...*SourceProfile) (*Service, error) {
	if orch == nil {
		return nil, appErrors.InvalidParam("orchestrator is required")
	}
	bySource := make(map[rtypes.Source]*SourceProfile, len(profiles))
	for _, p := range profiles {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := bySource[p.Source]; dup {
			return nil, appErrors.InvalidParam(fmt.Sprintf("duplicate profile for source %q", p.Source))
		}
		bySource[p.Source] = p
	}
	return &Service{orch: orch, profiles: bySource}, nil
}

// Run executes one pipeline run for the named source.
func (s *Service) Run(ctx context.Context, source rtypes.Source) (*Result, error) {
	profile, ok := s.profiles[source]
	if !ok {
		return nil, appErrors.NotFound(fmt.Sprintf("source %q is not configured", source))
	}
	return s.orch.Run(ctx, profile)
}

// Sources lists the configured sources in stable order.
func (s *Service) Sources() []rtypes.Source {
	out := make([]rtypes.Source, 0, len(s.profiles))
	for source := range s.profiles {
		out = append(out, source)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
