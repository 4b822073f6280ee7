// Package pipeline orchestrates a full harvesting run for one source:
// discovery, enrichment, optional language-model analysis, normalization,
// compliance review, scoring, and publication into the pool.
package pipeline

import (
	"context"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/compliance"
	"github.com/turtacn/ResearchPool-Intelligence/internal/application/harvest"
	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// Scanner discovers candidate records for a source.
type Scanner interface {
	Scan(ctx context.Context) ([]harvest.RawRecord, harvest.ScanStats, error)
}

// Harvester enriches raw records with full detail.
type Harvester interface {
	Harvest(ctx context.Context, raws []harvest.RawRecord) ([]harvest.HarvestedRecord, harvest.HarvestStats, error)
}

// Analyzer runs the language-model stage for one enriched record. It mutates
// the record in place and returns an error only when the run should stop;
// per-record model failures degrade to conservative defaults instead.
type Analyzer interface {
	Analyze(ctx context.Context, rec *harvest.HarvestedRecord) error
}

// Normalizer converts an enriched record into a pool item.
type Normalizer interface {
	Normalize(rec harvest.HarvestedRecord) (*research.ResearchItem, error)
}

// Validator reviews a batch of items against compliance policy.
type Validator interface {
	ValidateBatch(ctx context.Context, items []*research.ResearchItem) ([]*compliance.ValidationResult, compliance.ValidationStats)
}

// SourceProfile bundles the per-source stage implementations for one run.
// Analyzer is optional: sources without a model stage leave it nil.
type SourceProfile struct {
	Source     rtypes.Source
	Scanner    Scanner
	Harvester  Harvester
	Analyzer   Analyzer
	Normalizer Normalizer
	Validator  Validator
}

func (p *SourceProfile) validate() error {
	if p == nil {
		return appErrors.InvalidParam("source profile is required")
	}
	if p.Source == "" {
		return appErrors.InvalidParam("source profile missing source")
	}
	if p.Scanner == nil {
		return appErrors.InvalidParam("source profile missing scanner")
	}
	if p.Harvester == nil {
		return appErrors.InvalidParam("source profile missing harvester")
	}
	if p.Normalizer == nil {
		return appErrors.InvalidParam("source profile missing normalizer")
	}
	if p.Validator == nil {
		return appErrors.InvalidParam("source profile missing validator")
	}
	return nil
}
