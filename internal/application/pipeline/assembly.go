package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/compliance"
	"github.com/turtacn/ResearchPool-Intelligence/internal/application/harvest"
	"github.com/turtacn/ResearchPool-Intelligence/internal/application/scoring"
	"github.com/turtacn/ResearchPool-Intelligence/internal/config"
	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/ratelimit"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/abstracts"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/captions"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/llm"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ─────────────────────────────────────────────────────────────────────────────
// Assembly
// ─────────────────────────────────────────────────────────────────────────────

// Deps bundles the platform collaborators the pipeline is assembled from.
// Repo is required. The optional handles switch their concern off when nil:
// no seen store means no cross-run dedup, no lock means unserialized runs,
// no events means no downstream announcements, and no LLM client disables
// every analysis stage.
type Deps struct {
	Repo       research.Repository
	Connectors *harvest.ConnectorRegistry // nil uses harvest.DefaultConnectors()
	Seen       harvest.SeenStore
	Lock       RunLock
	Events     EventPublisher
	LLM        llm.Client
	Metrics    *prometheus.AppMetrics
	Logger     logging.Logger
}

// NewServiceFromConfig assembles the complete pipeline service the binaries
// share: a scorer resolved from the scoring configuration and per-source
// weight overrides, the orchestrator over the shared collaborators, and one
// profile per enabled source whose connectors are linked into the binary.
// Enabled sources without a registered connector are skipped with a warning
// so a deployment can enable sources ahead of rolling the connector build.
func NewServiceFromConfig(cfg *config.Config, deps Deps) (*Service, error) {
	if cfg == nil {
		return nil, appErrors.InvalidParam("config is required")
	}
	if deps.Repo == nil {
		return nil, appErrors.InvalidParam("repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	registry := deps.Connectors
	if registry == nil {
		registry = harvest.DefaultConnectors()
	}

	overrides := make(map[string]map[string]float64)
	for name, src := range cfg.Sources {
		if len(src.WeightOverrides) > 0 {
			overrides[name] = src.WeightOverrides
		}
	}
	scorer, err := scoring.NewScorer(cfg.Scoring, overrides, cfg.Worker.Concurrency, logger)
	if err != nil {
		return nil, err
	}

	orch := NewOrchestrator(deps.Repo, scorer, deps.Seen, deps.Lock, deps.Events, deps.Metrics, logger)

	profiles, err := buildProfiles(cfg, registry, deps, logger)
	if err != nil {
		return nil, err
	}
	return NewService(orch, profiles...)
}

// buildProfiles assembles one SourceProfile per enabled source with linked
// connectors, in stable name order.
func buildProfiles(
	cfg *config.Config,
	registry *harvest.ConnectorRegistry,
	deps Deps,
	logger logging.Logger,
) ([]*SourceProfile, error) {
	names := make([]string, 0, len(cfg.Sources))
	for name, src := range cfg.Sources {
		if src.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	prompts := llm.NewPromptManager()
	profiles := make([]*SourceProfile, 0, len(names))
	for _, name := range names {
		source, err := rtypes.ParseSource(name)
		if err != nil {
			return nil, appErrors.ConfigInvalid(fmt.Sprintf("sources.%s: unknown source", name))
		}
		conns, ok := registry.Lookup(source)
		if !ok {
			logger.Warn("source enabled but no connector is linked in, skipping",
				logging.String("source", name))
			continue
		}
		src := cfg.Sources[name]

		// One limiter per source, shared by discovery and detail fetches.
		limiter := ratelimit.NewSlidingWindow(name, src.RatePerMinute, time.Minute, src.RatePatience)

		profiles = append(profiles, &SourceProfile{
			Source:    source,
			Scanner:   harvest.NewScanner(source, src, conns.Search, deps.Seen, limiter, logger),
			Harvester: harvest.NewHarvester(source, conns.Detail, limiter, logger),
			Analyzer:  analyzerFor(source, src, deps, prompts, logger),
			Normalizer: harvest.NewNormalizer(source, harvest.Rules{
				CaptionTitle: source == rtypes.SourceImage,
				BaseURL:      src.BaseURL,
				TagLexicon:   src.TagLexicon,
				Competitors:  src.Competitors,
			}, logger),
			Validator: compliance.NewValidator(
				compliance.NewLexiconClassifier(src.ProhibitedPhrases, src.WarningPhrases),
				cfg.Worker.Concurrency,
				logger,
			),
		})
	}
	return profiles, nil
}

// analyzerFor builds the model stage for sources that carry one. Biomed runs
// abstract summarization plus claim validation; image runs caption theme
// extraction plus claim detection. Other sources have no model stage even
// when analysis is enabled in their profile.
func analyzerFor(
	source rtypes.Source,
	src config.SourceConfig,
	deps Deps,
	prompts *llm.PromptManager,
	logger logging.Logger,
) Analyzer {
	if !src.AnalysisEnabled {
		return nil
	}
	if deps.LLM == nil {
		logger.Warn("analysis enabled but no llm client configured, stage disabled",
			logging.String("source", string(source)))
		return nil
	}
	switch source {
	case rtypes.SourceBiomed:
		return NewBiomedAnalyzer(
			abstracts.NewSummarizer(deps.LLM, prompts, deps.Metrics, logger),
			abstracts.NewClaimValidator(deps.LLM, prompts, deps.Metrics, logger),
			logger,
		)
	case rtypes.SourceImage:
		return NewImageAnalyzer(
			captions.NewThemeExtractor(deps.LLM, prompts, deps.Metrics, logger),
			captions.NewClaimDetector(deps.LLM, prompts, deps.Metrics, logger),
			logger,
		)
	default:
		logger.Warn("analysis enabled but source has no analyzer",
			logging.String("source", string(source)))
		return nil
	}
}

// LockFromRedis adapts the redis run lock to the orchestrator port. A nil
// lock stays nil so callers can wire the field unconditionally.
func LockFromRedis(lock *redis.RunLock) RunLock {
	if lock == nil {
		return nil
	}
	return RunLockFunc(func(ctx context.Context, source rtypes.Source) (Lease, error) {
		return lock.Acquire(ctx, source)
	})
}
