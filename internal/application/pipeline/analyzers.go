package pipeline

import (
	"context"

	"github.com/turtacn/ResearchPool-Intelligence/internal/application/harvest"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/abstracts"
	"github.com/turtacn/ResearchPool-Intelligence/internal/intelligence/captions"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
)

// BiomedAnalyzer summarizes study abstracts and screens the findings for
// marketing-claim potential. Model failures never sink a record: the record
// proceeds without a summary and with a no-claim assessment.
type BiomedAnalyzer struct {
	summarizer *abstracts.Summarizer
	claims     *abstracts.ClaimValidator
	logger     logging.Logger
}

func NewBiomedAnalyzer(
	summarizer *abstracts.Summarizer,
	claims *abstracts.ClaimValidator,
	logger logging.Logger,
) *BiomedAnalyzer {
	return &BiomedAnalyzer{
		summarizer: summarizer,
		claims:     claims,
		logger:     logger.With(logging.String("analyzer", "biomed")),
	}
}

func (a *BiomedAnalyzer) Analyze(ctx context.Context, rec *harvest.HarvestedRecord) error {
	summary, err := a.summarizer.Summarize(ctx, *rec)
	if err != nil {
		if appErrors.IsCancelled(err) {
			return err
		}
		a.logger.Warn("summarization unavailable, continuing without summary",
			logging.String("external_id", rec.ExternalID),
			logging.Err(err))
	} else {
		rec.Summary = summary
	}

	assessment, err := a.claims.Validate(ctx, *rec, rec.Summary)
	if err != nil {
		if appErrors.IsCancelled(err) {
			return err
		}
		a.logger.Warn("claim validation unavailable, defaulting to no claim",
			logging.String("external_id", rec.ExternalID),
			logging.Err(err))
		fallback := harvest.DefaultClaimAssessment()
		rec.Claims = &fallback
		return nil
	}
	rec.Claims = assessment
	return nil
}

// ImageAnalyzer extracts content themes from post captions and screens them
// for claim risk. Extracted themes ride on the record as usage tags.
type ImageAnalyzer struct {
	themes   *captions.ThemeExtractor
	detector *captions.ClaimDetector
	logger   logging.Logger
}

func NewImageAnalyzer(
	themes *captions.ThemeExtractor,
	detector *captions.ClaimDetector,
	logger logging.Logger,
) *ImageAnalyzer {
	return &ImageAnalyzer{
		themes:   themes,
		detector: detector,
		logger:   logger.With(logging.String("analyzer", "image")),
	}
}

func (a *ImageAnalyzer) Analyze(ctx context.Context, rec *harvest.HarvestedRecord) error {
	tags, err := a.themes.Extract(ctx, *rec)
	if err != nil {
		if appErrors.IsCancelled(err) {
			return err
		}
		a.logger.Warn("theme extraction unavailable, continuing without themes",
			logging.String("external_id", rec.ExternalID),
			logging.Err(err))
	} else if len(tags) > 0 {
		rec.Summary = &harvest.AnalysisSummary{UsageTags: tags}
	}

	assessment, err := a.detector.Detect(ctx, *rec)
	if err != nil {
		if appErrors.IsCancelled(err) {
			return err
		}
		a.logger.Warn("claim detection unavailable, defaulting to no claim",
			logging.String("external_id", rec.ExternalID),
			logging.Err(err))
		fallback := harvest.DefaultClaimAssessment()
		rec.Claims = &fallback
		return nil
	}
	rec.Claims = assessment
	return nil
}
