// Package research implements the research-item bounded context: the pool
// aggregate root, its invariants, tag normalization, domain events, and the
// repository port. All business rules that concern pool items live here;
// persistence and transport are handled by separate layers.
package research

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	"github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ─────────────────────────────────────────────────────────────────────────────
// Field limits
// ─────────────────────────────────────────────────────────────────────────────

const (
	// MaxTitleBytes bounds the title length. Longer discovery titles are
	// truncated by the normalizer before reaching the factory.
	MaxTitleBytes = 500

	// MaxContentBytes bounds the content body.
	MaxContentBytes = 10 * 1024

	// MaxURLBytes bounds the canonical item URL.
	MaxURLBytes = 2048

	// MaxTags caps the normalized tag set.
	MaxTags = 10

	// Tag length bounds in bytes, applied after normalization.
	MinTagBytes = 2
	MaxTagBytes = 50
)

// reItemURL accepts http and https URLs only.
var reItemURL = regexp.MustCompile(`^https?://`)

// ─────────────────────────────────────────────────────────────────────────────
// ResearchItem aggregate root
// ─────────────────────────────────────────────────────────────────────────────

// ResearchItem is the aggregate root of the research-item bounded context.
// It represents one published pool entry: a discovered piece of research
// content together with its provenance, normalized tags, composite score,
// and compliance verdict.
//
// Consumers must never modify fields directly; all mutations go through the
// exported methods so that invariants and domain events are maintained.
type ResearchItem struct {
	common.BaseEntity

	Source         rtypes.Source           `json:"source"`
	Title          string                  `json:"title"`
	Content        string                  `json:"content"`
	URL            string                  `json:"url"`
	Tags           []string                `json:"tags"`
	SourceMetadata map[string]interface{}  `json:"source_metadata,omitempty"`
	Score          float64                 `json:"score"`
	Compliance     rtypes.ComplianceStatus `json:"compliance_status"`

	// events collects domain events until drained; never persisted.
	events []common.DomainEvent
}

// ─────────────────────────────────────────────────────────────────────────────
// Factory
// ─────────────────────────────────────────────────────────────────────────────

// NewResearchItem creates a pool item, enforcing every construction invariant:
//   - source must be a supported Source value.
//   - title must be non-empty after trimming and at most MaxTitleBytes.
//   - content must be non-empty after trimming and at most MaxContentBytes.
//   - url must start with http:// or https:// and fit MaxURLBytes.
//   - tags are normalized here (the single normalization authority).
//
// discoveredAt becomes CreatedAt; a zero value falls back to the current UTC
// time. New items start with score 0 and WARNING compliance until the
// validator and scorer have run.
func NewResearchItem(
	source rtypes.Source,
	title, content, url string,
	tags []string,
	metadata map[string]interface{},
	discoveredAt time.Time,
) (*ResearchItem, error) {
	if !source.IsValid() {
		return nil, errors.InvalidParam(fmt.Sprintf("unsupported source: %q", source))
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.InvalidParam("item title must not be empty")
	}
	if len(title) > MaxTitleBytes {
		return nil, errors.InvalidParam(
			fmt.Sprintf("item title exceeds %d bytes (got %d)", MaxTitleBytes, len(title)))
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.InvalidParam("item content must not be empty")
	}
	if len(content) > MaxContentBytes {
		return nil, errors.InvalidParam(
			fmt.Sprintf("item content exceeds %d bytes (got %d)", MaxContentBytes, len(content)))
	}

	url = strings.TrimSpace(url)
	if err := validateURL(url); err != nil {
		return nil, err
	}

	discoveredAt = discoveredAt.UTC()
	if discoveredAt.IsZero() {
		discoveredAt = time.Now().UTC()
	}

	item := &ResearchItem{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: discoveredAt,
			UpdatedAt: discoveredAt,
			Version:   1,
		},
		Source:         source,
		Title:          title,
		Content:        content,
		URL:            url,
		Tags:           NormalizeTags(tags),
		SourceMetadata: metadata,
		Score:          rtypes.MinScore,
		Compliance:     rtypes.ComplianceWarning,
	}

	item.recordEvent(NewItemPublishedEvent(item))

	return item, nil
}

// validateURL checks scheme and length of an item URL.
func validateURL(url string) error {
	if url == "" {
		return errors.InvalidParam("item url must not be empty")
	}
	if !reItemURL.MatchString(url) {
		return errors.InvalidParam(fmt.Sprintf("item url %q must start with http:// or https://", url))
	}
	if len(url) > MaxURLBytes {
		return errors.InvalidParam(
			fmt.Sprintf("item url exceeds %d bytes (got %d)", MaxURLBytes, len(url)))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Tag normalization
// ─────────────────────────────────────────────────────────────────────────────

// NormalizeTags is the single tag-normalization authority for the platform.
// Each raw tag is lowercased, trimmed, and has interior whitespace collapsed
// to single underscores; tags that are not ASCII or fall outside the
// [MinTagBytes, MaxTagBytes] byte range are dropped. The result is
// deduplicated, sorted lexicographically, and capped at MaxTags entries.
func NormalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		tag := strings.ToLower(strings.TrimSpace(t))
		tag = strings.Join(strings.Fields(tag), "_")
		if !isASCII(tag) {
			continue
		}
		if len(tag) < MinTagBytes || len(tag) > MaxTagBytes {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	if len(out) > MaxTags {
		out = out[:MaxTags]
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// RoundScore rounds a score to two decimal places, half away from zero.
func RoundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

// ─────────────────────────────────────────────────────────────────────────────
// Mutators
// ─────────────────────────────────────────────────────────────────────────────

// SetScore updates the composite score, enforcing the [MinScore, MaxScore]
// range and the rejected-items-score-zero invariant. The stored value is
// rounded to two decimal places. A ScoreUpdated event is recorded when the
// value changes.
func (r *ResearchItem) SetScore(score float64) error {
	if score < rtypes.MinScore || score > rtypes.MaxScore {
		return errors.InvalidParam(
			fmt.Sprintf("score %.4f is out of range [%.0f, %.0f]", score, rtypes.MinScore, rtypes.MaxScore))
	}
	if r.Compliance == rtypes.ComplianceRejected && score != 0 {
		return errors.InvalidParam("rejected items must keep score 0")
	}

	rounded := RoundScore(score)
	if rounded == r.Score {
		return nil
	}

	prev := r.Score
	r.Score = rounded
	r.touch()
	r.recordEvent(NewScoreUpdatedEvent(r, prev))
	return nil
}

// SetCompliance updates the compliance verdict. Transitioning to REJECTED
// forces the score to 0. A ComplianceChanged event is recorded when the
// verdict changes.
func (r *ResearchItem) SetCompliance(status rtypes.ComplianceStatus) error {
	if !status.IsValid() {
		return errors.InvalidParam(fmt.Sprintf("unsupported compliance status: %q", status))
	}
	if status == r.Compliance {
		return nil
	}

	prev := r.Compliance
	r.Compliance = status
	if status == rtypes.ComplianceRejected {
		r.Score = 0
	}
	r.touch()
	r.recordEvent(NewComplianceChangedEvent(r, prev))
	return nil
}

// Patch carries a partial update. Nil fields are left unchanged.
type Patch struct {
	Title          *string                  `json:"title,omitempty"`
	Content        *string                  `json:"content,omitempty"`
	URL            *string                  `json:"url,omitempty"`
	Tags           *[]string                `json:"tags,omitempty"`
	SourceMetadata *map[string]interface{}  `json:"source_metadata,omitempty"`
	Score          *float64                 `json:"score,omitempty"`
	Compliance     *rtypes.ComplianceStatus `json:"compliance,omitempty"`
}

// IsEmpty reports whether no field is set.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.URL == nil &&
		p.Tags == nil && p.SourceMetadata == nil && p.Score == nil && p.Compliance == nil
}

// ApplyPatch validates every set field and then applies them together, so a
// failed patch leaves the item untouched. Score and compliance changes obey
// the same invariants as SetScore and SetCompliance.
func (r *ResearchItem) ApplyPatch(p Patch) error {
	if p.IsEmpty() {
		return errors.InvalidParam("patch must set at least one field")
	}

	// Validate everything before mutating anything.
	var title, content, url string
	if p.Title != nil {
		title = strings.TrimSpace(*p.Title)
		if title == "" {
			return errors.InvalidParam("item title must not be empty")
		}
		if len(title) > MaxTitleBytes {
			return errors.InvalidParam(
				fmt.Sprintf("item title exceeds %d bytes (got %d)", MaxTitleBytes, len(title)))
		}
	}
	if p.Content != nil {
		content = strings.TrimSpace(*p.Content)
		if content == "" {
			return errors.InvalidParam("item content must not be empty")
		}
		if len(content) > MaxContentBytes {
			return errors.InvalidParam(
				fmt.Sprintf("item content exceeds %d bytes (got %d)", MaxContentBytes, len(content)))
		}
	}
	if p.URL != nil {
		url = strings.TrimSpace(*p.URL)
		if err := validateURL(url); err != nil {
			return err
		}
	}

	compliance := r.Compliance
	if p.Compliance != nil {
		if !p.Compliance.IsValid() {
			return errors.InvalidParam(fmt.Sprintf("unsupported compliance status: %q", *p.Compliance))
		}
		compliance = *p.Compliance
	}
	if p.Score != nil {
		if *p.Score < rtypes.MinScore || *p.Score > rtypes.MaxScore {
			return errors.InvalidParam(
				fmt.Sprintf("score %.4f is out of range [%.0f, %.0f]", *p.Score, rtypes.MinScore, rtypes.MaxScore))
		}
		if compliance == rtypes.ComplianceRejected && *p.Score != 0 {
			return errors.InvalidParam("rejected items must keep score 0")
		}
	}

	// Apply.
	prevScore, prevCompliance := r.Score, r.Compliance
	if p.Title != nil {
		r.Title = title
	}
	if p.Content != nil {
		r.Content = content
	}
	if p.URL != nil {
		r.URL = url
	}
	if p.Tags != nil {
		r.Tags = NormalizeTags(*p.Tags)
	}
	if p.SourceMetadata != nil {
		r.SourceMetadata = *p.SourceMetadata
	}
	if p.Compliance != nil {
		r.Compliance = compliance
	}
	if p.Score != nil {
		r.Score = RoundScore(*p.Score)
	}
	if r.Compliance == rtypes.ComplianceRejected {
		r.Score = 0
	}
	r.touch()

	if r.Score != prevScore {
		r.recordEvent(NewScoreUpdatedEvent(r, prevScore))
	}
	if r.Compliance != prevCompliance {
		r.recordEvent(NewComplianceChangedEvent(r, prevCompliance))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Domain event collection
// ─────────────────────────────────────────────────────────────────────────────

// Events returns the domain events accumulated since the last drain and
// clears the internal buffer. Application services publish these after the
// unit of work commits.
func (r *ResearchItem) Events() []common.DomainEvent {
	evts := r.events
	r.events = nil
	return evts
}

func (r *ResearchItem) recordEvent(evt common.DomainEvent) {
	r.events = append(r.events, evt)
}

// touch updates UpdatedAt and bumps the optimistic-lock Version. It must be
// called at the end of every mutating method.
func (r *ResearchItem) touch() {
	r.UpdatedAt = time.Now().UTC()
	r.Version++
}

// ─────────────────────────────────────────────────────────────────────────────
// DTO conversion
// ─────────────────────────────────────────────────────────────────────────────

// ToDTO converts the aggregate to its transport form. The unexported event
// buffer is not carried across.
func (r *ResearchItem) ToDTO() rtypes.ResearchItemDTO {
	return rtypes.ResearchItemDTO{
		ID:               r.ID,
		Source:           r.Source,
		Title:            r.Title,
		Content:          r.Content,
		URL:              r.URL,
		Tags:             r.Tags,
		SourceMetadata:   r.SourceMetadata,
		CreatedAt:        common.Timestamp(r.CreatedAt),
		UpdatedAt:        common.Timestamp(r.UpdatedAt),
		Score:            r.Score,
		ComplianceStatus: r.Compliance,
	}
}

// ExternalID returns the upstream identifier recorded by the harvester, or
// "" when the metadata carries none. The pool's cross-source uniqueness key
// is (source, external_id).
func (r *ResearchItem) ExternalID() string {
	if r.SourceMetadata == nil {
		return ""
	}
	if v, ok := r.SourceMetadata["external_id"].(string); ok {
		return v
	}
	return ""
}
