package harvest

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"github.com/turtacn/ResearchPool-Intelligence/internal/domain/research"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ──────────────────────────────────────────────────────────────────────────
// Normalizer
// ──────────────────────────────────────────────────────────────────────────

const (
	// captionTitleGraphemes is how much of a caption becomes the title.
	captionTitleGraphemes = 100

	titleEllipsis = "…"

	competitorTag = "competitor"
)

// Rules carries the per-source normalization behavior. The source profile
// builds one per source: caption titling for sources whose posts have no
// native title, the tag lexicon and competitor names from configuration,
// and the base URL for absolutizing relative links.
type Rules struct {
	CaptionTitle bool
	BaseURL      string
	TagLexicon   map[string][]string
	Competitors  []string
}

// Normalizer maps harvested records into pool items. The mapping is
// deterministic; identity, score, and the final compliance verdict are
// assigned later in the run.
type Normalizer struct {
	source      rtypes.Source
	rules       Rules
	lexicon     map[string][]*regexp.Regexp
	competitors []*regexp.Regexp
	logger      logging.Logger
}

// NewNormalizer compiles the rule lexicons for one source.
func NewNormalizer(source rtypes.Source, rules Rules, logger logging.Logger) *Normalizer {
	lexicon := make(map[string][]*regexp.Regexp, len(rules.TagLexicon))
	for tag, keywords := range rules.TagLexicon {
		patterns := make([]*regexp.Regexp, 0, len(keywords))
		for _, kw := range keywords {
			if p := wordPattern(kw); p != nil {
				patterns = append(patterns, p)
			}
		}
		if len(patterns) > 0 {
			lexicon[tag] = patterns
		}
	}
	competitors := make([]*regexp.Regexp, 0, len(rules.Competitors))
	for _, name := range rules.Competitors {
		if p := wordPattern(name); p != nil {
			competitors = append(competitors, p)
		}
	}
	return &Normalizer{
		source:      source,
		rules:       rules,
		lexicon:     lexicon,
		competitors: competitors,
		logger: logger.With(
			logging.String("component", "normalizer"),
			logging.String("source", string(source)),
		),
	}
}

// wordPattern compiles a case-insensitive word-boundary matcher for one
// keyword. Blank keywords yield nil.
func wordPattern(keyword string) *regexp.Regexp {
	kw := strings.TrimSpace(keyword)
	if kw == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
}

// Normalize converts one harvested record into a pool item. Construction
// errors (a record that cannot satisfy the item invariants) surface to the
// caller, which counts the item as failed and continues the run.
func (n *Normalizer) Normalize(rec HarvestedRecord) (*research.ResearchItem, error) {
	title := n.buildTitle(rec)
	content := n.buildContent(rec)
	if content == "" {
		content = title
	}

	item, err := research.NewResearchItem(
		n.source,
		title,
		content,
		n.absolutize(rec.URL),
		n.buildTags(rec, title, content),
		n.buildMetadata(rec),
		publishedOrZero(rec.PublishedAt),
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ──────────────────────────────────────────────────────────────────────────
// Title
// ──────────────────────────────────────────────────────────────────────────

func (n *Normalizer) buildTitle(rec HarvestedRecord) string {
	title := CollapseWhitespace(StripMarkdown(StripHTML(rec.Title)))

	switch {
	case n.rules.CaptionTitle && title == "":
		title = n.accountTitle(rec)
	case n.rules.CaptionTitle:
		title = capGraphemes(title, captionTitleGraphemes)
	case title == "":
		if fromBody := capGraphemes(rec.Body, captionTitleGraphemes); fromBody != "" {
			title = fromBody
		} else {
			title = n.accountTitle(rec)
		}
	}

	if len(title) > research.MaxTitleBytes {
		title = truncateRuneSafe(title, research.MaxTitleBytes-len(titleEllipsis)) + titleEllipsis
	}
	return title
}

// accountTitle synthesizes a title for records with no usable text.
func (n *Normalizer) accountTitle(rec HarvestedRecord) string {
	account := rec.Extra["account"]
	if account == "" {
		account = rec.Author
	}
	if account == "" {
		return "untitled post"
	}
	return "post from @" + strings.TrimPrefix(account, "@")
}

// capGraphemes keeps the first limit grapheme clusters, appending an
// ellipsis when anything was cut.
func capGraphemes(s string, limit int) string {
	if s == "" || limit <= 0 {
		return ""
	}
	g := uniseg.NewGraphemes(s)
	count, end := 0, 0
	for g.Next() {
		count++
		_, end = g.Positions()
		if count == limit {
			break
		}
	}
	if end >= len(s) {
		return s
	}
	return strings.TrimSpace(s[:end]) + titleEllipsis
}

// ──────────────────────────────────────────────────────────────────────────
// Content
// ──────────────────────────────────────────────────────────────────────────

func (n *Normalizer) buildContent(rec HarvestedRecord) string {
	sections := make([]string, 0, 3)

	if body := CollapseWhitespace(StripMarkdown(rec.Body)); body != "" {
		sections = append(sections, body)
	}
	if findings := findingsSection(rec.Summary); findings != "" {
		sections = append(sections, "## Key Findings\n"+findings)
	}
	if guidance := guidanceSection(rec.Claims); guidance != "" {
		sections = append(sections, "## Usage Guidance\n"+guidance)
	}

	return truncateRuneSafe(strings.Join(sections, "\n\n"), research.MaxContentBytes)
}

func findingsSection(s *AnalysisSummary) string {
	if s == nil {
		return ""
	}
	lines := make([]string, 0, 4)
	if s.Compound != "" && s.Effect != "" {
		lines = append(lines, cleanLine(s.Compound)+": "+cleanLine(s.Effect))
	}
	if s.Findings != "" {
		lines = append(lines, cleanLine(s.Findings))
	}
	if s.Significance != "" {
		lines = append(lines, "Significance: "+cleanLine(s.Significance))
	}
	if s.Strength != "" {
		lines = append(lines, "Study strength: "+cleanLine(s.Strength))
	}
	return strings.Join(lines, "\n")
}

func guidanceSection(c *ClaimAssessment) string {
	if c == nil {
		return ""
	}
	lines := make([]string, 0, 2)
	if c.Reason != "" {
		lines = append(lines, cleanLine(c.Reason))
	}
	if len(c.ContentPotential) > 0 {
		uses := make([]string, len(c.ContentPotential))
		for i, u := range c.ContentPotential {
			uses[i] = string(u)
		}
		lines = append(lines, "Permitted uses: "+strings.Join(uses, ", "))
	}
	return strings.Join(lines, "\n")
}

func cleanLine(s string) string {
	return CollapseWhitespace(StripMarkdown(StripHTML(s)))
}

// ──────────────────────────────────────────────────────────────────────────
// Tags, URL, metadata
// ──────────────────────────────────────────────────────────────────────────

func (n *Normalizer) buildTags(rec HarvestedRecord, title, content string) []string {
	text := title + " " + content
	raw := make([]string, 0, 8)

	for tag, patterns := range n.lexicon {
		for _, p := range patterns {
			if p.MatchString(text) {
				raw = append(raw, tag)
				break
			}
		}
	}

	raw = append(raw, string(n.source))

	for _, p := range n.competitors {
		if p.MatchString(text) {
			raw = append(raw, competitorTag)
			break
		}
	}

	if st := rec.Extra["study_type"]; st != "" {
		raw = append(raw, st)
	}
	if fam := rec.Extra["study_family"]; fam != "" {
		raw = append(raw, fam)
	}
	if rec.Summary != nil {
		raw = append(raw, rec.Summary.UsageTags...)
	}

	return research.NormalizeTags(raw)
}

func (n *Normalizer) absolutize(raw string) string {
	if raw == "" ||
		strings.HasPrefix(raw, "http://") ||
		strings.HasPrefix(raw, "https://") ||
		n.rules.BaseURL == "" {
		return raw
	}
	base, err := url.Parse(n.rules.BaseURL)
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

func (n *Normalizer) buildMetadata(rec HarvestedRecord) map[string]interface{} {
	meta := map[string]interface{}{
		"external_id": rec.ExternalID,
	}
	// News has no comparable engagement signal; every other source reports
	// one, so a zero count is a real observation and must survive into the
	// pool rather than read as "signal absent".
	if n.source != rtypes.SourceNews {
		meta["engagement"] = rec.Engagement
	}
	author := rec.Author
	if author == "" {
		author = rec.Extra["account"]
	}
	if author != "" {
		meta["author"] = author
	}
	if rec.PublishedAt != nil {
		meta["published_at"] = rec.PublishedAt.UTC().Format(time.RFC3339)
	}
	if doi := rec.Extra["doi"]; doi != "" {
		meta["doi"] = doi
	}
	if pmid := rec.Extra["pmid"]; pmid != "" {
		meta["pmid"] = pmid
	}
	if st := rec.Extra["study_type"]; st != "" {
		meta["study_type"] = st
	}
	if rec.Summary != nil && rec.Summary.Strength != "" {
		meta["study_strength"] = rec.Summary.Strength
	}
	if rec.Claims != nil {
		meta["can_make_claim"] = rec.Claims.CanMakeClaim
		if len(rec.Claims.ContentPotential) > 0 {
			uses := make([]string, len(rec.Claims.ContentPotential))
			for i, u := range rec.Claims.ContentPotential {
				uses[i] = string(u)
			}
			meta["content_potential"] = uses
		}
	}
	return meta
}

// publishedOrZero lets the item factory fall back to the current time when
// the upstream never told us a publication time.
func publishedOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func truncateRuneSafe(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
