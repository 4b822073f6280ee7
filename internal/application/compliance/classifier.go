package compliance

import (
	"regexp"

	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ──────────────────────────────────────────────────────────────────────────
// Phrase classification
// ──────────────────────────────────────────────────────────────────────────

// Regulation references attached to flagged phrases.
const (
	RefFTCGuidance = "FTC Health Products Compliance Guidance"
	RefFDA10193    = "FDA 21 CFR 101.93"
	RefDSHEA       = "DSHEA structure/function rules"
	RefEditorial   = "internal editorial policy"
)

// Phrase categories.
const (
	CategoryDiseaseClaim     = "disease_claim"
	CategoryAbsoluteClaim    = "absolute_claim"
	CategoryFalseEndorsement = "false_endorsement"
	CategoryUnsubstantiated  = "unsubstantiated_efficacy"
	CategoryImpliedDisease   = "implied_disease_claim"
	CategorySourcePolicy     = "source_policy"
)

// FlaggedPhrase is one lexicon hit in the reviewed text.
type FlaggedPhrase struct {
	Phrase        string `json:"phrase"`
	Category      string `json:"category"`
	RegulationRef string `json:"regulation_ref"`
}

// PhraseReport is the classifier verdict before citation adjustment.
type PhraseReport struct {
	Overall rtypes.ComplianceStatus
	Flagged []FlaggedPhrase
}

// PhraseClassifier reviews composed item text against a phrase taxonomy.
// The worst matched category decides the overall status: any prohibited
// phrase rejects, any borderline phrase warns, clean text is compliant.
type PhraseClassifier interface {
	Classify(text string) PhraseReport
}

type lexiconEntry struct {
	phrase        string
	category      string
	regulationRef string
	re            *regexp.Regexp
}

// Supplements may not claim to diagnose, treat, cure, or prevent disease.
// These phrases reject outright.
var prohibitedLexicon = []lexiconEntry{
	newEntry("cures", CategoryDiseaseClaim, RefFDA10193),
	newEntry("cure for", CategoryDiseaseClaim, RefFDA10193),
	newEntry("treats", CategoryDiseaseClaim, RefFDA10193),
	newEntry("treatment for", CategoryDiseaseClaim, RefFDA10193),
	newEntry("heals", CategoryDiseaseClaim, RefFDA10193),
	newEntry("prevents disease", CategoryDiseaseClaim, RefFDA10193),
	newEntry("reverses disease", CategoryDiseaseClaim, RefFDA10193),
	newEntry("miracle cure", CategoryAbsoluteClaim, RefFTCGuidance),
	newEntry("guaranteed results", CategoryAbsoluteClaim, RefFTCGuidance),
	newEntry("no side effects", CategoryAbsoluteClaim, RefFTCGuidance),
	newEntry("fda approved", CategoryFalseEndorsement, RefFTCGuidance),
}

// Borderline phrasing warns but keeps the item in the pool.
var borderlineLexicon = []lexiconEntry{
	newEntry("clinically proven", CategoryUnsubstantiated, RefFTCGuidance),
	newEntry("scientifically proven", CategoryUnsubstantiated, RefFTCGuidance),
	newEntry("doctor recommended", CategoryUnsubstantiated, RefFTCGuidance),
	newEntry("burns fat", CategoryUnsubstantiated, RefFTCGuidance),
	newEntry("melts fat", CategoryUnsubstantiated, RefFTCGuidance),
	newEntry("instant results", CategoryUnsubstantiated, RefFTCGuidance),
	newEntry("detox", CategoryUnsubstantiated, RefFTCGuidance),
	newEntry("anti-aging", CategoryUnsubstantiated, RefFTCGuidance),
	newEntry("boosts immunity", CategoryImpliedDisease, RefDSHEA),
	newEntry("fights inflammation", CategoryImpliedDisease, RefDSHEA),
	newEntry("lowers cholesterol", CategoryImpliedDisease, RefDSHEA),
	newEntry("increases testosterone", CategoryImpliedDisease, RefDSHEA),
}

func newEntry(phrase, category, ref string) lexiconEntry {
	return lexiconEntry{
		phrase:        phrase,
		category:      category,
		regulationRef: ref,
		re:            regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`),
	}
}

// LexiconClassifier implements PhraseClassifier over the built-in taxonomy
// plus per-source phrase extensions from configuration.
type LexiconClassifier struct {
	prohibited []lexiconEntry
	borderline []lexiconEntry
}

// NewLexiconClassifier builds a classifier. extraProhibited and extraWarning
// extend the built-in lexicons with source-specific phrases; they carry the
// source_policy category.
func NewLexiconClassifier(extraProhibited, extraWarning []string) *LexiconClassifier {
	c := &LexiconClassifier{
		prohibited: append([]lexiconEntry(nil), prohibitedLexicon...),
		borderline: append([]lexiconEntry(nil), borderlineLexicon...),
	}
	for _, phrase := range extraProhibited {
		if phrase == "" {
			continue
		}
		c.prohibited = append(c.prohibited, newEntry(phrase, CategorySourcePolicy, RefEditorial))
	}
	for _, phrase := range extraWarning {
		if phrase == "" {
			continue
		}
		c.borderline = append(c.borderline, newEntry(phrase, CategorySourcePolicy, RefEditorial))
	}
	return c
}

// Classify scans the text against both lexicons. Every matched phrase is
// reported once regardless of how often it occurs.
func (c *LexiconClassifier) Classify(text string) PhraseReport {
	report := PhraseReport{Overall: rtypes.ComplianceCompliant}

	for _, entry := range c.prohibited {
		if entry.re.MatchString(text) {
			report.Flagged = append(report.Flagged, FlaggedPhrase{
				Phrase:        entry.phrase,
				Category:      entry.category,
				RegulationRef: entry.regulationRef,
			})
			report.Overall = rtypes.ComplianceRejected
		}
	}
	for _, entry := range c.borderline {
		if entry.re.MatchString(text) {
			report.Flagged = append(report.Flagged, FlaggedPhrase{
				Phrase:        entry.phrase,
				Category:      entry.category,
				RegulationRef: entry.regulationRef,
			})
			if report.Overall != rtypes.ComplianceRejected {
				report.Overall = rtypes.ComplianceWarning
			}
		}
	}
	return report
}
