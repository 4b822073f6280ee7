package scoring

import (
	"regexp"
	"strings"
)

// ──────────────────────────────────────────────────────────────────────────
// Relevance lexicons
// ──────────────────────────────────────────────────────────────────────────

// Built-in lexicons target the sports-nutrition research domain. The
// primary list carries product compounds and their Latin equivalents, the
// secondary one wellness themes. Both can be replaced through scoring
// configuration.
var defaultPrimaryConcepts = []string{
	"creatine",
	"creatine monohydrate",
	"magnesium",
	"magnesium glycinate",
	"ashwagandha",
	"withania somnifera",
	"beta-alanine",
	"l-theanine",
	"citrulline",
	"citrulline malate",
	"caffeine",
	"whey protein",
	"casein protein",
	"melatonin",
	"omega-3",
	"fish oil",
	"curcumin",
	"turmeric",
	"rhodiola",
	"rhodiola rosea",
	"zinc",
	"vitamin d",
	"collagen",
	"electrolytes",
	"taurine",
	"lion's mane",
	"hericium erinaceus",
	"chaga",
	"inonotus obliquus",
	"reishi",
	"ganoderma lucidum",
	"cordyceps",
}

var defaultSecondaryConcepts = []string{
	"sleep",
	"recovery",
	"strength",
	"endurance",
	"hypertrophy",
	"muscle",
	"focus",
	"stress",
	"energy",
	"performance",
	"immunity",
	"hydration",
	"metabolism",
	"inflammation",
	"memory",
}

// conceptEntry binds a lexicon phrase to its dedup key: the phrase's first
// word. Variants of the same compound ("magnesium", "magnesium glycinate")
// collapse into one concept so synonyms never double-count.
type conceptEntry struct {
	concept string
	re      *regexp.Regexp
}

type relevanceLexicon struct {
	primary   []conceptEntry
	secondary []conceptEntry
}

// newRelevanceLexicon compiles both concept lists. Empty lists fall back to
// the built-in defaults.
func newRelevanceLexicon(primary, secondary []string) relevanceLexicon {
	if len(primary) == 0 {
		primary = defaultPrimaryConcepts
	}
	if len(secondary) == 0 {
		secondary = defaultSecondaryConcepts
	}
	return relevanceLexicon{
		primary:   compileConcepts(primary),
		secondary: compileConcepts(secondary),
	}
}

func compileConcepts(phrases []string) []conceptEntry {
	out := make([]conceptEntry, 0, len(phrases))
	for _, phrase := range phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		first, _, _ := strings.Cut(phrase, " ")
		out = append(out, conceptEntry{
			concept: first,
			re:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`),
		})
	}
	return out
}

// matchUnique counts the distinct concepts each lexicon hits in the text.
func (l relevanceLexicon) matchUnique(text string) (primary, secondary int) {
	return countConcepts(l.primary, text), countConcepts(l.secondary, text)
}

func countConcepts(entries []conceptEntry, text string) int {
	matched := make(map[string]struct{})
	for _, e := range entries {
		if _, done := matched[e.concept]; done {
			continue
		}
		if e.re.MatchString(text) {
			matched[e.concept] = struct{}{}
		}
	}
	return len(matched)
}
