package compliance

import "regexp"

// ──────────────────────────────────────────────────────────────────────────
// Citation detection
// ──────────────────────────────────────────────────────────────────────────

var (
	reDOI      = regexp.MustCompile(`10\.\d{4,}/\S+`)
	rePMID     = regexp.MustCompile(`PMID[:\s]*(\d{7,})`)
	rePubMed   = regexp.MustCompile(`pubmed\.ncbi\.nlm\.nih\.gov/\d+`)
	reDOIURL   = regexp.MustCompile(`doi\.org/10\.\d{4,}`)
	rePMCParts = regexp.MustCompile(`ncbi\.nlm\.nih\.gov/pmc/articles/PMC\d+`)
)

// CitationInfo carries the scientific identifiers detected on an item.
type CitationInfo struct {
	DOI           string `json:"doi,omitempty"`
	PMID          string `json:"pmid,omitempty"`
	ScientificURL string `json:"scientific_url,omitempty"`
}

// HasCitation reports whether any identifier was detected.
func (c CitationInfo) HasCitation() bool {
	return c.DOI != "" || c.PMID != "" || c.ScientificURL != ""
}

// DetectCitations scans the composed text and the item's source metadata
// for scientific identifiers. Inline matches win over metadata keys.
func DetectCitations(text string, metadata map[string]interface{}) CitationInfo {
	info := CitationInfo{}

	if m := reDOI.FindString(text); m != "" {
		info.DOI = m
	} else if v := metadataString(metadata, "doi"); v != "" {
		info.DOI = v
	}

	if m := rePMID.FindStringSubmatch(text); m != nil {
		info.PMID = m[1]
	} else if v := metadataString(metadata, "pmid"); v != "" {
		info.PMID = v
	}

	for _, re := range []*regexp.Regexp{rePubMed, reDOIURL, rePMCParts} {
		if m := re.FindString(text); m != "" {
			info.ScientificURL = m
			break
		}
	}

	return info
}

func metadataString(metadata map[string]interface{}, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}
