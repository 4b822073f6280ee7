package research

import (
	"github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

type ItemPublishedEvent struct {
	common.BaseEvent
	Source     rtypes.Source           `json:"source"`
	Title      string                  `json:"title"`
	URL        string                  `json:"url"`
	Tags       []string                `json:"tags"`
	Score      float64                 `json:"score"`
	Compliance rtypes.ComplianceStatus `json:"compliance_status"`
	Version    int                     `json:"version"`
}

func NewItemPublishedEvent(r *ResearchItem) *ItemPublishedEvent {
	return &ItemPublishedEvent{
		BaseEvent:  common.NewBaseEvent(r.ID.String()),
		Source:     r.Source,
		Title:      r.Title,
		URL:        r.URL,
		Tags:       r.Tags,
		Score:      r.Score,
		Compliance: r.Compliance,
		Version:    r.Version,
	}
}

type ScoreUpdatedEvent struct {
	common.BaseEvent
	Source        rtypes.Source `json:"source"`
	PreviousScore float64       `json:"previous_score"`
	Score         float64       `json:"score"`
	Version       int           `json:"version"`
}

func NewScoreUpdatedEvent(r *ResearchItem, previous float64) *ScoreUpdatedEvent {
	return &ScoreUpdatedEvent{
		BaseEvent:     common.NewBaseEvent(r.ID.String()),
		Source:        r.Source,
		PreviousScore: previous,
		Score:         r.Score,
		Version:       r.Version,
	}
}

type ComplianceChangedEvent struct {
	common.BaseEvent
	Source             rtypes.Source           `json:"source"`
	PreviousCompliance rtypes.ComplianceStatus `json:"previous_compliance"`
	Compliance         rtypes.ComplianceStatus `json:"compliance_status"`
	Score              float64                 `json:"score"`
	Version            int                     `json:"version"`
}

func NewComplianceChangedEvent(r *ResearchItem, previous rtypes.ComplianceStatus) *ComplianceChangedEvent {
	return &ComplianceChangedEvent{
		BaseEvent:          common.NewBaseEvent(r.ID.String()),
		Source:             r.Source,
		PreviousCompliance: previous,
		Compliance:         r.Compliance,
		Score:              r.Score,
		Version:            r.Version,
	}
}
