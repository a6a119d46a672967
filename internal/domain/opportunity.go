package domain

import (
	"strings"
	"time"
)

// Source identifies which site scraper produced a record.
type Source string

const (
	SourceGSO Source = "Global South Opportunities"
	SourceOFY Source = "Opportunities For Youth"
	SourceOD  Source = "Opportunity Desk"
)

// Status tracks where a raw opportunity sits in the analysis lifecycle.
type Status string

const (
	StatusPendingAnalysis Status = "pending_analysis"
	StatusRelevant        Status = "processed_relevant"
	StatusIrrelevant      Status = "processed_irrelevant"
	StatusAIError         Status = "processed_ai_error"
	StatusExpired         Status = "processed_expired"
)

// RawOpportunity is a scraped posting as first landed, keyed by link.
// Content is written once on first sighting; only the status mutates afterwards.
type RawOpportunity struct {
	Link      string    `db:"link"`
	Title     string    `db:"title"`
	Source    Source    `db:"source"`
	FullText  string    `db:"full_text"`
	Status    Status    `db:"status"`
	ScrapedAt time.Time `db:"scraped_at"`
}

// ProcessedOpportunity is an accepted, enriched record. Written exactly once
// per relevant raw opportunity; maintenance may later delete it.
type ProcessedOpportunity struct {
	Link            string     `db:"link"`
	Title           string     `db:"title"`
	Source          Source     `db:"source"`
	GeographicScope string     `db:"geographic_scope"`
	FundingAmount   string     `db:"funding_amount"`
	Funder          string     `db:"funder"`
	Deadline        *time.Time `db:"deadline"`
	RawDeadlineText string     `db:"raw_deadline_text"`
	FocusAreas      string     `db:"focus_areas"`
	Summary         string     `db:"summary"`
	ProcessedAt     time.Time  `db:"processed_at"`
}

// StatusUpdate is one entry of the batched raw-store status commit.
type StatusUpdate struct {
	Link   string
	Status Status
}

// GeoScope lists the locations the classifier found eligible and excluded.
type GeoScope struct {
	Eligible []string `json:"eligible"`
	Excluded []string `json:"excluded"`
}

// Enrichment carries the structured metadata extracted by the classifier.
// On classifier failure the fields hold sentinel tokens instead of data.
type Enrichment struct {
	FocusAreas    []string `json:"focus_areas"`
	FundingAmount string   `json:"funding_amount"`
	Funder        string   `json:"funder"`
	Deadline      string   `json:"deadline"`
	Summary       string   `json:"summary"`
}

// Sentinel tokens signaled by the classifier adapter instead of errors, so
// callers branch on values rather than exception paths.
const (
	SummaryCallFailed    = "AI call failed after retries."
	SummaryMalformedJSON = "AI returned malformed JSON."
	SummaryNoJSONObject  = "No JSON object in AI response."
	FieldError           = "Error"
)

// TransientFailure reports that the classifier exhausted its retries; the
// item must stay pending and be reattempted on a later run.
func (e Enrichment) TransientFailure() bool {
	return strings.Contains(e.Summary, "AI call failed")
}

// Malformed reports that the classifier answered but its output carried no
// usable JSON object. Permanent: the item is discarded, never retried.
func (e Enrichment) Malformed() bool {
	return e.FundingAmount == FieldError ||
		strings.Contains(e.Summary, "malformed JSON") ||
		strings.Contains(e.Summary, "No JSON object")
}
