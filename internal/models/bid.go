package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid statuses, in lifecycle order. Transitions only ever move forward:
// new -> analyzed -> pre-filled -> submitted.
const (
	StatusNew       = "new"
	StatusAnalyzed  = "analyzed"
	StatusPreFilled = "pre-filled"
	StatusSubmitted = "submitted"
)

// Activity type tags.
const (
	ActivityDiscovery  = "discovery"
	ActivityAnalysis   = "analysis"
	ActivityPrefill    = "prefill"
	ActivitySubmission = "submission"
)

type Bid struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"userId"`
	Title            string            `json:"title"`
	Agency           string            `json:"agency"`
	Location         string            `json:"location"`
	Description      string            `json:"description"`
	Deadline         *time.Time        `json:"deadline"`
	Portal           string            `json:"portal"`
	SourceURL        string            `json:"sourceUrl"`
	RelevanceScore   float64           `json:"relevanceScore"`
	Status           string            `json:"status"`
	Requirements     *Requirements     `json:"requirements,omitempty"`
	PreFilledData    map[string]string `json:"preFilledData,omitempty"`
	PreFilledPath    string            `json:"preFilledPath,omitempty"`
	SubmissionMethod string            `json:"submissionMethod,omitempty"`
	SubmissionEmail  string            `json:"submissionEmail,omitempty"`
	AnalyzedAt       *time.Time        `json:"analyzedAt,omitempty"`
	PreFilledAt      *time.Time        `json:"preFilledAt,omitempty"`
	SubmittedAt      *time.Time        `json:"submittedAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Requirements is the analysis agent's extract for a bid: what the agency
// demands of a bidder before a submission is considered.
type Requirements struct {
	Deadline          string `json:"deadline,omitempty"`
	BondRequired      bool   `json:"bondRequired"`
	InsuranceRequired bool   `json:"insuranceRequired"`
	LicenseRequired   bool   `json:"licenseRequired"`
	EstimatedValue    string `json:"estimatedValue,omitempty"`
}

// Activity is an append-only audit record. Never mutated after insert.
type Activity struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"userId"`
	Type      string     `json:"type"`
	Message   string     `json:"message"`
	BidID     *uuid.UUID `json:"bidId,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

type UserProfile struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"userId"`
	Role          string    `json:"role"`
	CompanyName   string    `json:"companyName"`
	BusinessType  string    `json:"businessType"`
	NAICSCodes    []string  `json:"naicsCodes"`
	Geography     string    `json:"geography"`
	UploadedFiles []string  `json:"uploadedFiles"`
	Keywords      []string  `json:"keywords"`
	Portals       []string  `json:"portals"`
	Completed     bool      `json:"hasCompletedOnboarding"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AgentState is the last reported state of one agent capability for a user,
// shown in the dashboard status banner.
type AgentState struct {
	Capability string    `json:"capability"`
	Status     string    `json:"status"` // idle, running, completed, failed
	Message    string    `json:"message,omitempty"`
	UpdatedAt  time.Time `json:"lastUpdated"`
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s string) bool {
	switch s {
	case StatusNew, StatusAnalyzed, StatusPreFilled, StatusSubmitted:
		return true
	}
	return false
}

// NextStatus returns the successor of a lifecycle status, or "" for the
// terminal state.
func NextStatus(s string) string {
	switch s {
	case StatusNew:
		return StatusAnalyzed
	case StatusAnalyzed:
		return StatusPreFilled
	case StatusPreFilled:
		return StatusSubmitted
	}
	return ""
}
