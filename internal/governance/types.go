// Package governance bookkeeps critic findings as reviewable proposals:
// dedup by fingerprint, a strict state machine, an append-only ledger and
// versioned doctrine. No doctrine is ever applied automatically here.
package governance

import (
	"encoding/json"
	"time"
)

// CriticType identifies which critic family produced a proposal.
type CriticType string

const (
	CriticLeakage  CriticType = "LEAKAGE"
	CriticBias     CriticType = "BIAS"
	CriticFeature  CriticType = "FEATURE"
	CriticDecision CriticType = "DECISION"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// ProposalStatus is the state-machine position of a proposal.
type ProposalStatus string

const (
	StatusDraft      ProposalStatus = "DRAFT"
	StatusPending    ProposalStatus = "PENDING"
	StatusAccepted   ProposalStatus = "ACCEPTED"
	StatusRejected   ProposalStatus = "REJECTED"
	StatusRolledBack ProposalStatus = "ROLLED_BACK"
)

// LedgerAction is a governance decision recorded immutably.
type LedgerAction string

const (
	ActionAccept   LedgerAction = "ACCEPT"
	ActionReject   LedgerAction = "REJECT"
	ActionRollback LedgerAction = "ROLLBACK"
)

// ArtifactType tags the three episode blobs.
type ArtifactType string

const (
	ArtifactPreState  ArtifactType = "PRE_STATE"
	ArtifactInference ArtifactType = "INFERENCE"
	ArtifactOutcome   ArtifactType = "OUTCOME"
)

// Episode is one observable race as an epistemic unit. DecisionTime is the
// knowledge cutoff used everywhere downstream; CreatedAt is wall clock and
// exists only for audit.
type Episode struct {
	ID          string     `json:"id" db:"id"`
	DecisionTime time.Time `json:"decision_time" db:"decision_time"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ContextHash string     `json:"context_hash" db:"context_hash"`
	Finalized   bool       `json:"finalized" db:"finalized"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty" db:"finalized_at"`
}

// Artifact is one typed episode blob, id = "{episode_id}_{type}".
type Artifact struct {
	ID        string          `json:"id" db:"id"`
	EpisodeID string          `json:"episode_id" db:"episode_id"`
	Type      ArtifactType    `json:"artifact_type" db:"artifact_type"`
	Content   json.RawMessage `json:"content" db:"content"`
	Checksum  string          `json:"checksum" db:"checksum"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Draft is a critic finding before persistence assigns identity.
type Draft struct {
	Severity       Severity       `json:"severity"`
	FindingType    string         `json:"finding_type"`
	Description    string         `json:"description"`
	ProposedChange map[string]any `json:"proposed_change"`
}

// Proposal is a persisted finding subject to human review. Duplicates
// (same fingerprint) share a row; only episode links multiply.
type Proposal struct {
	ID                    string          `json:"id" db:"id"`
	EpisodeID             string          `json:"episode_id" db:"episode_id"`
	Critic                CriticType      `json:"critic_type" db:"critic_type"`
	Severity              Severity        `json:"severity" db:"severity"`
	FindingType           string          `json:"finding_type" db:"finding_type"`
	Description           string          `json:"description" db:"description"`
	ProposedChange        json.RawMessage `json:"proposed_change" db:"proposed_change"`
	Fingerprint           string          `json:"fingerprint" db:"fingerprint"`
	Status                ProposalStatus  `json:"status" db:"status"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	ReviewedAt            *time.Time      `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewerID            *string         `json:"reviewer_id,omitempty" db:"reviewer_id"`
	ReviewRationale       *string         `json:"review_rationale,omitempty" db:"review_rationale"`
	DoctrineVersionBefore *string         `json:"doctrine_version_before,omitempty" db:"doctrine_version_before"`
	DoctrineVersionAfter  *string         `json:"doctrine_version_after,omitempty" db:"doctrine_version_after"`
}

// ProposalDetail enriches a proposal with its cross-episode links and
// ledger history.
type ProposalDetail struct {
	Proposal
	SimilarEpisodes []string      `json:"similar_episodes"`
	Ledger          []LedgerEntry `json:"ledger"`
}

// DoctrineVersion is one row of the versioned rule set. Exactly one row is
// active at any time.
type DoctrineVersion struct {
	Version       string          `json:"version" db:"version"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	CreatedBy     string          `json:"created_by" db:"created_by"`
	Description   string          `json:"description" db:"description"`
	RulesSnapshot json.RawMessage `json:"rules_snapshot" db:"rules_snapshot"`
	ParentVersion *string         `json:"parent_version,omitempty" db:"parent_version"`
	Active        bool            `json:"active" db:"active"`
}

// LedgerEntry is one immutable governance action. Entries are append-only.
type LedgerEntry struct {
	ID                      string          `json:"id" db:"id"`
	ProposalID              string          `json:"proposal_id" db:"proposal_id"`
	Action                  LedgerAction    `json:"action" db:"action"`
	Actor                   string          `json:"actor" db:"actor"`
	Timestamp               time.Time       `json:"timestamp" db:"ts"`
	Rationale               string          `json:"rationale" db:"rationale"`
	DoctrineVersionSnapshot string          `json:"doctrine_version_snapshot" db:"doctrine_version_snapshot"`
	EpisodeCountAtDecision  int64           `json:"episode_count_at_decision" db:"episode_count_at_decision"`
	Metadata                json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}

// Stats summarizes the governance store.
type Stats struct {
	CountsByStatus map[ProposalStatus]int64 `json:"counts_by_status"`
	TotalProposals int64                    `json:"total_proposals"`
	AcceptanceRate float64                  `json:"acceptance_rate"`
	ActiveVersion  string                   `json:"active_version"`
}

// ProposalFilter narrows list queries.
type ProposalFilter struct {
	Status *ProposalStatus
	Critic *CriticType
	Limit  int
	Offset int
}
