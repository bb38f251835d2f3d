package governance

import (
	"context"
	"fmt"
	"time"
)

// ConflictError reports an attempted transition from a wrong current
// state. No ledger entry is written for a conflicting call.
type ConflictError struct {
	ProposalID string
	Current    ProposalStatus
	Attempted  LedgerAction
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("proposal %s is %s; %s requires a different state", e.ProposalID, e.Current, e.Attempted)
}

// NotFoundError reports a missing row.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Review carries the human decision on a proposal.
type Review struct {
	Reviewer  string
	Rationale string
	Bump      VersionBump    // accept only; empty defaults to MINOR
	Metadata  map[string]any // optional, recorded in the ledger entry
}

// Store is the governance persistence surface. Transitions are
// linearizable per proposal; the ledger is append-only.
type Store interface {
	EnsureSchema(ctx context.Context) error

	CreateEpisode(ctx context.Context, ep Episode) error // INSERT IF NOT EXISTS
	GetEpisode(ctx context.Context, id string) (*Episode, error)
	FinalizeEpisode(ctx context.Context, id string, at time.Time) error
	CountEpisodes(ctx context.Context) (int64, error)

	SaveArtifact(ctx context.Context, a Artifact) error

	// PersistProposals dedups per fingerprint: an existing row gains an
	// episode link, a new finding inserts as DRAFT. Returns proposal ids
	// in draft order.
	PersistProposals(ctx context.Context, episodeID string, critic CriticType, drafts []Draft) ([]string, error)

	// TransitionToPending flips all DRAFT proposals anchored to or linked
	// with the episode and returns the explicit row count per batch.
	TransitionToPending(ctx context.Context, episodeID string) (int64, error)

	ListProposals(ctx context.Context, f ProposalFilter) ([]Proposal, error)
	GetProposal(ctx context.Context, id string) (*ProposalDetail, error)

	Accept(ctx context.Context, proposalID string, review Review) (*Proposal, error)
	Reject(ctx context.Context, proposalID string, review Review) (*Proposal, error)
	Rollback(ctx context.Context, proposalID string, review Review) (*Proposal, error)

	GetLedger(ctx context.Context, limit int) ([]LedgerEntry, error)
	GetDoctrineVersions(ctx context.Context, limit int) ([]DoctrineVersion, error)
	ActiveDoctrine(ctx context.Context) (*DoctrineVersion, error)
	GetStats(ctx context.Context) (*Stats, error)
}
