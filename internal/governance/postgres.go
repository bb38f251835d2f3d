package governance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// schema is the governance store DDL. Idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	id            TEXT PRIMARY KEY,
	decision_time TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	context_hash  TEXT NOT NULL,
	finalized     BOOLEAN NOT NULL DEFAULT FALSE,
	finalized_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS episode_artifacts (
	id            TEXT PRIMARY KEY,
	episode_id    TEXT NOT NULL REFERENCES episodes(id),
	artifact_type TEXT NOT NULL,
	content       JSONB NOT NULL,
	checksum      TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS patch_proposals (
	id                      TEXT PRIMARY KEY,
	episode_id              TEXT NOT NULL REFERENCES episodes(id),
	critic_type             TEXT NOT NULL,
	severity                TEXT NOT NULL,
	finding_type            TEXT NOT NULL,
	description             TEXT NOT NULL,
	proposed_change         JSONB NOT NULL,
	fingerprint             TEXT NOT NULL UNIQUE,
	status                  TEXT NOT NULL DEFAULT 'DRAFT',
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	reviewed_at             TIMESTAMPTZ,
	reviewer_id             TEXT,
	review_rationale        TEXT,
	doctrine_version_before TEXT,
	doctrine_version_after  TEXT
);

CREATE TABLE IF NOT EXISTS proposal_episodes (
	proposal_id TEXT NOT NULL REFERENCES patch_proposals(id),
	episode_id  TEXT NOT NULL REFERENCES episodes(id),
	PRIMARY KEY (proposal_id, episode_id)
);

CREATE TABLE IF NOT EXISTS doctrine_versions (
	version        TEXT PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by     TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	rules_snapshot JSONB NOT NULL DEFAULT '{}',
	parent_version TEXT,
	active         BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS governance_ledger (
	id                        TEXT PRIMARY KEY,
	proposal_id               TEXT NOT NULL REFERENCES patch_proposals(id),
	action                    TEXT NOT NULL,
	actor                     TEXT NOT NULL,
	ts                        TIMESTAMPTZ NOT NULL DEFAULT now(),
	rationale                 TEXT NOT NULL,
	doctrine_version_snapshot TEXT NOT NULL,
	episode_count_at_decision BIGINT NOT NULL,
	metadata                  JSONB
);
`

// PostgresStore implements Store over sqlx. All writes are idempotent
// through stable ids and fingerprints, so a single logical writer with
// per-row upsert semantics is sufficient.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
}

// NewPostgresStore wraps an open sqlx handle.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout, now: time.Now}
}

// EnsureSchema applies the DDL.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure governance schema: %w", err)
	}
	return nil
}

// CreateEpisode inserts the episode if absent. Idempotent.
func (s *PostgresStore) CreateEpisode(ctx context.Context, ep Episode) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (id, decision_time, created_at, context_hash, finalized)
		 VALUES ($1, $2, $3, $4, FALSE)
		 ON CONFLICT (id) DO NOTHING`,
		ep.ID, ep.DecisionTime, s.now().UTC(), ep.ContextHash)
	if err != nil {
		return fmt.Errorf("create episode %s: %w", ep.ID, err)
	}
	return nil
}

// GetEpisode loads one episode.
func (s *PostgresStore) GetEpisode(ctx context.Context, id string) (*Episode, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var ep Episode
	err := s.db.GetContext(ctx, &ep,
		`SELECT id, decision_time, created_at, context_hash, finalized, finalized_at
		 FROM episodes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "episode", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %s: %w", id, err)
	}
	return &ep, nil
}

// FinalizeEpisode marks the episode finalized at the given instant.
func (s *PostgresStore) FinalizeEpisode(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`UPDATE episodes SET finalized = TRUE, finalized_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("finalize episode %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize episode %s: %w", id, err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "episode", ID: id}
	}
	return nil
}

// CountEpisodes returns the total episode count.
func (s *PostgresStore) CountEpisodes(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM episodes`); err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}

// SaveArtifact upserts the typed blob under id "{episode_id}_{type}".
func (s *PostgresStore) SaveArtifact(ctx context.Context, a Artifact) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if a.ID == "" {
		a.ID = fmt.Sprintf("%s_%s", a.EpisodeID, a.Type)
	}
	if a.Checksum == "" {
		a.Checksum = ArtifactChecksum(a.Content)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episode_artifacts (id, episode_id, artifact_type, content, checksum, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, checksum = EXCLUDED.checksum`,
		a.ID, a.EpisodeID, a.Type, []byte(a.Content), a.Checksum, s.now().UTC())
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", a.ID, err)
	}
	return nil
}

// PersistProposals dedups on fingerprint: the loser of an insert race
// re-reads and links, so two episodes producing the same finding share one
// row with two junction links.
func (s *PostgresStore) PersistProposals(ctx context.Context, episodeID string, critic CriticType, drafts []Draft) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ids := make([]string, 0, len(drafts))
	for _, d := range drafts {
		fp, err := Fingerprint(critic, d.FindingType, d.ProposedChange)
		if err != nil {
			return nil, err
		}
		change, err := CanonicalJSON(d.ProposedChange)
		if err != nil {
			return nil, err
		}

		var existingID string
		err = s.db.GetContext(ctx, &existingID,
			`SELECT id FROM patch_proposals WHERE fingerprint = $1`, fp)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			newID := uuid.NewString()
			_, insErr := s.db.ExecContext(ctx,
				`INSERT INTO patch_proposals
				 (id, episode_id, critic_type, severity, finding_type, description, proposed_change, fingerprint, status, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'DRAFT', $9)
				 ON CONFLICT (fingerprint) DO NOTHING`,
				newID, episodeID, critic, d.Severity, d.FindingType, d.Description, change, fp, s.now().UTC())
			if insErr != nil {
				return nil, fmt.Errorf("insert proposal: %w", insErr)
			}
			// Re-read: a concurrent episode may have won the insert race.
			if getErr := s.db.GetContext(ctx, &existingID,
				`SELECT id FROM patch_proposals WHERE fingerprint = $1`, fp); getErr != nil {
				return nil, fmt.Errorf("reread proposal by fingerprint: %w", getErr)
			}
		case err != nil:
			return nil, fmt.Errorf("lookup proposal by fingerprint: %w", err)
		default:
			log.Debug().Str("proposal_id", existingID).Str("episode_id", episodeID).Msg("proposal dedup hit, linking episode")
		}

		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO proposal_episodes (proposal_id, episode_id)
			 VALUES ($1, $2)
			 ON CONFLICT (proposal_id, episode_id) DO NOTHING`,
			existingID, episodeID); err != nil {
			return nil, fmt.Errorf("link proposal %s to episode %s: %w", existingID, episodeID, err)
		}
		ids = append(ids, existingID)
	}
	return ids, nil
}

// TransitionToPending flips DRAFT proposals anchored to or linked with the
// episode, counting affected rows explicitly per batch.
func (s *PostgresStore) TransitionToPending(ctx context.Context, episodeID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`UPDATE patch_proposals SET status = 'PENDING'
		 WHERE status = 'DRAFT'
		   AND (episode_id = $1
		        OR id IN (SELECT proposal_id FROM proposal_episodes WHERE episode_id = $1))`,
		episodeID)
	if err != nil {
		return 0, fmt.Errorf("transition episode %s proposals to pending: %w", episodeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("transition episode %s proposals to pending: %w", episodeID, err)
	}
	return n, nil
}

const proposalColumns = `id, episode_id, critic_type, severity, finding_type, description,
	proposed_change, fingerprint, status, created_at, reviewed_at, reviewer_id,
	review_rationale, doctrine_version_before, doctrine_version_after`

// ListProposals filters by status and critic type with pagination.
func (s *PostgresStore) ListProposals(ctx context.Context, f ProposalFilter) ([]Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if f.Limit <= 0 {
		f.Limit = 50
	}
	query := `SELECT ` + proposalColumns + ` FROM patch_proposals WHERE 1=1`
	args := []any{}
	if f.Status != nil {
		args = append(args, *f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Critic != nil {
		args = append(args, *f.Critic)
		query += fmt.Sprintf(" AND critic_type = $%d", len(args))
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var out []Proposal
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return out, nil
}

// GetProposal enriches the row with all episode ids sharing its
// fingerprint and its ledger history.
func (s *PostgresStore) GetProposal(ctx context.Context, id string) (*ProposalDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var p Proposal
	err := s.db.GetContext(ctx, &p,
		`SELECT `+proposalColumns+` FROM patch_proposals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "proposal", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal %s: %w", id, err)
	}

	detail := &ProposalDetail{Proposal: p}
	if err := s.db.SelectContext(ctx, &detail.SimilarEpisodes,
		`SELECT episode_id FROM proposal_episodes WHERE proposal_id = $1 ORDER BY episode_id`, id); err != nil {
		return nil, fmt.Errorf("get proposal %s episodes: %w", id, err)
	}
	if err := s.db.SelectContext(ctx, &detail.Ledger,
		`SELECT id, proposal_id, action, actor, ts, rationale, doctrine_version_snapshot,
		        episode_count_at_decision, metadata
		 FROM governance_ledger WHERE proposal_id = $1 ORDER BY ts`, id); err != nil {
		return nil, fmt.Errorf("get proposal %s ledger: %w", id, err)
	}
	return detail, nil
}

// Accept requires PENDING, bumps doctrine (default MINOR), writes an
// ACCEPT ledger entry and updates the proposal's review fields.
func (s *PostgresStore) Accept(ctx context.Context, proposalID string, review Review) (*Proposal, error) {
	return s.review(ctx, proposalID, review, ActionAccept)
}

// Reject mirrors Accept without a version bump.
func (s *PostgresStore) Reject(ctx context.Context, proposalID string, review Review) (*Proposal, error) {
	return s.review(ctx, proposalID, review, ActionReject)
}

// Rollback requires ACCEPTED; deactivates the current doctrine version and
// reactivates the proposal's pre-acceptance version.
func (s *PostgresStore) Rollback(ctx context.Context, proposalID string, review Review) (*Proposal, error) {
	return s.review(ctx, proposalID, review, ActionRollback)
}

func (s *PostgresStore) review(ctx context.Context, proposalID string, review Review, action LedgerAction) (*Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin review tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var p Proposal
	err = tx.GetContext(ctx, &p,
		`SELECT `+proposalColumns+` FROM patch_proposals WHERE id = $1 FOR UPDATE`, proposalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "proposal", ID: proposalID}
	}
	if err != nil {
		return nil, fmt.Errorf("lock proposal %s: %w", proposalID, err)
	}

	required := StatusPending
	if action == ActionRollback {
		required = StatusAccepted
	}
	if p.Status != required {
		return nil, &ConflictError{ProposalID: proposalID, Current: p.Status, Attempted: action}
	}

	active, err := s.activeDoctrineTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	before := active.Version
	after := active.Version
	newStatus := StatusRejected

	switch action {
	case ActionAccept:
		bump := review.Bump
		if bump == "" {
			bump = BumpMinor
		}
		next, err := BumpVersion(active.Version, bump)
		if err != nil {
			return nil, err
		}
		if err := s.activateVersionTx(ctx, tx, next, active.Version, review.Reviewer,
			fmt.Sprintf("accepted proposal %s", proposalID)); err != nil {
			return nil, err
		}
		after = next
		newStatus = StatusAccepted
	case ActionRollback:
		// Reactivate the pre-acceptance version; the active row flips off.
		target := before
		if p.DoctrineVersionBefore != nil {
			target = *p.DoctrineVersionBefore
		}
		if err := s.reactivateVersionTx(ctx, tx, target); err != nil {
			return nil, err
		}
		after = target
		newStatus = StatusRolledBack
	}

	var episodeCount int64
	if err := tx.GetContext(ctx, &episodeCount, `SELECT COUNT(*) FROM episodes`); err != nil {
		return nil, fmt.Errorf("episode count: %w", err)
	}

	var metadata []byte
	if review.Metadata != nil {
		metadata, err = CanonicalJSON(review.Metadata)
		if err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO governance_ledger
		 (id, proposal_id, action, actor, ts, rationale, doctrine_version_snapshot, episode_count_at_decision, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.NewString(), proposalID, action, review.Reviewer, now, review.Rationale,
		after, episodeCount, metadata); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE patch_proposals
		 SET status = $2, reviewed_at = $3, reviewer_id = $4, review_rationale = $5,
		     doctrine_version_before = $6, doctrine_version_after = $7
		 WHERE id = $1`,
		proposalID, newStatus, now, review.Reviewer, review.Rationale, before, after); err != nil {
		return nil, fmt.Errorf("update proposal %s: %w", proposalID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit review tx: %w", err)
	}

	p.Status = newStatus
	p.ReviewedAt = &now
	p.ReviewerID = &review.Reviewer
	p.ReviewRationale = &review.Rationale
	p.DoctrineVersionBefore = &before
	p.DoctrineVersionAfter = &after
	return &p, nil
}

// activeDoctrineTx returns the active version, seeding 13.0.0 on first use.
func (s *PostgresStore) activeDoctrineTx(ctx context.Context, tx *sqlx.Tx) (*DoctrineVersion, error) {
	var v DoctrineVersion
	err := tx.GetContext(ctx, &v,
		`SELECT version, created_at, created_by, description, rules_snapshot, parent_version, active
		 FROM doctrine_versions WHERE active = TRUE`)
	if errors.Is(err, sql.ErrNoRows) {
		seed := DoctrineVersion{
			Version:       SeedVersion,
			CreatedAt:     s.now().UTC(),
			CreatedBy:     "system",
			Description:   "seed doctrine",
			RulesSnapshot: json.RawMessage(`{}`),
			Active:        true,
		}
		if _, insErr := tx.ExecContext(ctx,
			`INSERT INTO doctrine_versions (version, created_at, created_by, description, rules_snapshot, active)
			 VALUES ($1, $2, $3, $4, $5, TRUE)
			 ON CONFLICT (version) DO NOTHING`,
			seed.Version, seed.CreatedAt, seed.CreatedBy, seed.Description, []byte(seed.RulesSnapshot)); insErr != nil {
			return nil, fmt.Errorf("seed doctrine version: %w", insErr)
		}
		return &seed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active doctrine: %w", err)
	}
	return &v, nil
}

// activateVersionTx is the compare-and-set: the single active row flips to
// the new version atomically within the transaction.
func (s *PostgresStore) activateVersionTx(ctx context.Context, tx *sqlx.Tx, version, parent, createdBy, description string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE doctrine_versions SET active = FALSE WHERE active = TRUE`); err != nil {
		return fmt.Errorf("deactivate doctrine: %w", err)
	}
	// A rollback leaves the derived version row behind, so a later accept
	// may re-derive it; reactivate instead of failing on the key.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO doctrine_versions (version, created_at, created_by, description, rules_snapshot, parent_version, active)
		 VALUES ($1, $2, $3, $4, '{}', $5, TRUE)
		 ON CONFLICT (version) DO UPDATE SET active = TRUE, parent_version = EXCLUDED.parent_version`,
		version, s.now().UTC(), createdBy, description, parent); err != nil {
		return fmt.Errorf("insert doctrine version %s: %w", version, err)
	}
	return nil
}

func (s *PostgresStore) reactivateVersionTx(ctx context.Context, tx *sqlx.Tx, version string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE doctrine_versions SET active = FALSE WHERE active = TRUE`); err != nil {
		return fmt.Errorf("deactivate doctrine: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE doctrine_versions SET active = TRUE WHERE version = $1`, version)
	if err != nil {
		return fmt.Errorf("reactivate doctrine %s: %w", version, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reactivate doctrine %s: %w", version, err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "doctrine version", ID: version}
	}
	return nil
}

// ActiveDoctrine returns the single active row, seeding on first call.
func (s *PostgresStore) ActiveDoctrine(ctx context.Context) (*DoctrineVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin doctrine tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	v, err := s.activeDoctrineTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit doctrine tx: %w", err)
	}
	return v, nil
}

// GetLedger returns the newest entries first. Entries are never mutated.
func (s *PostgresStore) GetLedger(ctx context.Context, limit int) ([]LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if limit <= 0 {
		limit = 50
	}
	var out []LedgerEntry
	if err := s.db.SelectContext(ctx, &out,
		`SELECT id, proposal_id, action, actor, ts, rationale, doctrine_version_snapshot,
		        episode_count_at_decision, metadata
		 FROM governance_ledger ORDER BY ts DESC LIMIT $1`, limit); err != nil {
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	return out, nil
}

// GetDoctrineVersions returns the newest versions first.
func (s *PostgresStore) GetDoctrineVersions(ctx context.Context, limit int) ([]DoctrineVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if limit <= 0 {
		limit = 20
	}
	var out []DoctrineVersion
	if err := s.db.SelectContext(ctx, &out,
		`SELECT version, created_at, created_by, description, rules_snapshot, parent_version, active
		 FROM doctrine_versions ORDER BY created_at DESC LIMIT $1`, limit); err != nil {
		return nil, fmt.Errorf("get doctrine versions: %w", err)
	}
	return out, nil
}

// GetStats summarizes proposal counts, acceptance rate and the active
// doctrine version.
func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM patch_proposals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("proposal stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{CountsByStatus: make(map[ProposalStatus]int64)}
	for rows.Next() {
		var status ProposalStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("proposal stats scan: %w", err)
		}
		stats.CountsByStatus[status] = count
		stats.TotalProposals += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("proposal stats rows: %w", err)
	}

	reviewed := stats.CountsByStatus[StatusAccepted] + stats.CountsByStatus[StatusRejected] + stats.CountsByStatus[StatusRolledBack]
	if reviewed > 0 {
		stats.AcceptanceRate = float64(stats.CountsByStatus[StatusAccepted]+stats.CountsByStatus[StatusRolledBack]) / float64(reviewed)
	}

	var active string
	err = s.db.GetContext(ctx, &active,
		`SELECT version FROM doctrine_versions WHERE active = TRUE`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active version: %w", err)
	}
	stats.ActiveVersion = active
	return stats, nil
}
