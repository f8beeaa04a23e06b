package store

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bpx-store/bpxd/internal/domain"
	"github.com/bpx-store/bpxd/internal/errors"
	"github.com/bpx-store/bpxd/internal/version"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// PostgresStore implements the extension and submission store contracts on a
// pgx connection pool. Multi-row writes run inside a transaction so readers
// never observe a partially imported version or a half-applied decision.
// NewPostgresStore should be used to create instances of PostgresStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on top of an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the backing tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS extensions (
			id             UUID        PRIMARY KEY,
			name           TEXT        NOT NULL UNIQUE,
			display_name   TEXT        NOT NULL,
			category       TEXT        NOT NULL,
			repository_url TEXT        NOT NULL,
			deprecated     BOOLEAN     NOT NULL DEFAULT FALSE,
			latest_version TEXT        NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS extension_versions (
			extension_id        UUID        NOT NULL REFERENCES extensions(id) ON DELETE CASCADE,
			version             TEXT        NOT NULL,
			artifact_digest     TEXT        NOT NULL,
			artifact_size_bytes BIGINT      NOT NULL,
			changelog           TEXT        NOT NULL DEFAULT '',
			published_at        TIMESTAMPTZ NOT NULL,
			prerelease          BOOLEAN     NOT NULL DEFAULT FALSE,
			PRIMARY KEY (extension_id, version)
		);

		CREATE TABLE IF NOT EXISTS submissions (
			id              UUID        PRIMARY KEY,
			repository_url  TEXT        NOT NULL,
			submitter_email TEXT        NOT NULL,
			submitter_name  TEXT        NOT NULL DEFAULT '',
			category        TEXT        NOT NULL,
			status          TEXT        NOT NULL,
			reviewer_notes  TEXT        NOT NULL DEFAULT '',
			reviewer_email  TEXT        NOT NULL DEFAULT '',
			reviewed_at     TIMESTAMPTZ,
			extension_id    UUID,
			created_at      TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create store tables: %w", err)
	}
	return nil
}

const extensionColumns = `id, name, display_name, category, repository_url, deprecated, latest_version, created_at, updated_at`

func scanExtension(row pgx.Row) (*domain.Extension, error) {
	var ext domain.Extension
	err := row.Scan(
		&ext.ID,
		&ext.Name,
		&ext.DisplayName,
		&ext.Category,
		&ext.RepositoryURL,
		&ext.Deprecated,
		&ext.LatestVersion,
		&ext.CreatedAt,
		&ext.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ext, nil
}

// GetExtensionByName resolves an extension by its public name.
func (s *PostgresStore) GetExtensionByName(ctx context.Context, name string) (*domain.Extension, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+extensionColumns+` FROM extensions WHERE name = $1`, name)

	ext, err := scanExtension(row)
	if err != nil {
		if stdErrors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", errors.ErrExtensionNotFound, name)
		}
		return nil, fmt.Errorf("failed to query extension '%s': %w", name, err)
	}

	return ext, nil
}

// ListExtensions returns all extensions.
func (s *PostgresStore) ListExtensions(ctx context.Context) ([]domain.Extension, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+extensionColumns+` FROM extensions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list extensions: %w", err)
	}
	defer rows.Close()

	var out []domain.Extension
	for rows.Next() {
		ext, err := scanExtension(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extension row: %w", err)
		}
		out = append(out, *ext)
	}

	return out, rows.Err()
}

// GetVersions returns the persisted versions for an extension.
func (s *PostgresStore) GetVersions(ctx context.Context, extensionID string) ([]domain.ExtensionVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT extension_id, version, artifact_digest, artifact_size_bytes, changelog, published_at, prerelease
		FROM extension_versions
		WHERE extension_id = $1
		ORDER BY published_at`,
		extensionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions for extension '%s': %w", extensionID, err)
	}
	defer rows.Close()

	var out []domain.ExtensionVersion
	for rows.Next() {
		var v domain.ExtensionVersion
		err := rows.Scan(
			&v.ExtensionID,
			&v.Version,
			&v.ArtifactDigest,
			&v.ArtifactSizeBytes,
			&v.Changelog,
			&v.PublishedAt,
			&v.Prerelease,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		out = append(out, v)
	}

	return out, rows.Err()
}

// CreateExtensionWithFirstVersion atomically creates an extension with its
// first version.
func (s *PostgresStore) CreateExtensionWithFirstVersion(
	ctx context.Context,
	ext domain.Extension,
	first domain.ExtensionVersion,
) (*domain.Extension, error) {
	var created *domain.Extension
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		created, err = createExtensionTx(ctx, tx, ext, first)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func createExtensionTx(
	ctx context.Context,
	tx pgx.Tx,
	ext domain.Extension,
	first domain.ExtensionVersion,
) (*domain.Extension, error) {
	now := time.Now().UTC()
	ext.ID = uuid.NewString()
	ext.CreatedAt = now
	ext.UpdatedAt = now
	if version.Supersedes(first, "") {
		ext.LatestVersion = first.Version
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO extensions (id, name, display_name, category, repository_url, deprecated, latest_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ext.ID, ext.Name, ext.DisplayName, ext.Category, ext.RepositoryURL, ext.Deprecated, ext.LatestVersion, ext.CreatedAt, ext.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stdErrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %s", errors.ErrNameCollision, ext.Name)
		}
		return nil, fmt.Errorf("failed to insert extension '%s': %w", ext.Name, err)
	}

	first.ExtensionID = ext.ID
	if err := insertVersionTx(ctx, tx, first); err != nil {
		return nil, err
	}

	return &ext, nil
}

func insertVersionTx(ctx context.Context, tx pgx.Tx, v domain.ExtensionVersion) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO extension_versions (extension_id, version, artifact_digest, artifact_size_bytes, changelog, published_at, prerelease)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ExtensionID, v.Version, v.ArtifactDigest, v.ArtifactSizeBytes, v.Changelog, v.PublishedAt, v.Prerelease,
	)
	if err != nil {
		return fmt.Errorf("failed to insert version '%s': %w", v.Version, err)
	}
	return nil
}

// AppendVersion atomically persists a new version and advances the
// latest-version pointer when superseded. A differing digest for an existing
// version fails; persisted digests are immutable.
func (s *PostgresStore) AppendVersion(ctx context.Context, extensionID string, v domain.ExtensionVersion) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var latest string
		err := tx.QueryRow(ctx,
			`SELECT latest_version FROM extensions WHERE id = $1 FOR UPDATE`,
			extensionID,
		).Scan(&latest)
		if err != nil {
			if stdErrors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: id %s", errors.ErrExtensionNotFound, extensionID)
			}
			return fmt.Errorf("failed to lock extension '%s': %w", extensionID, err)
		}

		var existingDigest string
		err = tx.QueryRow(ctx,
			`SELECT artifact_digest FROM extension_versions WHERE extension_id = $1 AND version = $2`,
			extensionID, v.Version,
		).Scan(&existingDigest)
		switch {
		case err == nil:
			if existingDigest != v.ArtifactDigest {
				return fmt.Errorf(
					"%w: version %s has digest %s, refusing %s",
					errors.ErrVersionDigestMismatch, v.Version, existingDigest, v.ArtifactDigest,
				)
			}
			return nil
		case stdErrors.Is(err, pgx.ErrNoRows):
			// New version, fall through to insert.
		default:
			return fmt.Errorf("failed to query existing version '%s': %w", v.Version, err)
		}

		v.ExtensionID = extensionID
		if err := insertVersionTx(ctx, tx, v); err != nil {
			return err
		}

		if version.Supersedes(v, latest) {
			latest = v.Version
		}
		_, err = tx.Exec(ctx,
			`UPDATE extensions SET latest_version = $2, updated_at = $3 WHERE id = $1`,
			extensionID, latest, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to update latest version for '%s': %w", extensionID, err)
		}

		return nil
	})
}

// CreateSubmission persists a new pending submission.
func (s *PostgresStore) CreateSubmission(ctx context.Context, sub domain.Submission) (*domain.Submission, error) {
	sub.ID = uuid.NewString()
	sub.Status = domain.SubmissionPending
	sub.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (id, repository_url, submitter_email, submitter_name, category, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.RepositoryURL, sub.SubmitterEmail, sub.SubmitterName, sub.Category, sub.Status, sub.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert submission: %w", err)
	}

	return &sub, nil
}

const submissionColumns = `id, repository_url, submitter_email, submitter_name, category, status, reviewer_notes, reviewer_email, reviewed_at, extension_id, created_at`

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var (
		sub   domain.Submission
		extID *string
	)
	err := row.Scan(
		&sub.ID,
		&sub.RepositoryURL,
		&sub.SubmitterEmail,
		&sub.SubmitterName,
		&sub.Category,
		&sub.Status,
		&sub.ReviewerNotes,
		&sub.ReviewerEmail,
		&sub.ReviewedAt,
		&extID,
		&sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if extID != nil {
		sub.ExtensionID = *extID
	}
	return &sub, nil
}

// GetSubmission resolves a submission by ID.
func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*domain.Submission, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)

	sub, err := scanSubmission(row)
	if err != nil {
		if stdErrors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", errors.ErrSubmissionNotFound, id)
		}
		return nil, fmt.Errorf("failed to query submission '%s': %w", id, err)
	}

	return sub, nil
}

// RecordDecision applies a review decision to a pending submission exactly
// once. The guarded UPDATE only matches pending rows, so decisions can never
// be overwritten.
func (s *PostgresStore) RecordDecision(ctx context.Context, id string, decision domain.Decision) (*domain.Submission, error) {
	var sub *domain.Submission
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		sub, err = recordDecisionTx(ctx, tx, id, decision)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func recordDecisionTx(ctx context.Context, tx pgx.Tx, id string, decision domain.Decision) (*domain.Submission, error) {
	var extID any
	if decision.ExtensionID != "" {
		extID = decision.ExtensionID
	}

	row := tx.QueryRow(ctx, `
		UPDATE submissions
		SET status = $2, reviewer_email = $3, reviewer_notes = $4, reviewed_at = $5, extension_id = $6
		WHERE id = $1 AND status = 'pending'
		RETURNING `+submissionColumns,
		id, decision.Status, decision.ReviewerEmail, decision.Notes, decision.ReviewedAt, extID,
	)

	sub, err := scanSubmission(row)
	if err != nil {
		if stdErrors.Is(err, pgx.ErrNoRows) {
			// Distinguish missing from already decided.
			var status domain.SubmissionStatus
			lookupErr := tx.QueryRow(ctx, `SELECT status FROM submissions WHERE id = $1`, id).Scan(&status)
			if stdErrors.Is(lookupErr, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", errors.ErrSubmissionNotFound, id)
			}
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to query submission '%s': %w", id, lookupErr)
			}
			return nil, fmt.Errorf("%w: %s is %s", errors.ErrSubmissionDecided, id, status)
		}
		return nil, fmt.Errorf("failed to record decision for submission '%s': %w", id, err)
	}

	return sub, nil
}

// ApproveSubmission atomically creates the extension, its first version and
// the approval decision in a single transaction.
func (s *PostgresStore) ApproveSubmission(
	ctx context.Context,
	id string,
	decision domain.Decision,
	ext domain.Extension,
	first domain.ExtensionVersion,
) (*domain.Submission, *domain.Extension, error) {
	var (
		sub     *domain.Submission
		created *domain.Extension
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		created, err = createExtensionTx(ctx, tx, ext, first)
		if err != nil {
			return err
		}

		decision.ExtensionID = created.ID
		sub, err = recordDecisionTx(ctx, tx, id, decision)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return sub, created, nil
}
