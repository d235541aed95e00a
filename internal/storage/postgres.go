package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

// ErrIdentityMissing is returned when enrollments are appended to an unknown
// identity.
var ErrIdentityMissing = errors.New("identity does not exist")

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS identities (
	id           UUID PRIMARY KEY,
	display_name TEXT NOT NULL,
	category     TEXT NOT NULL,
	active       BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS face_enrollments (
	id                  UUID PRIMARY KEY,
	identity_id         UUID NOT NULL REFERENCES identities(id),
	provider_kind       TEXT NOT NULL,
	reference           BYTEA NOT NULL,
	embedding           vector,
	reference_image_url TEXT NOT NULL DEFAULT '',
	quality_score       DOUBLE PRECISION NOT NULL,
	active              BOOLEAN NOT NULL DEFAULT TRUE,
	provider_name       TEXT NOT NULL,
	enrolled_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS face_enrollments_identity_idx ON face_enrollments (identity_id, enrolled_at);
CREATE INDEX IF NOT EXISTS face_enrollments_active_idx ON face_enrollments (identity_id) WHERE active;
`

// PostgresStore is the identity directory and enrollment store backed by
// Postgres with pgvector.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(ctx, cfg.DSN(), cfg.MaxConns)
}

func NewPostgresStoreFromDSN(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// --- Identities ---

// UpsertIdentity is used by development tooling; residency records are
// normally owned by another system.
func (s *PostgresStore) UpsertIdentity(ctx context.Context, ident models.Identity) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO identities (id, display_name, category, active) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name,
		   category = EXCLUDED.category, active = EXCLUDED.active`,
		ident.ID, ident.DisplayName, string(ident.Category), ident.Active)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	var ident models.Identity
	var category string
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, category, active FROM identities WHERE id = $1`, id,
	).Scan(&ident.ID, &ident.DisplayName, &category, &ident.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	ident.Category = models.Category(category)
	return &ident, nil
}

func (s *PostgresStore) ListIdentities(ctx context.Context, filter models.GalleryFilter) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, category, active FROM identities
		 WHERE active AND ($1 = '' OR category = $1)
		 ORDER BY id`, string(filter.Category))
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		var ident models.Identity
		var category string
		if err := rows.Scan(&ident.ID, &ident.DisplayName, &category, &ident.Active); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ident.Category = models.Category(category)
		out = append(out, ident)
	}
	return out, rows.Err()
}

// --- Enrollments ---

// AppendEnrollments inserts rows for one identity in a single transaction,
// holding the identity row lock so concurrent batches serialise.
func (s *PostgresStore) AppendEnrollments(ctx context.Context, identityID uuid.UUID, rows []models.FaceEnrollment) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM identities WHERE id = $1 FOR UPDATE`, identityID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrIdentityMissing, identityID)
		}
		return fmt.Errorf("lock identity: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(
			`INSERT INTO face_enrollments
			   (id, identity_id, provider_kind, reference, embedding, reference_image_url,
			    quality_score, active, provider_name, enrolled_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			r.ID, identityID, string(r.Reference.Provider), r.Reference.Payload, embeddingOf(r.Reference),
			r.ReferenceImageURL, r.QualityScore, r.Active, r.ProviderName, r.EnrolledAt)
	}
	br := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert enrollment: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert enrollments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivateEnrollments(ctx context.Context, identityID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE face_enrollments SET active = FALSE WHERE identity_id = $1 AND active`, identityID)
	if err != nil {
		return 0, fmt.Errorf("deactivate enrollments: %w", err)
	}
	return tag.RowsAffected(), nil
}

const enrollmentColumns = `id, identity_id, provider_kind, reference, reference_image_url,
	quality_score, active, provider_name, enrolled_at`

func (s *PostgresStore) ListEnrollments(ctx context.Context, identityID uuid.UUID) ([]models.FaceEnrollment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+enrollmentColumns+` FROM face_enrollments
		 WHERE identity_id = $1 ORDER BY enrolled_at, id`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return collectEnrollments(rows)
}

func (s *PostgresStore) ActiveEnrollments(ctx context.Context, identityIDs []uuid.UUID) ([]models.FaceEnrollment, error) {
	if len(identityIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(identityIDs))
	for i, id := range identityIDs {
		ids[i] = id.String()
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+enrollmentColumns+` FROM face_enrollments
		 WHERE identity_id = ANY($1::uuid[]) AND active
		 ORDER BY identity_id, enrolled_at, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("active enrollments: %w", err)
	}
	return collectEnrollments(rows)
}

// FindSimilar returns other active identities holding a vector reference
// within maxDistance (cosine) of ref.
func (s *PostgresStore) FindSimilar(ctx context.Context, ref biometric.FaceReference, exclude uuid.UUID, maxDistance float64) ([]uuid.UUID, error) {
	vec, err := ref.Vector()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT e.identity_id
		 FROM face_enrollments e
		 JOIN identities i ON i.id = e.identity_id
		 WHERE e.active AND i.active
		   AND e.identity_id <> $2
		   AND e.provider_kind = $3
		   AND e.embedding IS NOT NULL
		   AND (e.embedding <=> $1) <= $4
		 ORDER BY e.identity_id`,
		pgvector.NewVector(vec), exclude, string(ref.Provider), maxDistance)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func collectEnrollments(rows pgx.Rows) ([]models.FaceEnrollment, error) {
	defer rows.Close()

	var out []models.FaceEnrollment
	for rows.Next() {
		var e models.FaceEnrollment
		var kind string
		if err := rows.Scan(&e.ID, &e.IdentityID, &kind, &e.Reference.Payload, &e.ReferenceImageURL,
			&e.QualityScore, &e.Active, &e.ProviderName, &e.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		e.Reference.Provider = biometric.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// embeddingOf returns the pgvector column value for vector references and nil
// for handle-based ones.
func embeddingOf(ref biometric.FaceReference) *pgvector.Vector {
	vec, err := ref.Vector()
	if err != nil {
		return nil
	}
	v := pgvector.NewVector(vec)
	return &v
}
