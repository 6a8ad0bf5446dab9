package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-engine/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. Satisfied by pgxmock
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS places (
	place_id           TEXT PRIMARY KEY,
	name               TEXT,
	address            TEXT,
	phone              TEXT,
	international_phone TEXT,
	website            TEXT,
	types              JSONB,
	rating             DOUBLE PRECISION,
	user_ratings_total INTEGER,
	raw_response       BYTEA,
	source_query       TEXT,
	source_location    TEXT,
	fetched_at         TIMESTAMPTZ,
	updated_at         TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS crawl_results (
	domain        TEXT PRIMARY KEY,
	emails        JSONB,
	social_links  JSONB,
	pages_crawled INTEGER,
	success       BOOLEAN,
	error         TEXT,
	crawled_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS search_progress (
	query_hash      TEXT PRIMARY KEY,
	query           TEXT,
	location        TEXT,
	next_page_token TEXT,
	results_fetched INTEGER,
	completed       BOOLEAN,
	updated_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS failures (
	id            BIGSERIAL PRIMARY KEY,
	place_id      TEXT,
	domain        TEXT,
	error_type    TEXT,
	error_message TEXT,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_places_website ON places(website);
CREATE INDEX IF NOT EXISTS idx_places_phone ON places(phone);
CREATE INDEX IF NOT EXISTS idx_places_source ON places(source_query, source_location);
CREATE INDEX IF NOT EXISTS idx_failures_domain ON failures(domain);
CREATE INDEX IF NOT EXISTS idx_failures_type ON failures(error_type);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgPlaceColumns = `place_id, name, address, phone, international_phone, website,
	types, rating, user_ratings_total, raw_response, source_query, source_location, fetched_at`

func (s *PostgresStore) GetPlace(ctx context.Context, placeID string) (*model.PlaceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgPlaceColumns+` FROM places WHERE place_id = $1`, placeID,
	)
	rec, err := scanPGPlace(row)
	if errors.Is(err, pgx.ErrNoRows) || err == errDecode {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get place %s", placeID)
	}
	return rec, nil
}

func (s *PostgresStore) HasPlace(ctx context.Context, placeID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM places WHERE place_id = $1`, placeID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: has place")
	}
	return true, nil
}

func (s *PostgresStore) SavePlace(ctx context.Context, rec *model.PlaceRecord) error {
	typesJSON, err := json.Marshal(rec.Types)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal types")
	}
	raw, err := compress(rec.Raw)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	fetchedAt := rec.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = now
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO places
		(place_id, name, address, phone, international_phone, website,
		 types, rating, user_ratings_total, raw_response,
		 source_query, source_location, fetched_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (place_id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			phone = EXCLUDED.phone,
			international_phone = EXCLUDED.international_phone,
			website = EXCLUDED.website,
			types = EXCLUDED.types,
			rating = EXCLUDED.rating,
			user_ratings_total = EXCLUDED.user_ratings_total,
			raw_response = EXCLUDED.raw_response,
			source_query = EXCLUDED.source_query,
			source_location = EXCLUDED.source_location,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = EXCLUDED.updated_at`,
		rec.PlaceID, rec.Name, rec.Address, rec.Phone, rec.InternationalPhone,
		rec.Website, typesJSON, rec.Rating, rec.UserRatingsTotal, raw,
		rec.SourceQuery, rec.SourceLocation, fetchedAt, now,
	)
	return eris.Wrapf(err, "postgres: save place %s", rec.PlaceID)
}

func (s *PostgresStore) ListPlacesByQuery(ctx context.Context, query, location string) ([]model.PlaceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgPlaceColumns+` FROM places WHERE source_query = $1 AND source_location = $2`,
		query, location,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list places by query")
	}
	return collectPGPlaces(rows)
}

func (s *PostgresStore) ListAllPlaces(ctx context.Context) ([]model.PlaceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgPlaceColumns+` FROM places ORDER BY fetched_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list all places")
	}
	return collectPGPlaces(rows)
}

func (s *PostgresStore) UniqueWebsites(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT website FROM places WHERE website IS NOT NULL AND website != ''`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: unique websites")
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, eris.Wrap(err, "postgres: scan website")
		}
		sites = append(sites, w)
	}
	return sites, eris.Wrap(rows.Err(), "postgres: unique websites iterate")
}

func (s *PostgresStore) GetCrawlResult(ctx context.Context, domain string) (*model.CrawlResult, error) {
	var (
		res        model.CrawlResult
		emailsJSON []byte
		socialJSON []byte
		errText    sql.NullString
	)
	err := s.pool.QueryRow(ctx,
		`SELECT domain, emails, social_links, pages_crawled, success, error, crawled_at
		 FROM crawl_results WHERE domain = $1`, domain,
	).Scan(&res.Domain, &emailsJSON, &socialJSON, &res.PagesCrawled, &res.Success, &errText, &res.CrawledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get crawl result %s", domain)
	}

	if err := json.Unmarshal(emailsJSON, &res.Emails); err != nil {
		return nil, nil
	}
	if err := json.Unmarshal(socialJSON, &res.SocialLinks); err != nil {
		return nil, nil
	}
	res.Error = errText.String
	return &res, nil
}

func (s *PostgresStore) HasCrawlResult(ctx context.Context, domain string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM crawl_results WHERE domain = $1`, domain).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: has crawl result")
	}
	return true, nil
}

func (s *PostgresStore) SaveCrawlResult(ctx context.Context, res *model.CrawlResult) error {
	emailsJSON, err := json.Marshal(res.Emails)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal emails")
	}
	socialJSON, err := json.Marshal(res.SocialLinks)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal social links")
	}

	crawledAt := res.CrawledAt
	if crawledAt.IsZero() {
		crawledAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO crawl_results
		(domain, emails, social_links, pages_crawled, success, error, crawled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (domain) DO UPDATE SET
			emails = EXCLUDED.emails,
			social_links = EXCLUDED.social_links,
			pages_crawled = EXCLUDED.pages_crawled,
			success = EXCLUDED.success,
			error = EXCLUDED.error,
			crawled_at = EXCLUDED.crawled_at`,
		res.Domain, emailsJSON, socialJSON, res.PagesCrawled, res.Success, res.Error, crawledAt,
	)
	return eris.Wrapf(err, "postgres: save crawl result %s", res.Domain)
}

func (s *PostgresStore) GetSearchProgress(ctx context.Context, query, location string) (*model.SearchProgress, error) {
	var p model.SearchProgress
	err := s.pool.QueryRow(ctx,
		`SELECT query_hash, query, location, next_page_token, results_fetched, completed, updated_at
		 FROM search_progress WHERE query_hash = $1`, QueryHash(query, location),
	).Scan(&p.QueryHash, &p.Query, &p.Location, &p.NextPageToken, &p.ResultsFetched, &p.Completed, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get search progress")
	}
	return &p, nil
}

func (s *PostgresStore) SaveSearchProgress(ctx context.Context, p *model.SearchProgress) error {
	hash := p.QueryHash
	if hash == "" {
		hash = QueryHash(p.Query, p.Location)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO search_progress
		(query_hash, query, location, next_page_token, results_fetched, completed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (query_hash) DO UPDATE SET
			next_page_token = EXCLUDED.next_page_token,
			results_fetched = EXCLUDED.results_fetched,
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at`,
		hash, p.Query, p.Location, p.NextPageToken, p.ResultsFetched, p.Completed,
		time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save search progress")
}

func (s *PostgresStore) SaveFailure(ctx context.Context, f *model.FailureRecord) error {
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failures (place_id, domain, error_type, error_message, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.PlaceID, f.Domain, f.ErrorType, f.ErrorMessage, f.RetryCount, createdAt,
	)
	return eris.Wrap(err, "postgres: save failure")
}

func (s *PostgresStore) ListFailures(ctx context.Context, errorType string) ([]model.FailureRecord, error) {
	query := `SELECT id, place_id, domain, error_type, error_message, retry_count, created_at
		FROM failures`
	var args []any
	if errorType != "" {
		query += ` WHERE error_type = $1`
		args = append(args, errorType)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failures")
	}
	defer rows.Close()

	var out []model.FailureRecord
	for rows.Next() {
		var f model.FailureRecord
		var placeID, domain sql.NullString
		if err := rows.Scan(&f.ID, &placeID, &domain, &f.ErrorType, &f.ErrorMessage, &f.RetryCount, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		f.PlaceID = placeID.String
		f.Domain = domain.String
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list failures iterate")
}

func (s *PostgresStore) ClearFailures(ctx context.Context, errorType string) (int, error) {
	query := `DELETE FROM failures`
	var args []any
	if errorType != "" {
		query += ` WHERE error_type = $1`
		args = append(args, errorType)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear failures")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	for _, q := range []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM places`, &stats.PlacesCached},
		{`SELECT COUNT(*) FROM crawl_results`, &stats.DomainsCrawled},
		{`SELECT COUNT(*) FROM failures`, &stats.Failures},
	} {
		if err := s.pool.QueryRow(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, eris.Wrap(err, "postgres: stats")
		}
	}
	return stats, nil
}

// pg helpers

func scanPGPlace(row pgx.Row) (*model.PlaceRecord, error) {
	var (
		rec       model.PlaceRecord
		typesJSON []byte
		rating    sql.NullFloat64
		ratings   sql.NullInt64
		raw       []byte
	)
	err := row.Scan(&rec.PlaceID, &rec.Name, &rec.Address, &rec.Phone,
		&rec.InternationalPhone, &rec.Website, &typesJSON, &rating, &ratings,
		&raw, &rec.SourceQuery, &rec.SourceLocation, &rec.FetchedAt)
	if err != nil {
		return nil, err
	}

	if len(typesJSON) > 0 {
		if err := json.Unmarshal(typesJSON, &rec.Types); err != nil {
			return nil, errDecode
		}
	}
	if rec.Types == nil {
		rec.Types = []string{}
	}
	if rating.Valid {
		v := rating.Float64
		rec.Rating = &v
	}
	if ratings.Valid {
		v := int(ratings.Int64)
		rec.UserRatingsTotal = &v
	}

	if raw != nil {
		decoded, err := decompress(raw)
		if err != nil {
			return nil, errDecode
		}
		rec.Raw = decoded
	}
	return &rec, nil
}

func collectPGPlaces(rows pgx.Rows) ([]model.PlaceRecord, error) {
	defer rows.Close()

	var out []model.PlaceRecord
	for rows.Next() {
		rec, err := scanPGPlace(rows)
		if err == errDecode {
			continue
		}
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan place")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate places")
}
