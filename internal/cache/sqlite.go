package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS places (
	place_id           TEXT PRIMARY KEY,
	name               TEXT,
	address            TEXT,
	phone              TEXT,
	international_phone TEXT,
	website            TEXT,
	types              TEXT,
	rating             REAL,
	user_ratings_total INTEGER,
	raw_response       BLOB,
	source_query       TEXT,
	source_location    TEXT,
	fetched_at         DATETIME,
	updated_at         DATETIME
);

CREATE TABLE IF NOT EXISTS crawl_results (
	domain        TEXT PRIMARY KEY,
	emails        TEXT,
	social_links  TEXT,
	pages_crawled INTEGER,
	success       INTEGER,
	error         TEXT,
	crawled_at    DATETIME
);

CREATE TABLE IF NOT EXISTS search_progress (
	query_hash      TEXT PRIMARY KEY,
	query           TEXT,
	location        TEXT,
	next_page_token TEXT,
	results_fetched INTEGER,
	completed       INTEGER,
	updated_at      DATETIME
);

CREATE TABLE IF NOT EXISTS failures (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	place_id      TEXT,
	domain        TEXT,
	error_type    TEXT,
	error_message TEXT,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_places_website ON places(website);
CREATE INDEX IF NOT EXISTS idx_places_phone ON places(phone);
CREATE INDEX IF NOT EXISTS idx_places_source ON places(source_query, source_location);
CREATE INDEX IF NOT EXISTS idx_failures_domain ON failures(domain);
CREATE INDEX IF NOT EXISTS idx_failures_type ON failures(error_type);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const placeColumns = `place_id, name, address, phone, international_phone, website,
	types, rating, user_ratings_total, raw_response, source_query, source_location, fetched_at`

func (s *SQLiteStore) GetPlace(ctx context.Context, placeID string) (*model.PlaceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+placeColumns+` FROM places WHERE place_id = ?`, placeID,
	)
	rec, err := scanPlace(row)
	if err == sql.ErrNoRows || err == errDecode {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get place %s", placeID)
	}
	return rec, nil
}

func (s *SQLiteStore) HasPlace(ctx context.Context, placeID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM places WHERE place_id = ?`, placeID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: has place")
	}
	return true, nil
}

func (s *SQLiteStore) SavePlace(ctx context.Context, rec *model.PlaceRecord) error {
	typesJSON, err := json.Marshal(rec.Types)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal types")
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

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO places
		(place_id, name, address, phone, international_phone, website,
		 types, rating, user_ratings_total, raw_response,
		 source_query, source_location, fetched_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.PlaceID, rec.Name, rec.Address, rec.Phone, rec.InternationalPhone,
		rec.Website, string(typesJSON), rec.Rating, rec.UserRatingsTotal, raw,
		rec.SourceQuery, rec.SourceLocation, fetchedAt, now,
	)
	return eris.Wrapf(err, "sqlite: save place %s", rec.PlaceID)
}

func (s *SQLiteStore) ListPlacesByQuery(ctx context.Context, query, location string) ([]model.PlaceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+placeColumns+` FROM places WHERE source_query = ? AND source_location = ?`,
		query, location,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list places by query")
	}
	return collectPlaces(rows)
}

func (s *SQLiteStore) ListAllPlaces(ctx context.Context) ([]model.PlaceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+placeColumns+` FROM places ORDER BY fetched_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list all places")
	}
	return collectPlaces(rows)
}

func (s *SQLiteStore) UniqueWebsites(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT website FROM places WHERE website IS NOT NULL AND website != ''`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: unique websites")
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan website")
		}
		sites = append(sites, w)
	}
	return sites, eris.Wrap(rows.Err(), "sqlite: unique websites iterate")
}

func (s *SQLiteStore) GetCrawlResult(ctx context.Context, domain string) (*model.CrawlResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT domain, emails, social_links, pages_crawled, success, error, crawled_at
		 FROM crawl_results WHERE domain = ?`, domain,
	)

	var (
		res        model.CrawlResult
		emailsJSON string
		socialJSON string
		errText    sql.NullString
	)
	err := row.Scan(&res.Domain, &emailsJSON, &socialJSON, &res.PagesCrawled, &res.Success, &errText, &res.CrawledAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get crawl result %s", domain)
	}

	// A corrupt stored payload is a miss, not an error.
	if err := json.Unmarshal([]byte(emailsJSON), &res.Emails); err != nil {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(socialJSON), &res.SocialLinks); err != nil {
		return nil, nil
	}
	res.Error = errText.String
	return &res, nil
}

func (s *SQLiteStore) HasCrawlResult(ctx context.Context, domain string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM crawl_results WHERE domain = ?`, domain,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: has crawl result")
	}
	return true, nil
}

func (s *SQLiteStore) SaveCrawlResult(ctx context.Context, res *model.CrawlResult) error {
	emailsJSON, err := json.Marshal(res.Emails)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal emails")
	}
	socialJSON, err := json.Marshal(res.SocialLinks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal social links")
	}

	crawledAt := res.CrawledAt
	if crawledAt.IsZero() {
		crawledAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO crawl_results
		(domain, emails, social_links, pages_crawled, success, error, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.Domain, string(emailsJSON), string(socialJSON), res.PagesCrawled,
		res.Success, res.Error, crawledAt,
	)
	return eris.Wrapf(err, "sqlite: save crawl result %s", res.Domain)
}

func (s *SQLiteStore) GetSearchProgress(ctx context.Context, query, location string) (*model.SearchProgress, error) {
	var p model.SearchProgress
	err := s.db.QueryRowContext(ctx,
		`SELECT query_hash, query, location, next_page_token, results_fetched, completed, updated_at
		 FROM search_progress WHERE query_hash = ?`, QueryHash(query, location),
	).Scan(&p.QueryHash, &p.Query, &p.Location, &p.NextPageToken, &p.ResultsFetched, &p.Completed, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get search progress")
	}
	return &p, nil
}

func (s *SQLiteStore) SaveSearchProgress(ctx context.Context, p *model.SearchProgress) error {
	hash := p.QueryHash
	if hash == "" {
		hash = QueryHash(p.Query, p.Location)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO search_progress
		(query_hash, query, location, next_page_token, results_fetched, completed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		hash, p.Query, p.Location, p.NextPageToken, p.ResultsFetched, p.Completed,
		time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save search progress")
}

func (s *SQLiteStore) SaveFailure(ctx context.Context, f *model.FailureRecord) error {
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failures (place_id, domain, error_type, error_message, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.PlaceID, f.Domain, f.ErrorType, f.ErrorMessage, f.RetryCount, createdAt,
	)
	return eris.Wrap(err, "sqlite: save failure")
}

func (s *SQLiteStore) ListFailures(ctx context.Context, errorType string) ([]model.FailureRecord, error) {
	query := `SELECT id, place_id, domain, error_type, error_message, retry_count, created_at
		FROM failures`
	var args []any
	if errorType != "" {
		query += ` WHERE error_type = ?`
		args = append(args, errorType)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failures")
	}
	defer rows.Close()

	var out []model.FailureRecord
	for rows.Next() {
		var f model.FailureRecord
		var placeID, domain sql.NullString
		if err := rows.Scan(&f.ID, &placeID, &domain, &f.ErrorType, &f.ErrorMessage, &f.RetryCount, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		f.PlaceID = placeID.String
		f.Domain = domain.String
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list failures iterate")
}

func (s *SQLiteStore) ClearFailures(ctx context.Context, errorType string) (int, error) {
	query := `DELETE FROM failures`
	var args []any
	if errorType != "" {
		query += ` WHERE error_type = ?`
		args = append(args, errorType)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear failures")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	for _, q := range []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM places`, &stats.PlacesCached},
		{`SELECT COUNT(*) FROM crawl_results`, &stats.DomainsCrawled},
		{`SELECT COUNT(*) FROM failures`, &stats.Failures},
	} {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, eris.Wrap(err, "sqlite: stats")
		}
	}
	return stats, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanPlace(row scannable) (*model.PlaceRecord, error) {
	var (
		rec       model.PlaceRecord
		typesJSON sql.NullString
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

	if typesJSON.Valid && typesJSON.String != "" {
		if err := json.Unmarshal([]byte(typesJSON.String), &rec.Types); err != nil {
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

// errDecode marks an entry whose stored payload could not be decoded.
// Callers translate it into a cache miss (skip for lists, nil for gets).
var errDecode = eris.New("cache: undecodable entry")

func collectPlaces(rows *sql.Rows) ([]model.PlaceRecord, error) {
	defer rows.Close()

	var out []model.PlaceRecord
	for rows.Next() {
		rec, err := scanPlace(rows)
		if err == errDecode {
			continue
		}
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan place")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate places")
}
