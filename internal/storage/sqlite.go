package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/funnyzak/gqltap/internal/logger"
	"github.com/funnyzak/gqltap/pkg/inspect"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName = "sqlite"

	rowColumns = "id, completed_ns, url, domain, path, display_path, method, status, duration_ms, body_size, bucket, category, has_graphql, operation_name, has_name, payload, popup, trace_id, trace_url"
)

// sqliteStore backs the session with a scratch database file. The file is
// truncated when opened and on Clear, so rows never outlive the session.
type sqliteStore struct {
	db   *sql.DB
	path string
	max  int
	log  logger.Logger
}

func newSQLiteStore(path string, max int, log logger.Logger) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare sqlite directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(absPath))
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %s: %w", stmt, err)
		}
	}

	store := &sqliteStore{db: db, path: absPath, max: max, log: log}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := store.Clear(); err != nil {
		db.Close()
		return nil, fmt.Errorf("truncate previous session: %w", err)
	}
	log.Debug("Session store opened", "driver", "sqlite", "path", absPath, "max_rows", max)
	return store, nil
}

func (s *sqliteStore) initSchema() error {
	schema := `
DROP TABLE IF EXISTS session_rows;
CREATE TABLE session_rows (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    completed_ns INTEGER NOT NULL,
    url TEXT NOT NULL,
    domain TEXT,
    path TEXT,
    display_path TEXT,
    method TEXT,
    status INTEGER,
    duration_ms REAL NOT NULL,
    body_size INTEGER,
    bucket TEXT NOT NULL,
    category TEXT NOT NULL,
    has_graphql INTEGER NOT NULL DEFAULT 0,
    operation_name TEXT,
    has_name INTEGER NOT NULL DEFAULT 0,
    payload TEXT,
    popup TEXT,
    trace_id TEXT,
    trace_url TEXT,
    search_text TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_session_rows_category_seq ON session_rows(category, seq);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *sqliteStore) Add(row *inspect.Row) (err error) {
	if row == nil {
		return fmt.Errorf("row is nil")
	}
	if strings.TrimSpace(row.ID) == "" {
		return fmt.Errorf("row id is empty")
	}
	ctx := context.Background()

	var (
		hasGraphQL bool
		opName     string
		hasName    bool
		payload    string
	)
	if row.GraphQL != nil {
		hasGraphQL = true
		opName = row.GraphQL.OperationName
		hasName = row.GraphQL.HasName
		payload = row.GraphQL.NormalizedPayload
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insertSQL := `INSERT INTO session_rows (` + rowColumns + `, search_text) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insertSQL,
		row.ID,
		row.CompletedAt.UTC().UnixNano(),
		row.URL,
		row.Domain,
		row.Path,
		row.DisplayPath,
		row.Method,
		row.Status,
		row.DurationMs,
		row.BodySize,
		string(row.Bucket),
		string(row.Category),
		boolToInt(hasGraphQL),
		opName,
		boolToInt(hasName),
		payload,
		row.Popup,
		row.TraceID,
		row.TraceURL,
		searchText(row),
	)
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}

	if err = s.prune(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) prune(ctx context.Context, tx *sql.Tx) error {
	if s.max <= 0 {
		return nil
	}
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM session_rows").Scan(&count); err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	if excess := count - s.max; excess > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM session_rows WHERE seq IN (SELECT seq FROM session_rows ORDER BY seq ASC LIMIT ?)", excess); err != nil {
			return fmt.Errorf("prune max rows: %w", err)
		}
	}
	return nil
}

func (s *sqliteStore) List(opts ListOptions) ([]*inspect.Row, int, error) {
	ctx := context.Background()
	where, args := buildFilters(opts)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM session_rows "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := strings.Builder{}
	query.WriteString("SELECT " + rowColumns + " FROM session_rows ")
	query.WriteString(where)
	query.WriteString(" ORDER BY seq ASC")

	listArgs := append([]interface{}{}, args...)
	if opts.Limit > 0 {
		offset := opts.Offset
		if offset < 0 {
			offset = 0
		}
		query.WriteString(" LIMIT ? OFFSET ?")
		listArgs = append(listArgs, opts.Limit, offset)
	} else if opts.Offset > 0 {
		query.WriteString(" LIMIT -1 OFFSET ?")
		listArgs = append(listArgs, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := make([]*inspect.Row, 0)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (s *sqliteStore) Iterate(opts ListOptions, fn func(*inspect.Row) bool) error {
	ctx := context.Background()
	where, args := buildFilters(opts)

	rows, err := s.db.QueryContext(ctx, "SELECT "+rowColumns+" FROM session_rows "+where+" ORDER BY seq ASC", args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return err
		}
		if !fn(row) {
			break
		}
	}
	return rows.Err()
}

func (s *sqliteStore) Snapshot() ([]*inspect.Row, error) {
	var out []*inspect.Row
	err := s.Iterate(ListOptions{}, func(row *inspect.Row) bool {
		out = append(out, row)
		return true
	})
	return out, err
}

func (s *sqliteStore) Get(id string) (*inspect.Row, error) {
	row, err := scanRow(s.db.QueryRowContext(context.Background(), "SELECT "+rowColumns+" FROM session_rows WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *sqliteStore) Len() (int, error) {
	var count int
	err := s.db.QueryRowContext(context.Background(), "SELECT COUNT(1) FROM session_rows").Scan(&count)
	return count, err
}

func (s *sqliteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM session_rows"); err != nil {
		return fmt.Errorf("clear rows: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.Clear(); err != nil {
		s.log.Warn("Failed to clear session store on close", "error", err)
	}
	return s.db.Close()
}

// buildFilters mirrors MemoryStore filtering. Search runs against search_text,
// lower-cased in Go at insert time, because SQLite only folds ASCII case.
func buildFilters(opts ListOptions) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if opts.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, string(opts.Category))
	}
	if search := normalizeSearch(opts.Search); search != "" {
		clauses = append(clauses, "instr(search_text, ?) > 0")
		args = append(args, search)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// searchText joins the searchable fields, lower-cased the way matchesSearch
// compares them.
func searchText(row *inspect.Row) string {
	fields := searchFields(row)
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return strings.Join(fields, "\n")
}

func scanRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*inspect.Row, error) {
	var (
		id          string
		completedNs int64
		url         string
		domain      sql.NullString
		path        sql.NullString
		displayPath sql.NullString
		method      sql.NullString
		status      sql.NullInt64
		durationMs  float64
		bodySize    sql.NullInt64
		bucket      string
		category    string
		hasGraphQL  int64
		opName      sql.NullString
		hasName     int64
		payload     sql.NullString
		popup       sql.NullString
		traceID     sql.NullString
		traceURL    sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&completedNs,
		&url,
		&domain,
		&path,
		&displayPath,
		&method,
		&status,
		&durationMs,
		&bodySize,
		&bucket,
		&category,
		&hasGraphQL,
		&opName,
		&hasName,
		&payload,
		&popup,
		&traceID,
		&traceURL,
	); err != nil {
		return nil, err
	}

	row := &inspect.Row{
		ID:          id,
		CompletedAt: time.Unix(0, completedNs).UTC(),
		URL:         url,
		Domain:      domain.String,
		Path:        path.String,
		DisplayPath: displayPath.String,
		Method:      method.String,
		Status:      int(status.Int64),
		DurationMs:  durationMs,
		Duration:    inspect.FormatDuration(durationMs),
		BodySize:    int(bodySize.Int64),
		Bucket:      inspect.Bucket(bucket),
		Category:    inspect.Category(category),
		Popup:       popup.String,
		TraceID:     traceID.String,
		TraceURL:    traceURL.String,
		Visible:     true,
	}
	if hasGraphQL == 1 {
		row.GraphQL = &inspect.GraphQLInfo{
			OperationName:     opName.String,
			HasName:           hasName == 1,
			NormalizedPayload: payload.String,
		}
	}
	return row, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
