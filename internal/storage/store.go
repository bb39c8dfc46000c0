package storage

import (
	"errors"
	"strings"

	"github.com/funnyzak/gqltap/internal/config"
	"github.com/funnyzak/gqltap/internal/logger"
	"github.com/funnyzak/gqltap/pkg/inspect"
)

var (
	// ErrUnsupportedDriver indicates the configured driver is not available.
	ErrUnsupportedDriver = errors.New("unsupported storage driver")
	// ErrNotFound is returned by Get for unknown row ids.
	ErrNotFound = errors.New("row not found")
)

// DefaultMaxRows caps the session when no limit is configured.
const DefaultMaxRows = 5000

// ListOptions controls filtering and pagination when fetching rows.
type ListOptions struct {
	Search   string
	Category inspect.Category
	Limit    int
	Offset   int
}

// Store keeps the rows of the current session in arrival order.
type Store interface {
	Add(*inspect.Row) error
	List(ListOptions) ([]*inspect.Row, int, error)
	Iterate(ListOptions, func(*inspect.Row) bool) error
	Snapshot() ([]*inspect.Row, error)
	Get(string) (*inspect.Row, error)
	Len() (int, error)
	Clear() error
	Close() error
}

// New instantiates a Store based on configuration.
func New(cfg *config.StorageConfig, log logger.Logger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("storage config is nil")
	}
	max := cfg.MaxRows
	if max <= 0 {
		max = DefaultMaxRows
	}
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemoryStore(max), nil
	case "sqlite", "sqlite3":
		return newSQLiteStore(cfg.Path, max, log)
	default:
		return nil, ErrUnsupportedDriver
	}
}

// matchesSearch reports whether term (already lower-cased) occurs in any of
// the searchable columns of row.
func matchesSearch(row *inspect.Row, term string) bool {
	if term == "" {
		return true
	}
	for _, field := range searchFields(row) {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func searchFields(row *inspect.Row) []string {
	fields := []string{row.URL, row.DisplayPath, row.Method, row.TraceID}
	if row.GraphQL != nil {
		fields = append(fields, row.GraphQL.OperationName)
	}
	return fields
}

func normalizeSearch(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func paginate(total, limit, offset int) (int, int) {
	if limit <= 0 || limit > total {
		limit = total
	}
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return offset, end
}
