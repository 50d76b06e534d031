package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"concierge/internal/compiler"
	"concierge/internal/config"
	"concierge/internal/events"
	"concierge/internal/repo"
)

// ErrInvalidInput marks errors caused by the caller's data.
var ErrInvalidInput = errors.New("invalid input")

// CompileRejectedError is returned when an order cannot be placed because its
// compilation is not ready to execute.
type CompileRejectedError struct {
	Result compiler.CompiledOrderResult
}

func (e *CompileRejectedError) Error() string {
	codes := make([]string, 0, len(e.Result.Issues))
	seen := map[compiler.IssueCode]bool{}
	for _, is := range e.Result.Issues {
		if !seen[is.Code] {
			seen[is.Code] = true
			codes = append(codes, string(is.Code))
		}
	}
	return fmt.Sprintf("order not ready: %s (%s)", e.Result.Status, strings.Join(codes, ", "))
}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *Metrics

	catalogs *lru.Cache[string, compiler.Catalog]
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	size := cfg.Cache.CatalogEntries
	if size < 1 {
		size = 1
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, compiler.Catalog](size)
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Now:      time.Now,
		Logger:   zap.NewNop(),
		Metrics:  NewMetrics(),
		catalogs: cache,
	}
}

// WithLogger returns a copy of e that logs to l.
func (e Engine) WithLogger(l *zap.Logger) Engine {
	if l == nil {
		l = zap.NewNop()
	}
	e.Logger = l
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e Engine) metrics() *Metrics {
	if e.Metrics != nil {
		return e.Metrics
	}
	return NewMetrics()
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
