package repositories

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/willow/pkg/database"
)

// NotFound returns a 404 HTTP error with a descriptive message
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Forbidden returns a 403 HTTP error
func Forbidden(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusForbidden, fmt.Sprintf(format, args...))
}

// Conflict returns a 409 HTTP error
func Conflict(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf(format, args...))
}

// BadInput returns a 400 HTTP error
func BadInput(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// Internal returns a 500 HTTP error. The cause is logged by the caller, never returned.
func Internal(message string) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}

func hasStatus(err error, code int) bool {
	return err != nil && httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == code
}

func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }
func IsForbidden(err error) bool { return hasStatus(err, http.StatusForbidden) }
func IsConflict(err error) bool { return hasStatus(err, http.StatusConflict) }
func IsBadInput(err error) bool { return hasStatus(err, http.StatusBadRequest) }

// Repository provides the connection shared by every table repository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new base repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB returns the executor for ctx: the open unit of work when there is one, otherwise the pool.
func (r *Repository) DB(ctx context.Context) database.Executor {
	return database.Conn(ctx, r.db)
}

// uniqueViolation is the postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// failed logs err against the operation and returns the opaque 500 callers see. A unique
// constraint failure means a concurrent writer won and is reported as a conflict.
func (r *Repository) failed(ctx context.Context, err error, fields map[string]any, message string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Warnf("%s: constraint %s", message, pqErr.Constraint)
		return Conflict("%s: already exists", message)
	}
	r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error(message)
	return Internal(message)
}

func (r *Repository) exec(ctx context.Context, b sqlbuilder.Builder, fields map[string]any, message string) (int, error) {
	query, args := b.Build()
	n, err := execCount(ctx, r.DB(ctx), query, args...)
	if err != nil {
		return 0, r.failed(ctx, err, fields, message)
	}
	return n, nil
}
