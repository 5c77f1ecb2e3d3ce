// Package sqlbackend is an embedded stand-in for the hosted relational
// backend. It stores spaces, boxes and items in SQLite through gorm and
// enforces the same row visibility the hosted policies do: a caller sees a
// space it owns or belongs to, and only owners and editors may write.
package sqlbackend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/users"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opBackendNew = "sqlbackend.new"

	codeNoDataFound = "P0002"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingUsers    = errors.New("users service is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// IDProvider issues primary keys for new rows.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Config describes the dependencies of a Backend.
type Config struct {
	Database   *gorm.DB
	Users      *users.Service
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Backend owns the embedded tables. Bind it to a caller with ForUser.
type Backend struct {
	db         *gorm.DB
	users      *users.Service
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// New validates cfg and returns a Backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opBackendNew, "missing_database", errMissingDatabase)
	}
	if cfg.Users == nil {
		return nil, newServiceError(opBackendNew, "missing_users", errMissingUsers)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Backend{
		db:         cfg.Database,
		users:      cfg.Users,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// ForUser returns a data source acting as userID.
func (b *Backend) ForUser(userID string) *Session {
	return &Session{backend: b, userID: strings.TrimSpace(userID)}
}

func (b *Backend) now() string {
	return inventory.FormatTimestamp(b.clock())
}

func (b *Backend) newID() (string, error) {
	return b.idProvider.NewID()
}

func (b *Backend) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	b.logger.Error("embedded backend error", attrs...)
}

func permissionDenied(table string) *remote.Error {
	return &remote.Error{
		Message: "permission denied for table " + table,
		Code:    remote.CodeInsufficientPrivilege,
		Status:  http.StatusForbidden,
	}
}

func noVisibleRow(table string) *remote.Error {
	return &remote.Error{
		Message: "no visible row in " + table,
		Code:    remote.CodeNoRows,
		Status:  http.StatusNotFound,
	}
}

func duplicateMember() *remote.Error {
	return &remote.Error{
		Message: "duplicate key value violates unique constraint \"space_members_pkey\"",
		Code:    remote.CodeUniqueViolation,
		Status:  http.StatusConflict,
	}
}

func userNotFound() *remote.Error {
	return &remote.Error{
		Message: "user not found",
		Code:    codeNoDataFound,
		Status:  http.StatusBadRequest,
	}
}

func invalidArgument(message string) *remote.Error {
	return &remote.Error{
		Message: message,
		Code:    "22023",
		Status:  http.StatusBadRequest,
	}
}

func internalFailure(err error) *remote.Error {
	return &remote.Error{
		Message: err.Error(),
		Status:  http.StatusInternalServerError,
	}
}

func valueOr(value *string, fallback string) *string {
	if value == nil || *value == "" {
		return &fallback
	}
	copied := *value
	return &copied
}
