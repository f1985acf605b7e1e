// Package errs defines the error kinds the engine raises, so callers can
// errors.Is/errors.As against a kind rather than matching strings.
package errs

import "errors"

// Kind identifies one of the error categories the engine distinguishes.
type Kind string

const (
	CatalogUnreadable         Kind = "catalog_unreadable"
	BackupNotFound            Kind = "backup_not_found"
	BackupPinned              Kind = "backup_pinned"
	MinimumRedundancyViolation Kind = "minimum_redundancy_violation"
	InvalidRetentionPolicy    Kind = "invalid_retention_policy"
	StoreFailure              Kind = "store_failure"
	NotSupported              Kind = "not_supported"
	UnsupportedKeepTarget     Kind = "unsupported_keep_target"
	ReservedBackupName        Kind = "reserved_backup_name"
)

// OperationError wraps an underlying error with the kind the engine assigned
// to it, so callers can branch on Kind without string matching.
type OperationError struct {
	Kind Kind
	Err  error
}

func (e *OperationError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// New builds an *OperationError for the given kind wrapping err.
func New(kind Kind, err error) *OperationError {
	return &OperationError{Kind: kind, Err: err}
}

// Is reports whether err is an *OperationError of the given kind.
func Is(err error, kind Kind) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind == kind
	}
	return false
}

// ErrNotSupported is returned by optional ObjectStore capabilities
// (prefix listing, delete-prefix) when the backend does not implement them.
var ErrNotSupported = New(NotSupported, errors.New("capability not supported by this backend"))
