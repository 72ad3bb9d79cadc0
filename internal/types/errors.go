package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching across the taxonomy.
var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrIDCollision    = errors.New("id generation exhausted retries")
	ErrSchema         = errors.New("schema migration failed")
	ErrSync           = errors.New("sync failed")
	ErrIO             = errors.New("i/o failure")
	ErrParse          = errors.New("malformed interchange record")
	ErrConflict       = errors.New("conflict detected")
	ErrNotInitialized = errors.New("database not initialized")
)

// SchemaError is returned when a migration step fails. The database is left
// at the last successfully applied version.
type SchemaError struct {
	Version int
	Err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema migration v%d failed: %v", e.Version, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// NotFoundError reports an unknown issue, comment, label, dependency or conflict.
type NotFoundError struct {
	Kind string // "issue", "comment", "label", "dependency", "conflict"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFound builds a NotFoundError.
func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ValidationError is returned before any mutation takes place.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError.
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// IdCollisionError means the generator could not find a free id.
type IdCollisionError struct {
	Prefix   string
	Attempts int
}

func (e *IdCollisionError) Error() string {
	return fmt.Sprintf("failed to generate unique id with prefix %q after %d attempts", e.Prefix, e.Attempts)
}

func (e *IdCollisionError) Is(target error) bool { return target == ErrIDCollision }

// ImportParseError describes one malformed interchange line. Import
// continues past it.
type ImportParseError struct {
	Line int
	Err  error
}

func (e *ImportParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ImportParseError) Unwrap() error { return e.Err }

func (e *ImportParseError) Is(target error) bool { return target == ErrParse }

// ConflictDetected is a recorded outcome, not a failure: the issue diverged on
// both sides and is waiting for the user.
type ConflictDetected struct {
	ConflictID string
	IssueID    string
}

func (e *ConflictDetected) Error() string {
	return fmt.Sprintf("conflict %s recorded for issue %s", e.ConflictID, e.IssueID)
}

func (e *ConflictDetected) Is(target error) bool { return target == ErrConflict }

// SyncError wraps a failed external git step.
type SyncError struct {
	Step string // "export", "commit", "pull", "import", "push", "lock"
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s failed: %v", e.Step, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func (e *SyncError) Is(target error) bool { return target == ErrSync }

// IoError wraps export/migrate file failures.
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

func (e *IoError) Is(target error) bool { return target == ErrIO }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
