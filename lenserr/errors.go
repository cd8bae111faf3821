// Package lenserr defines the error taxonomy shared by every icelens
// component. Handlers map these onto HTTP statuses; everything else
// wraps them with fmt.Errorf("...: %w", err).
package lenserr

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is against these; the typed errors below
// all match their corresponding sentinel.
var (
	// ErrInvalidTable means no metadata.json was found at the table
	// location, or its body could not be parsed.
	ErrInvalidTable = errors.New("invalid iceberg table")

	// ErrNotFound means a snapshot id or file reference does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDecode means a manifest or manifest-list file is malformed.
	// Always scoped to a single file.
	ErrDecode = errors.New("decode failed")

	// ErrPermission means the object store denied access.
	ErrPermission = errors.New("permission denied")

	// ErrTimeout means a read deadline was exceeded.
	ErrTimeout = errors.New("deadline exceeded")
)

// InvalidTableError reports a table location that has no usable metadata.
type InvalidTableError struct {
	Location string
	Reason   string
	Err      error
}

func (e *InvalidTableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid iceberg table at %s: %s: %v", e.Location, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid iceberg table at %s: %s", e.Location, e.Reason)
}

func (e *InvalidTableError) Unwrap() error { return e.Err }

func (e *InvalidTableError) Is(target error) bool { return target == ErrInvalidTable }

// NotFoundError reports a missing snapshot, manifest, or file reference.
type NotFoundError struct {
	Kind string // "snapshot", "manifest", "file", "metadata"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DecodeError reports a malformed binary file. It names the one file it
// is scoped to so callers can skip it and keep going.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// PermissionError reports an authorization failure from the object store.
type PermissionError struct {
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("access denied to %s: %v", e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

// TimeoutError reports a read that exceeded its deadline.
type TimeoutError struct {
	Op   string
	Path string
	Err  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: deadline exceeded", e.Op, e.Path)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// FromRead classifies a raw object-store read error into the taxonomy.
// Context deadline errors become TimeoutError; everything else is
// returned unchanged (store backends wrap permission failures themselves).
func FromRead(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Path: path, Err: err}
	}
	return err
}
