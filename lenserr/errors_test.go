package lenserr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{&InvalidTableError{Location: "gs://b/t", Reason: "no metadata files"}, ErrInvalidTable},
		{&NotFoundError{Kind: "snapshot", Name: "42"}, ErrNotFound},
		{&DecodeError{Path: "m0.avro", Err: fmt.Errorf("bad magic")}, ErrDecode},
		{&PermissionError{Path: "gs://b/t", Err: fmt.Errorf("403")}, ErrPermission},
		{&TimeoutError{Op: "read", Path: "gs://b/t", Err: context.DeadlineExceeded}, ErrTimeout},
	}

	for _, c := range cases {
		if !errors.Is(c.err, c.sentinel) {
			t.Errorf("errors.Is(%T, %v) = false, want true", c.err, c.sentinel)
		}
	}
}

func TestWrappedDecodeErrorStillMatches(t *testing.T) {
	inner := &DecodeError{Path: "snap-1.avro", Err: fmt.Errorf("truncated block")}
	wrapped := fmt.Errorf("expanding manifest list: %w", inner)

	if !errors.Is(wrapped, ErrDecode) {
		t.Error("wrapped DecodeError should match ErrDecode")
	}

	var de *DecodeError
	if !errors.As(wrapped, &de) {
		t.Fatal("errors.As should recover the DecodeError")
	}
	if de.Path != "snap-1.avro" {
		t.Errorf("Path = %q, want snap-1.avro", de.Path)
	}
}

func TestFromRead(t *testing.T) {
	if got := FromRead("read", "p", nil); got != nil {
		t.Errorf("FromRead(nil) = %v, want nil", got)
	}

	err := FromRead("read", "gs://b/x.avro", context.DeadlineExceeded)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("deadline error not classified as ErrTimeout: %v", err)
	}

	plain := fmt.Errorf("connection reset")
	if got := FromRead("read", "p", plain); got != plain {
		t.Errorf("FromRead should pass through unclassified errors, got %v", got)
	}
}
