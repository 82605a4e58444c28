package media

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

var (
	// ErrTimeout is returned when a supervised process exceeds its allotted time.
	ErrTimeout = errors.New("timeout")
	// ErrEmptyOutput is returned when a tool exits cleanly without producing an artifact.
	ErrEmptyOutput = errors.New("tool produced no output file")
)

// SpawnError reports that an external process could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError reports that an external process ran and exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s failed with exit code %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// MetadataError reports a failed pre-download metadata fetch.
type MetadataError struct {
	URL string
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("failed to get video info: %v", e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// AlreadyExistsError reports that the resolved output path is taken.
type AlreadyExistsError struct {
	Path string
}

func (e *AlreadyExistsError) Error() string {
	return "output file already exists: " + e.Path
}

// Is lets errors.Is(err, fs.ErrExist) match.
func (e *AlreadyExistsError) Is(target error) bool {
	return target == fs.ErrExist
}

// InvalidInputError reports a malformed request field.
type InvalidInputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// MergeError reports a failed post-download remux.
type MergeError struct {
	Err error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge failed: %v", e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// FailureKind is a stable reason string for a job failure.
type FailureKind string

const (
	FailureInvalidInput  FailureKind = "invalid_input"
	FailureUnreachable   FailureKind = "unreachable"
	FailureAccessDenied  FailureKind = "access_denied"
	FailureUnavailable   FailureKind = "unavailable"
	FailureTimeout       FailureKind = "timeout"
	FailureMerge         FailureKind = "merge_failed"
	FailureDisk          FailureKind = "disk"
	FailureAlreadyExists FailureKind = "already_exists"
	FailureMetadata      FailureKind = "metadata"
	FailureSpawn         FailureKind = "spawn"
	FailureTool          FailureKind = "tool_failed"
)

var (
	accessDeniedMarkers = []string{"http error 403", "forbidden", "sign in to confirm", "age-restricted", "members-only"}
	unavailableMarkers  = []string{"private video", "video unavailable", "is unavailable", "has been removed"}
	unreachableMarkers  = []string{"unable to download webpage", "name or service not known", "connection refused", "no route to host", "http error 404", "unsupported url", "incomplete youtube id"}
)

// Classify maps a job error onto a FailureKind. Content markers in tool
// output take precedence over the structural type so that a metadata fetch
// refused with 403 is still reported as access denied.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}

	var invalid *InvalidInputError
	var exists *AlreadyExistsError
	var merge *MergeError
	var spawn *SpawnError
	var meta *MetadataError
	var pathErr *fs.PathError

	switch {
	case errors.As(err, &invalid):
		return FailureInvalidInput
	case errors.As(err, &exists):
		return FailureAlreadyExists
	case errors.As(err, &merge):
		return FailureMerge
	case errors.As(err, &spawn):
		return FailureSpawn
	}

	lower := strings.ToLower(err.Error())
	switch {
	case containsAny(lower, accessDeniedMarkers):
		return FailureAccessDenied
	case containsAny(lower, unavailableMarkers):
		return FailureUnavailable
	case containsAny(lower, unreachableMarkers):
		return FailureUnreachable
	}

	switch {
	case errors.Is(err, ErrTimeout):
		return FailureTimeout
	case errors.As(err, &meta):
		return FailureMetadata
	case errors.As(err, &pathErr), errors.Is(err, ErrEmptyOutput):
		return FailureDisk
	}
	return FailureTool
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
