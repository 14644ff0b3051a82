// Package backend selects and constructs the remote store implementation
// from configuration.
package backend

import (
	"time"
)

// Kind represents the configured remote backend.
type Kind string

const (
	FileBackend   Kind = "file"
	MemoryBackend Kind = "memory"
	SheetsBackend Kind = "sheets"
)

// String implements fmt.Stringer
func (k Kind) String() string {
	return string(k)
}

// IsValid returns true if the backend kind is valid.
func (k Kind) IsValid() bool {
	switch k {
	case FileBackend, MemoryBackend, SheetsBackend:
		return true
	default:
		return false
	}
}

// Kinds returns all valid backend kinds.
func Kinds() []Kind {
	return []Kind{FileBackend, MemoryBackend, SheetsBackend}
}

// Config holds configuration for remote backend creation.
type Config struct {
	Kind Kind

	// File backend
	RemoteDir     string
	RemoteLatency time.Duration

	// Sheets backend reads credentials and spreadsheet settings from
	// the environment (see remote/google).
}

// Validate validates the backend configuration.
func (c Config) Validate() error {
	if !c.Kind.IsValid() {
		return errInvalidKind(c.Kind)
	}
	if c.Kind == FileBackend && c.RemoteDir == "" {
		return errMissingDir
	}
	return nil
}
