package model

import (
	"context"
	"fmt"
	"strings"
)

// Backend abstracts a source of coach replies (local runtime or cloud API).
type Backend interface {
	// Load prepares the backend for generation. For the local runtime this
	// fetches the model; for the cloud API it is a health probe.
	Load(ctx context.Context) error

	// Generate returns the coach reply for prompt. promptContext carries the flow
	// the prompt came from (for example "craving") and may be empty.
	Generate(ctx context.Context, prompt, promptContext string) (string, error)

	// Release frees resources held by the backend and returns it to
	// LoadUnloaded.
	Release(ctx context.Context) error

	// State reports the backend's current load state.
	State() LoadState

	// Name returns a short identifier for logs and status lines.
	Name() string
}

// BackendMode selects which backend answers prompts.
type BackendMode string

const (
	ModeLocal BackendMode = "local"
	ModeCloud BackendMode = "cloud"
)

// DefaultMode is used when no preference has been persisted.
const DefaultMode = ModeLocal

// ParseBackendMode converts user input into a BackendMode.
func ParseBackendMode(s string) (BackendMode, error) {
	switch BackendMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLocal:
		return ModeLocal, nil
	case ModeCloud:
		return ModeCloud, nil
	default:
		return "", fmt.Errorf("unknown backend mode %q (expected local or cloud)", s)
	}
}

// Other returns the opposite mode.
func (m BackendMode) Other() BackendMode {
	if m == ModeCloud {
		return ModeLocal
	}
	return ModeCloud
}

func (m BackendMode) String() string {
	return string(m)
}

// LoadState tracks a backend through unloaded → loading → {ready | failed}.
type LoadState int

const (
	LoadUnloaded LoadState = iota
	LoadLoading
	LoadReady
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadUnloaded:
		return "unloaded"
	case LoadLoading:
		return "loading"
	case LoadReady:
		return "ready"
	case LoadFailed:
		return "failed"
	default:
		return fmt.Sprintf("LoadState(%d)", int(s))
	}
}
