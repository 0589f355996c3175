package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// PaneTarget identifies one tmux pane. PaneID is the only addressing field;
// SessionName and WindowName are display metadata and may be stale.
type PaneTarget struct {
	PaneID      string
	SessionName string
	WindowName  string
}

// DisplayName renders the "{session}:{window}" label shown in lists and
// notification titles.
func (t PaneTarget) DisplayName() string {
	return displayName(t.SessionName, t.WindowName)
}

func displayName(session, window string) string {
	if session == "" {
		session = UnknownName
	}
	if window == "" {
		window = UnknownName
	}
	return session + ":" + window
}

// UnknownName fills session or window metadata that could not be read.
const UnknownName = "unknown"

// InstanceRecord is one tracked pane in the instance registry.
type InstanceRecord struct {
	PaneTarget
	LastActive  time.Time
	DisplayName string
}

// NewInstanceRecord stamps target with activity time at.
func NewInstanceRecord(target PaneTarget, at time.Time) InstanceRecord {
	return InstanceRecord{
		PaneTarget:  target,
		LastActive:  at.UTC(),
		DisplayName: target.DisplayName(),
	}
}

// RegistryState is the durable content of the instance registry.
// Instances are ordered most-recently-active first. A nil Active means no
// pinned target; callers fall back to auto-discovery.
type RegistryState struct {
	Instances []InstanceRecord
	Active    *PaneTarget
}

// Find returns the index of paneID in Instances or -1.
func (s RegistryState) Find(paneID string) int {
	for i := range s.Instances {
		if s.Instances[i].PaneID == paneID {
			return i
		}
	}
	return -1
}

// CapturedOutput is the ephemeral result of a pane capture. Callers must
// check Exists before trusting Text.
type CapturedOutput struct {
	Target PaneTarget
	Text   string
	Exists bool
}

var (
	ErrGatewayUnavailable = errors.New("tmux server unavailable")
	ErrGatewayTimeout     = errors.New("tmux command timed out")
	ErrPaneNotFound       = errors.New("pane not found")
	ErrNoActiveSession    = errors.New("no active session")
	ErrUnknownInstance    = errors.New("unknown instance")
	ErrBadRequest         = errors.New("bad request")
	ErrCorruptState       = errors.New("corrupt registry state")
)

// Error codes defined by API contract.
const (
	CodeGatewayUnavailable = "E_GATEWAY_UNAVAILABLE"
	CodeGatewayTimeout     = "E_GATEWAY_TIMEOUT"
	CodePaneNotFound       = "E_PANE_NOT_FOUND"
	CodeNoActiveSession    = "E_NO_ACTIVE_SESSION"
	CodeUnknownInstance    = "E_UNKNOWN_INSTANCE"
	CodeBadRequest         = "E_BAD_REQUEST"
	CodeCorruptState       = "E_CORRUPT_STATE"
	CodeInternal           = "E_INTERNAL"
)

// ErrorCode maps err to its API error code. Order matters: a timeout is
// always reported as such, while a resolution failure wrapping an
// unreachable server reports the resolution failure.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, ErrGatewayTimeout):
		return CodeGatewayTimeout
	case errors.Is(err, ErrNoActiveSession):
		return CodeNoActiveSession
	case errors.Is(err, ErrUnknownInstance):
		return CodeUnknownInstance
	case errors.Is(err, ErrPaneNotFound):
		return CodePaneNotFound
	case errors.Is(err, ErrGatewayUnavailable):
		return CodeGatewayUnavailable
	case errors.Is(err, ErrCorruptState):
		return CodeCorruptState
	default:
		return CodeInternal
	}
}

// ValidatePaneID rejects identifiers that cannot be handed to tmux as a -t
// argument. Pane ids are opaque; only structural hazards are refused.
func ValidatePaneID(paneID string) error {
	if strings.TrimSpace(paneID) == "" {
		return fmt.Errorf("%w: pane id is required", ErrBadRequest)
	}
	if strings.HasPrefix(paneID, "-") {
		return fmt.Errorf("%w: invalid pane id %q", ErrBadRequest, paneID)
	}
	for _, r := range paneID {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: invalid pane id %q", ErrBadRequest, paneID)
		}
	}
	return nil
}
