// Package provision manages the ephemeral compute environments backing
// sessions: a statically addressed local environment, or on-demand remote
// tasks on ECS.
package provision

import (
	"context"
	"fmt"
	"time"
)

// Environment is one provisioned compute environment. It is exclusively
// owned by a single session for its lifetime.
type Environment struct {
	// URL is the environment's HTTP tool surface address.
	URL string

	// Handle is the opaque provisioning handle; empty for local/static
	// environments.
	Handle string
}

// State describes an environment's lifecycle status.
type State string

const (
	StateProvisioning State = "provisioning"
	StateRunning      State = "running"
	StateStopped      State = "stopped"
	StateUnknown      State = "unknown"
)

// Provisioner creates and destroys compute environments.
type Provisioner interface {
	// Provision allocates an environment for the session, blocking until
	// it is reachable or the configured wait window expires.
	Provision(ctx context.Context, sessionID string) (*Environment, error)

	// Terminate tears down the environment behind handle. It is
	// idempotent: terminating an already-stopped or unknown handle is
	// tolerated.
	Terminate(ctx context.Context, handle string) error

	// Status reports the environment's current lifecycle state.
	Status(ctx context.Context, handle string) (State, error)
}

// TimeoutError reports a provisioning wait window expiring before the
// environment reached a running state.
type TimeoutError struct {
	SessionID string
	Waited    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("environment for session %s not running after %s", e.SessionID, e.Waited)
}

// StoppedError reports a provisioned task stopping before it became usable.
type StoppedError struct {
	Handle string
	Reason string
}

func (e *StoppedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("task %s stopped during provisioning", e.Handle)
	}
	return fmt.Sprintf("task %s stopped during provisioning: %s", e.Handle, e.Reason)
}
