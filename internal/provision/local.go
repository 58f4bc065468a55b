package provision

import (
	"context"
	"fmt"
	"log/slog"
)

// LocalProvisioner returns a statically configured, already-running
// environment for every session. Terminate is a no-op; the environment
// outlives all sessions.
type LocalProvisioner struct {
	url    string
	logger *slog.Logger
}

func NewLocalProvisioner(url string, logger *slog.Logger) (*LocalProvisioner, error) {
	if url == "" {
		return nil, fmt.Errorf("local environment url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalProvisioner{url: url, logger: logger.With("component", "provision", "mode", "local")}, nil
}

func (p *LocalProvisioner) Provision(ctx context.Context, sessionID string) (*Environment, error) {
	p.logger.Debug("using local environment", "session_id", sessionID, "url", p.url)
	return &Environment{URL: p.url}, nil
}

func (p *LocalProvisioner) Terminate(ctx context.Context, handle string) error {
	return nil
}

func (p *LocalProvisioner) Status(ctx context.Context, handle string) (State, error) {
	return StateRunning, nil
}
