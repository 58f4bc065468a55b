package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/operator/internal/agent/providers"
	"github.com/haasonsaas/operator/internal/config"
	"github.com/haasonsaas/operator/internal/gateway"
	"github.com/haasonsaas/operator/internal/observability"
	"github.com/haasonsaas/operator/internal/provision"
	"github.com/haasonsaas/operator/internal/sessions"
	"github.com/haasonsaas/operator/internal/toolserver"
)

// buildServeCmd creates the "serve" command that starts the orchestrator.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator server",
		Long: `Start the orchestrator server.

The server will:
1. Load configuration from the specified file (or operator.yaml)
2. Discover capabilities from configured tool servers
3. Initialize the model provider and compute provisioner
4. Start the HTTP API for session and task management

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		MaxRetries: cfg.LLM.MaxRetries,
		Timeout:    cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("init provider: %w", err)
	}

	var provisioner provision.Provisioner
	switch cfg.Compute.Mode {
	case "ecs":
		provisioner, err = provision.NewECSProvisioner(ctx, provision.ECSConfig{
			Cluster:        cfg.Compute.ECS.Cluster,
			TaskDefinition: cfg.Compute.ECS.TaskDefinition,
			Subnets:        cfg.Compute.ECS.Subnets,
			SecurityGroups: cfg.Compute.ECS.SecurityGroups,
			Region:         cfg.Compute.ECS.Region,
			ContainerPort:  cfg.Compute.ECS.ContainerPort,
			PollInterval:   cfg.Compute.ECS.PollInterval,
			MaxWait:        cfg.Compute.ECS.MaxWait,
		}, logger)
	default:
		provisioner, err = provision.NewLocalProvisioner(cfg.Compute.LocalURL, logger)
	}
	if err != nil {
		return fmt.Errorf("init provisioner: %w", err)
	}

	var serverConfigs []*toolserver.ServerConfig
	for _, sc := range cfg.ToolServers.Servers {
		serverConfigs = append(serverConfigs, &toolserver.ServerConfig{
			ID:             sc.ID,
			Name:           sc.Name,
			URL:            sc.URL,
			Enabled:        sc.Enabled,
			TimeoutSeconds: int(sc.Timeout.Seconds()),
			Headers:        sc.Headers,
		})
	}
	toolServers := toolserver.NewManager(serverConfigs, logger)

	sessionManager := sessions.NewManager(logger)
	server := gateway.NewServer(cfg, sessionManager, provisioner, toolServers, provider, metrics, logger)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	logger.Info("operator ready",
		"mode", cfg.Compute.Mode,
		"tool_servers", toolServers.ServerCount())

	<-ctx.Done()
	logger.Info("shutting down")
	server.Shutdown(context.Background())
	return nil
}
