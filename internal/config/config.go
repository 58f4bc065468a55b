package config

import (
	"fmt"
	"time"
)

// Config is the main configuration structure for Operator.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	LLM         LLMConfig         `yaml:"llm"`
	Compute     ComputeConfig     `yaml:"compute"`
	ToolServers ToolServersConfig `yaml:"tool_servers"`
	Agent       AgentConfig       `yaml:"agent"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// ComputeConfig selects how compute environments are obtained. Mode "local"
// points every session at a statically configured, already-running
// environment; mode "ecs" provisions a fresh task per session.
type ComputeConfig struct {
	Mode           string        `yaml:"mode"`
	LocalURL       string        `yaml:"local_url"`
	WorkspaceRoot  string        `yaml:"workspace_root"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ShellTimeout   time.Duration `yaml:"shell_timeout"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	ECS            ECSConfig     `yaml:"ecs"`
}

type ECSConfig struct {
	Cluster        string        `yaml:"cluster"`
	TaskDefinition string        `yaml:"task_definition"`
	Subnets        []string      `yaml:"subnets"`
	SecurityGroups []string      `yaml:"security_groups"`
	Region         string        `yaml:"region"`
	ContainerPort  int           `yaml:"container_port"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxWait        time.Duration `yaml:"max_wait"`
}

type ToolServersConfig struct {
	Servers []ToolServerConfig `yaml:"servers"`
}

// ToolServerConfig describes one remote capability backend reachable over
// the uniform JSON-RPC transport.
type ToolServerConfig struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Enabled bool              `yaml:"enabled"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

type AgentConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	MaxTurns     int    `yaml:"max_turns"`
}

type SessionsConfig struct {
	StaleMaxAge     time.Duration `yaml:"stale_max_age"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate checks the configuration for required fields and consistent values.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	switch c.Compute.Mode {
	case "local":
		if c.Compute.LocalURL == "" {
			return fmt.Errorf("compute.local_url is required in local mode")
		}
	case "ecs":
		if c.Compute.ECS.Cluster == "" {
			return fmt.Errorf("compute.ecs.cluster is required in ecs mode")
		}
		if c.Compute.ECS.TaskDefinition == "" {
			return fmt.Errorf("compute.ecs.task_definition is required in ecs mode")
		}
		if len(c.Compute.ECS.Subnets) == 0 {
			return fmt.Errorf("compute.ecs.subnets must not be empty in ecs mode")
		}
	default:
		return fmt.Errorf("compute.mode must be %q or %q, got %q", "local", "ecs", c.Compute.Mode)
	}
	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be positive")
	}
	seen := map[string]bool{}
	for _, s := range c.ToolServers.Servers {
		if s.ID == "" {
			return fmt.Errorf("tool server id is required")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate tool server id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Enabled && s.URL == "" {
			return fmt.Errorf("tool server %q: url is required", s.ID)
		}
	}
	return nil
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8000
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 5 * time.Minute
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.Compute.Mode == "" {
		c.Compute.Mode = "local"
	}
	if c.Compute.WorkspaceRoot == "" {
		c.Compute.WorkspaceRoot = "/workspace"
	}
	if c.Compute.RequestTimeout == 0 {
		c.Compute.RequestTimeout = 60 * time.Second
	}
	if c.Compute.ShellTimeout == 0 {
		c.Compute.ShellTimeout = 120 * time.Second
	}
	if c.Compute.SettleDelay == 0 {
		c.Compute.SettleDelay = time.Second
	}
	if c.Compute.ECS.ContainerPort == 0 {
		c.Compute.ECS.ContainerPort = 8080
	}
	if c.Compute.ECS.PollInterval == 0 {
		c.Compute.ECS.PollInterval = 5 * time.Second
	}
	if c.Compute.ECS.MaxWait == 0 {
		c.Compute.ECS.MaxWait = 2 * time.Minute
	}
	for i := range c.ToolServers.Servers {
		if c.ToolServers.Servers[i].Timeout == 0 {
			c.ToolServers.Servers[i].Timeout = 30 * time.Second
		}
	}
	if c.Agent.MaxTurns == 0 {
		c.Agent.MaxTurns = 10
	}
	if c.Sessions.StaleMaxAge == 0 {
		c.Sessions.StaleMaxAge = 24 * time.Hour
	}
	if c.Sessions.CleanupInterval == 0 {
		c.Sessions.CleanupInterval = time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}
