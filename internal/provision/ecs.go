package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

// ECSConfig configures remote provisioning on ECS Fargate.
type ECSConfig struct {
	Cluster        string
	TaskDefinition string
	Subnets        []string
	SecurityGroups []string
	Region         string

	// ContainerPort is the port the environment's tool surface listens on.
	ContainerPort int

	// PollInterval is how often task status is checked while waiting.
	PollInterval time.Duration

	// MaxWait bounds the whole provisioning wait.
	MaxWait time.Duration
}

// ecsAPI is the subset of the ECS client the provisioner uses.
type ecsAPI interface {
	RunTask(ctx context.Context, params *ecs.RunTaskInput, optFns ...func(*ecs.Options)) (*ecs.RunTaskOutput, error)
	DescribeTasks(ctx context.Context, params *ecs.DescribeTasksInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error)
	StopTask(ctx context.Context, params *ecs.StopTaskInput, optFns ...func(*ecs.Options)) (*ecs.StopTaskOutput, error)
}

// ECSProvisioner launches one Fargate task per session and polls until it
// is running, then derives the environment address from the task's private
// IPv4 address.
type ECSProvisioner struct {
	client ecsAPI
	config ECSConfig
	logger *slog.Logger
}

// NewECSProvisioner creates a provisioner using the default AWS credential
// chain.
func NewECSProvisioner(ctx context.Context, cfg ECSConfig, logger *slog.Logger) (*ECSProvisioner, error) {
	if cfg.Cluster == "" || cfg.TaskDefinition == "" {
		return nil, fmt.Errorf("ecs cluster and task definition are required")
	}
	if len(cfg.Subnets) == 0 {
		return nil, fmt.Errorf("at least one subnet is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newECSProvisioner(ecs.NewFromConfig(awsCfg), cfg, logger), nil
}

func newECSProvisioner(client ecsAPI, cfg ECSConfig, logger *slog.Logger) *ECSProvisioner {
	if cfg.ContainerPort == 0 {
		cfg.ContainerPort = 8080
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ECSProvisioner{
		client: client,
		config: cfg,
		logger: logger.With("component", "provision", "mode", "ecs"),
	}
}

func (p *ECSProvisioner) Provision(ctx context.Context, sessionID string) (*Environment, error) {
	runOut, err := p.client.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:        aws.String(p.config.Cluster),
		TaskDefinition: aws.String(p.config.TaskDefinition),
		LaunchType:     ecstypes.LaunchTypeFargate,
		Count:          aws.Int32(1),
		StartedBy:      aws.String("operator-" + sessionID),
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        p.config.Subnets,
				SecurityGroups: p.config.SecurityGroups,
				AssignPublicIp: ecstypes.AssignPublicIpEnabled,
			},
		},
		Tags: []ecstypes.Tag{
			{Key: aws.String("session_id"), Value: aws.String(sessionID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("run task: %w", err)
	}
	if len(runOut.Tasks) == 0 {
		return nil, fmt.Errorf("run task returned no tasks for session %s", sessionID)
	}

	taskArn := aws.ToString(runOut.Tasks[0].TaskArn)
	p.logger.Info("task launched, waiting for running state",
		"session_id", sessionID,
		"task_arn", taskArn,
		"max_wait", p.config.MaxWait)

	url, err := p.waitForRunning(ctx, sessionID, taskArn)
	if err != nil {
		// Best effort: do not leave a half-started task behind.
		_ = p.Terminate(context.WithoutCancel(ctx), taskArn)
		return nil, err
	}
	return &Environment{URL: url, Handle: taskArn}, nil
}

// waitForRunning polls the task at the configured interval until it is
// RUNNING, it stops, or the wait window expires.
func (p *ECSProvisioner) waitForRunning(ctx context.Context, sessionID, taskArn string) (string, error) {
	deadline := time.Now().Add(p.config.MaxWait)
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		task, err := p.describeTask(ctx, taskArn)
		if err != nil {
			return "", err
		}

		status := strings.ToUpper(aws.ToString(task.LastStatus))
		switch status {
		case "RUNNING":
			ip := privateIPv4(task)
			if ip == "" {
				return "", fmt.Errorf("task %s is running but has no private IPv4 address", taskArn)
			}
			url := fmt.Sprintf("http://%s:%d", ip, p.config.ContainerPort)
			p.logger.Info("task running", "session_id", sessionID, "url", url)
			return url, nil
		case "STOPPED", "DEPROVISIONING":
			return "", &StoppedError{Handle: taskArn, Reason: aws.ToString(task.StoppedReason)}
		}

		if time.Now().After(deadline) {
			return "", &TimeoutError{SessionID: sessionID, Waited: p.config.MaxWait}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Terminate stops the task. Stopping an already-stopped or unknown task is
// tolerated; ECS treats it as a no-op and so do we.
func (p *ECSProvisioner) Terminate(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	_, err := p.client.StopTask(ctx, &ecs.StopTaskInput{
		Cluster: aws.String(p.config.Cluster),
		Task:    aws.String(handle),
		Reason:  aws.String("session terminated"),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("stop task %s: %w", handle, err)
	}
	return nil
}

func (p *ECSProvisioner) Status(ctx context.Context, handle string) (State, error) {
	if handle == "" {
		return StateUnknown, nil
	}
	task, err := p.describeTask(ctx, handle)
	if err != nil {
		return StateUnknown, err
	}
	switch strings.ToUpper(aws.ToString(task.LastStatus)) {
	case "RUNNING":
		return StateRunning, nil
	case "STOPPED", "DEPROVISIONING", "STOPPING":
		return StateStopped, nil
	default:
		return StateProvisioning, nil
	}
}

func (p *ECSProvisioner) describeTask(ctx context.Context, taskArn string) (*ecstypes.Task, error) {
	out, err := p.client.DescribeTasks(ctx, &ecs.DescribeTasksInput{
		Cluster: aws.String(p.config.Cluster),
		Tasks:   []string{taskArn},
	})
	if err != nil {
		return nil, fmt.Errorf("describe task %s: %w", taskArn, err)
	}
	if len(out.Tasks) == 0 {
		return nil, fmt.Errorf("task %s not found", taskArn)
	}
	return &out.Tasks[0], nil
}

func privateIPv4(task *ecstypes.Task) string {
	for _, attachment := range task.Attachments {
		for _, detail := range attachment.Details {
			if aws.ToString(detail.Name) == "privateIPv4Address" {
				return aws.ToString(detail.Value)
			}
		}
	}
	return ""
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "notfound") ||
		strings.Contains(msg, "invalidparameter")
}
