// Package docker implements platform.Adapter by running `docker` CLI
// commands over a shellconn.Connection — local when config.DockerConfig
// has no remote host configured, over SSH otherwise. It issues the same
// `docker run`/`docker inspect`/`docker rm -f`/`docker logs`/`docker exec`
// command set regardless of which connection it's given.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"nebulous/internal/apierrors"
	"nebulous/internal/config"
	"nebulous/internal/models"
	"nebulous/internal/platform"
	"nebulous/internal/platform/shellconn"
	"nebulous/internal/statemachine"
)

// Adapter runs workloads as plain Docker containers, local or remote.
type Adapter struct {
	conn shellconn.Connection
}

func New(cfg config.DockerConfig) *Adapter {
	if cfg.RemoteSSHHost == "" {
		return &Adapter{conn: shellconn.LocalConnection{}}
	}
	return &Adapter{conn: shellconn.NewSSHConnection(cfg.RemoteSSHHost, 22, cfg.RemoteSSHUser, cfg.RemoteSSHPrivateKeyPEM)}
}

func (a *Adapter) Name() string { return "docker" }

func (a *Adapter) Status(ctx context.Context) platform.Status {
	if a.conn.IsConnected(ctx) {
		return platform.Ready
	}
	return platform.DoNotSchedule
}

// AcceleratorMap is empty: plain Docker has no accelerator scheduling of
// its own.
func (a *Adapter) AcceleratorMap() map[string]string { return map[string]string{} }

func (a *Adapter) CommonEnv(record *models.Container) map[string]string {
	return platform.BuildCommonEnv(record)
}

func (a *Adapter) Declare(ctx context.Context, spec platform.ContainerSpec, owner, apiKey string) (*models.Container, error) {
	return platform.DeclareContainer(spec, owner, a.Name())
}

func containerName(record *models.Container) string {
	return "nebu-" + strings.ToLower(strings.ReplaceAll(record.ID, "_", "-"))
}

func (a *Adapter) Reconcile(ctx context.Context, record *models.Container) error {
	status, err := record.ParseStatus()
	if err != nil {
		return apierrors.NewFatalError("docker.parse_status", err)
	}
	current := statemachine.ContainerStatus(status.Status)
	if current.IsTerminal() {
		return nil
	}

	if current.NeedsStart() {
		return a.create(ctx, record)
	}
	if current.NeedsWatch() {
		return a.pollOnce(ctx, record)
	}
	return nil
}

func (a *Adapter) create(ctx context.Context, record *models.Container) error {
	name := containerName(record)

	env := a.CommonEnv(record)
	for k, v := range platform.ProvisionSideEnv(ctx, record) {
		env[k] = v
	}
	var envVars []models.EnvVar
	_ = record.Env.Unmarshal(&envVars)

	args := []string{"run", "-d", "--name", name, "--restart", dockerRestartPolicy(record.Restart)}
	for k, v := range env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	for _, e := range envVars {
		args = append(args, "-e", fmt.Sprintf("%s=%s", e.Key, e.Value))
	}
	args = append(args, record.Image)
	if record.Command != nil && *record.Command != "" {
		args = append(args, strings.Fields(*record.Command)...)
	}

	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = platform.QuoteShellArg(a)
	}
	command := "docker " + strings.Join(parts, " ")

	out, err := a.conn.RunCommand(ctx, command)
	if err != nil {
		return apierrors.NewTransientError("docker.run", err)
	}
	containerID := strings.TrimSpace(out)
	if containerID == "" {
		return apierrors.NewFatalError("docker.run", fmt.Errorf("docker run produced no container id"))
	}

	return platform.PersistCreated(ctx, record, name, "", nil)
}

func dockerRestartPolicy(restart string) string {
	switch restart {
	case "Never":
		return "no"
	case "OnFailure":
		return "on-failure"
	default:
		return "unless-stopped"
	}
}

type dockerState struct {
	Status     string `json:"Status"`
	Running    bool   `json:"Running"`
	ExitCode   int    `json:"ExitCode"`
	StartedAt  string `json:"StartedAt"`
}

func (a *Adapter) pollOnce(ctx context.Context, record *models.Container) error {
	if record.ResourceName == nil {
		return apierrors.NewFatalError("docker.poll", fmt.Errorf("missing resource_name for %s", record.ID))
	}
	out, err := a.conn.RunCommand(ctx, "docker inspect --format '{{json .State}}' "+platform.QuoteShellArg(*record.ResourceName))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such") {
			return platform.MarkFailed(ctx, record, "container no longer exists")
		}
		return apierrors.NewTransientError("docker.inspect", err)
	}

	var state dockerState
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &state); err != nil {
		return apierrors.NewTransientError("docker.inspect_parse", err)
	}

	return platform.PersistObservedStatus(ctx, record, mapDockerState(state), 0)
}

func mapDockerState(state dockerState) statemachine.ContainerStatus {
	switch strings.ToLower(state.Status) {
	case "running":
		return statemachine.Running
	case "restarting":
		return statemachine.Restarting
	case "paused":
		return statemachine.Paused
	case "exited":
		if state.ExitCode == 0 {
			return statemachine.Completed
		}
		return statemachine.Exited
	case "dead":
		return statemachine.Failed
	default:
		return statemachine.Creating
	}
}

func (a *Adapter) Logs(ctx context.Context, record *models.Container) (string, error) {
	if record.ResourceName == nil {
		return "", apierrors.NewNotFoundError("container", record.ID)
	}
	out, err := a.conn.RunCommand(ctx, "docker logs --tail 1000 "+platform.QuoteShellArg(*record.ResourceName))
	if err != nil {
		return "", apierrors.NewTransientError("docker.logs", err)
	}
	return out, nil
}

func (a *Adapter) Exec(ctx context.Context, record *models.Container, command string) (string, error) {
	if record.ResourceName == nil {
		return "", apierrors.NewNotFoundError("container", record.ID)
	}
	out, err := a.conn.RunCommand(ctx, "docker exec "+platform.QuoteShellArg(*record.ResourceName)+" "+command)
	if err != nil {
		return "", apierrors.NewTransientError("docker.exec", err)
	}
	return out, nil
}

func (a *Adapter) Delete(ctx context.Context, record *models.Container) error {
	if record.ResourceName == nil {
		return nil
	}
	out, err := a.conn.RunCommand(ctx, "docker rm -f "+platform.QuoteShellArg(*record.ResourceName))
	if err != nil && !strings.Contains(strings.ToLower(out+err.Error()), "no such") {
		return apierrors.NewTransientError("docker.delete", err)
	}
	return nil
}
