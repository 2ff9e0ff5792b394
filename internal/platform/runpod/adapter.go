package runpod

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"nebulous/internal/apierrors"
	"nebulous/internal/config"
	"nebulous/internal/models"
	"nebulous/internal/platform"
	"nebulous/internal/statemachine"
)

// maxWatchErrors is the adapter-internal watch-loop error threshold,
// distinct from the reconciler's own retry-count tracking: this one
// governs polling-level provider errors per container.
const maxWatchErrors = 5

// Adapter schedules workloads on RunPod's on-demand GPU fleet.
type Adapter struct {
	client *apiClient

	mu           sync.Mutex
	pollErrors   map[string]int
}

func New(cfg config.RunpodConfig) *Adapter {
	return &Adapter{
		client:     newAPIClient(cfg.BaseURL, cfg.APIKey),
		pollErrors: make(map[string]int),
	}
}

func (a *Adapter) Name() string { return "runpod" }

func (a *Adapter) Status(ctx context.Context) platform.Status {
	if _, err := a.client.listGPUTypes(ctx); err != nil {
		return platform.Unavailable
	}
	return platform.Ready
}

// AcceleratorMap translates vendor-neutral names to RunPod GPU display
// names. selectGPUType matches these against the GPU types the provider
// lists and uses the matching type's id; when the provider cannot be
// reached, scheduling fails with a transient error.
func (a *Adapter) AcceleratorMap() map[string]string {
	return map[string]string{
		"A100": "NVIDIA A100 80GB PCIe",
		"H100": "NVIDIA H100 80GB HBM3",
		"T4":   "NVIDIA Tesla T4",
		"A10":  "NVIDIA A10",
		"L40":  "NVIDIA L40",
	}
}

func (a *Adapter) CommonEnv(record *models.Container) map[string]string {
	return platform.BuildCommonEnv(record)
}

func (a *Adapter) Declare(ctx context.Context, spec platform.ContainerSpec, owner, apiKey string) (*models.Container, error) {
	return platform.DeclareContainer(spec, owner, a.Name())
}

// selectGPUType picks the first accelerator in the request that is both
// known to AcceleratorMap() and currently listed as available by the
// provider.
func (a *Adapter) selectGPUType(ctx context.Context, accelerators []string) (sku, displayName string, err error) {
	skuMap := a.AcceleratorMap()
	available, err := a.client.listGPUTypes(ctx)
	if err != nil {
		return "", "", apierrors.NewTransientError("runpod.select_gpu", err)
	}
	availableByName := make(map[string]gpuType, len(available))
	for _, g := range available {
		availableByName[g.DisplayName] = g
	}
	for _, want := range accelerators {
		name, ok := skuMap[want]
		if !ok {
			continue
		}
		if g, ok := availableByName[name]; ok {
			return g.ID, g.DisplayName, nil
		}
	}
	return "", "", apierrors.NewUnschedulableError(
		"None of the requested accelerator types are available")
}

// buildBootstrapCommand assembles the startup command as an explicit
// argument vector: install curl, install the agent, launch the sync
// sidecar, then run the user command. If restart=Never, append a
// self-delete call. Each step is quoted via platform.QuoteShellArg
// independently rather than concatenated as one shell string, so a
// command containing its own quoting can't break the ones around it.
func buildBootstrapCommand(userCommand, userArgs, containerID string, restartNever bool) string {
	steps := [][]string{
		{"sh", "-c", "command -v curl >/dev/null || (apt-get update && apt-get install -y curl)"},
		{"sh", "-c", "curl -fsSL https://get.nebu.sh/agent | sh"},
		{"sh", "-c", "nebu-agent sync --block-once &"},
	}
	if userCommand != "" {
		userParts := append([]string{userCommand}, strings.Fields(userArgs)...)
		steps = append(steps, userParts)
	}
	if restartNever {
		steps = append(steps, []string{"nebu-agent", "self-delete", "--container-id", containerID})
	}

	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		parts = append(parts, platform.JoinShellCommand(step))
	}
	return strings.Join(parts, " && ")
}

func (a *Adapter) Reconcile(ctx context.Context, record *models.Container) error {
	status, err := record.ParseStatus()
	if err != nil {
		return apierrors.NewFatalError("runpod.parse_status", err)
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
	var accelerators []string
	_ = record.Accelerators.Unmarshal(&accelerators)

	gpuID, displayName, err := a.selectGPUType(ctx, accelerators)
	if err != nil {
		return err
	}

	restartNever := record.Restart == "Never"
	command := ""
	if record.Command != nil {
		command = *record.Command
	}
	args := ""
	if record.Args != nil {
		args = *record.Args
	}
	dockerArgs := buildBootstrapCommand(command, args, record.ID, restartNever)

	env := a.CommonEnv(record)
	for k, v := range platform.ProvisionSideEnv(ctx, record) {
		env[k] = v
	}

	p, err := a.client.createPod(ctx, podCreateRequest{
		Name:       record.FullName,
		ImageName:  record.Image,
		GpuTypeID:  gpuID,
		GpuCount:   1,
		DockerArgs: dockerArgs,
		Env:        env,
	})
	if err != nil {
		return err
	}

	return platform.PersistCreated(ctx, record, p.ID, "", map[string]interface{}{
		"accelerator": displayName,
	})
}

func (a *Adapter) pollOnce(ctx context.Context, record *models.Container) error {
	if record.ResourceName == nil {
		return apierrors.NewFatalError("runpod.poll", fmt.Errorf("missing resource_name for %s", record.ID))
	}
	p, err := a.client.getPod(ctx, *record.ResourceName)
	if err != nil {
		if _, ok := apierrors.IsNotFoundError(err); ok {
			return platform.MarkFailed(ctx, record, "Pod no longer exists")
		}
		if a.recordPollError(record.ID) >= maxWatchErrors {
			a.clearPollErrors(record.ID)
			return platform.MarkFailed(ctx, record, "Too many consecutive errors")
		}
		return err
	}
	a.clearPollErrors(record.ID)

	newStatus := mapRunpodStatus(p)
	return platform.PersistObservedStatus(ctx, record, newStatus, p.CostPerHr)
}

func (a *Adapter) recordPollError(containerID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pollErrors[containerID]++
	return a.pollErrors[containerID]
}

func (a *Adapter) clearPollErrors(containerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pollErrors, containerID)
}

func mapRunpodStatus(p *pod) statemachine.ContainerStatus {
	switch p.DesiredStatus {
	case "RUNNING":
		if p.Runtime != nil && p.Runtime.UptimeInSeconds > 0 {
			return statemachine.Running
		}
		return statemachine.Pending
	case "EXITED":
		return statemachine.Exited
	case "TERMINATED":
		return statemachine.Stopped
	default:
		return statemachine.Creating
	}
}

func (a *Adapter) Logs(ctx context.Context, record *models.Container) (string, error) {
	return "", apierrors.NewFatalError("runpod.logs", fmt.Errorf("log streaming not implemented for runpod adapter"))
}

func (a *Adapter) Exec(ctx context.Context, record *models.Container, command string) (string, error) {
	return "", apierrors.NewFatalError("runpod.exec", fmt.Errorf("exec not supported for runpod adapter; use SSH-capable adapters"))
}

func (a *Adapter) Delete(ctx context.Context, record *models.Container) error {
	if record.ResourceName == nil {
		return nil
	}
	if err := a.client.deletePod(ctx, *record.ResourceName); err != nil {
		return apierrors.NewTransientError("runpod.delete", err)
	}
	return nil
}
