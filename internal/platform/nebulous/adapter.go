// Package nebulous implements platform.Adapter against a peer Nebulous
// control plane reachable over HTTP, letting one deployment schedule
// workloads onto another ("Nebulous-on-Nebulous"). The REST client uses a
// bounded-timeout http.Client, context-bound JSON requests, and bearer auth.
package nebulous

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"nebulous/internal/apierrors"
	"nebulous/internal/config"
	"nebulous/internal/models"
	"nebulous/internal/platform"
	"nebulous/internal/statemachine"
)

// Adapter forwards container lifecycle operations to a peer deployment's
// HTTP API.
type Adapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(cfg config.NebulousPeerConfig) *Adapter {
	return &Adapter{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type peerContainerRequest struct {
	Namespace string            `json:"namespace"`
	Name      string            `json:"name"`
	Image     string            `json:"image"`
	Command   string            `json:"command,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

type peerContainerResponse struct {
	ID     string `json:"id"`
	Status struct {
		Status    string   `json:"status"`
		CostPerHr *float64 `json:"cost_per_hr,omitempty"`
	} `json:"status"`
}

func (a *Adapter) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return apierrors.NewTransientError("nebulous_peer.request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apierrors.NewNotFoundError("peer container", path)
	}
	if resp.StatusCode >= 500 {
		return apierrors.NewTransientError("nebulous_peer.request", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return apierrors.NewFatalError("nebulous_peer.request", fmt.Errorf("status %d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *Adapter) Name() string { return "nebulous" }

func (a *Adapter) Status(ctx context.Context) platform.Status {
	if err := a.do(ctx, http.MethodGet, "/v1/healthz", nil, nil); err != nil {
		return platform.Unavailable
	}
	return platform.Ready
}

// AcceleratorMap passes vendor-neutral names through unchanged: the peer
// deployment resolves them against its own adapters.
func (a *Adapter) AcceleratorMap() map[string]string {
	return map[string]string{"A100": "A100", "H100": "H100", "T4": "T4", "A10": "A10", "L40": "L40"}
}

func (a *Adapter) CommonEnv(record *models.Container) map[string]string {
	return platform.BuildCommonEnv(record)
}

func (a *Adapter) Declare(ctx context.Context, spec platform.ContainerSpec, owner, apiKey string) (*models.Container, error) {
	return platform.DeclareContainer(spec, owner, a.Name())
}

func (a *Adapter) Reconcile(ctx context.Context, record *models.Container) error {
	status, err := record.ParseStatus()
	if err != nil {
		return apierrors.NewFatalError("nebulous_peer.parse_status", err)
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
	command := ""
	if record.Command != nil {
		command = *record.Command
	}

	env := a.CommonEnv(record)
	for k, v := range platform.ProvisionSideEnv(ctx, record) {
		env[k] = v
	}

	var resp peerContainerResponse
	err := a.do(ctx, http.MethodPost, "/v1/containers", peerContainerRequest{
		Namespace: record.Namespace,
		Name:      record.Name,
		Image:     record.Image,
		Command:   command,
		Env:       env,
	}, &resp)
	if err != nil {
		return err
	}

	return platform.PersistCreated(ctx, record, resp.ID, "", nil)
}

func (a *Adapter) pollOnce(ctx context.Context, record *models.Container) error {
	if record.ResourceName == nil {
		return apierrors.NewFatalError("nebulous_peer.poll", fmt.Errorf("missing resource_name for %s", record.ID))
	}
	var resp peerContainerResponse
	if err := a.do(ctx, http.MethodGet, "/v1/containers/"+*record.ResourceName, nil, &resp); err != nil {
		if _, ok := apierrors.IsNotFoundError(err); ok {
			return platform.MarkFailed(ctx, record, "peer container no longer exists")
		}
		return err
	}

	newStatus, err := statemachine.Parse(resp.Status.Status)
	if err != nil {
		newStatus = statemachine.Creating
	}
	costPerHr := 0.0
	if resp.Status.CostPerHr != nil {
		costPerHr = *resp.Status.CostPerHr
	}
	return platform.PersistObservedStatus(ctx, record, newStatus, costPerHr)
}

func (a *Adapter) Logs(ctx context.Context, record *models.Container) (string, error) {
	if record.ResourceName == nil {
		return "", apierrors.NewNotFoundError("peer container", record.ID)
	}
	var out struct {
		Logs string `json:"logs"`
	}
	if err := a.do(ctx, http.MethodGet, "/v1/containers/"+*record.ResourceName+"/logs", nil, &out); err != nil {
		return "", err
	}
	return out.Logs, nil
}

func (a *Adapter) Exec(ctx context.Context, record *models.Container, command string) (string, error) {
	if record.ResourceName == nil {
		return "", apierrors.NewNotFoundError("peer container", record.ID)
	}
	var out struct {
		Output string `json:"output"`
	}
	err := a.do(ctx, http.MethodPost, "/v1/containers/"+*record.ResourceName+"/exec",
		map[string]string{"command": command}, &out)
	if err != nil {
		return "", err
	}
	return out.Output, nil
}

func (a *Adapter) Delete(ctx context.Context, record *models.Container) error {
	if record.ResourceName == nil {
		return nil
	}
	err := a.do(ctx, http.MethodDelete, "/v1/containers/"+*record.ResourceName, nil, nil)
	if _, ok := apierrors.IsNotFoundError(err); ok {
		return nil
	}
	return err
}
