// Package runpod implements the GPU-rental platform.Adapter against the
// RunPod REST API, using a fixed-timeout http.Client with context-bound
// requests and JSON bodies.
package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nebulous/internal/apierrors"
)

type apiClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type podCreateRequest struct {
	Name            string            `json:"name"`
	ImageName       string            `json:"imageName"`
	GpuTypeID       string            `json:"gpuTypeId"`
	GpuCount        int               `json:"gpuCount"`
	DockerArgs      string            `json:"dockerArgs,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	VolumeInGb      int               `json:"volumeInGb,omitempty"`
	ContainerDiskGb int               `json:"containerDiskInGb,omitempty"`
}

type pod struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	DesiredStatus  string `json:"desiredStatus"`
	Runtime        *struct {
		UptimeInSeconds int `json:"uptimeInSeconds"`
	} `json:"runtime"`
	CostPerHr float64 `json:"costPerHr"`
}

type gpuType struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	MemoryInGb   int    `json:"memoryInGb"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierrors.NewTransientError("runpod.request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apierrors.NewNotFoundError("runpod pod", path)
	}
	if resp.StatusCode >= 500 {
		return apierrors.NewTransientError("runpod.request", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return apierrors.NewFatalError("runpod.request", fmt.Errorf("status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) createPod(ctx context.Context, req podCreateRequest) (*pod, error) {
	var p pod
	if err := c.do(ctx, http.MethodPost, "/pods", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *apiClient) getPod(ctx context.Context, id string) (*pod, error) {
	var p pod
	if err := c.do(ctx, http.MethodGet, "/pods/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *apiClient) deletePod(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/pods/"+id, nil, nil)
	if _, ok := apierrors.IsNotFoundError(err); ok {
		return nil
	}
	return err
}

func (c *apiClient) listGPUTypes(ctx context.Context) ([]gpuType, error) {
	var types []gpuType
	if err := c.do(ctx, http.MethodGet, "/gpu-types", nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}
