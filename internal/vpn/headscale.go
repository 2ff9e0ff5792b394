package vpn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"nebulous/internal/apierrors"
	"nebulous/internal/config"
)

// HeadscaleProvider talks to a self-hosted Headscale control plane over
// its REST API, sharing the Client interface with TailscaleProvider so
// the rest of the system is indifferent to which mesh backend is
// configured. Its HTTP client follows the same construction idiom as the
// teacher's clients/vendor_client.go (fixed timeout, context-bound
// requests, JSON bodies).
type HeadscaleProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHeadscaleProvider(cfg config.VPNConfig) (*HeadscaleProvider, error) {
	if cfg.LoginServerURL == "" {
		return nil, fmt.Errorf("vpn: headscale provider requires HEADSCALE_URL")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vpn: headscale provider requires TAILSCALE_API_KEY (reused as the headscale API key)")
	}
	return &HeadscaleProvider{
		baseURL:    strings.TrimSuffix(cfg.LoginServerURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type headscaleDevice struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	IPAddresses []string `json:"ipAddresses"`
}

type headscaleMachineListResponse struct {
	Machines []headscaleDevice `json:"nodes"`
}

type headscalePreAuthKeyResponse struct {
	PreAuthKey struct {
		Key string `json:"key"`
		ID  string `json:"id"`
	} `json:"preAuthKey"`
}

func (p *HeadscaleProvider) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
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

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return apierrors.NewTransientError("vpn.headscale_request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apierrors.NewNotFoundError("headscale resource", path)
	}
	if resp.StatusCode >= 500 {
		return apierrors.NewTransientError("vpn.headscale_request", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return apierrors.NewFatalError("vpn.headscale_request", fmt.Errorf("status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *HeadscaleProvider) listDevices(ctx context.Context) ([]headscaleDevice, error) {
	var res headscaleMachineListResponse
	if err := p.do(ctx, http.MethodGet, "/api/v1/node", nil, &res); err != nil {
		return nil, err
	}
	return res.Machines, nil
}

func (p *HeadscaleProvider) GetDeviceIP(ctx context.Context, hostname string) (netip.Addr, error) {
	dev, err := p.GetDeviceByName(ctx, hostname)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(dev.Addresses) == 0 {
		return netip.Addr{}, apierrors.NewNotFoundError("vpn device address", hostname)
	}
	return dev.Addresses[0], nil
}

func (p *HeadscaleProvider) GetDeviceByName(ctx context.Context, name string) (*Device, error) {
	devices, err := p.listDevices(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == name {
			addrs := make([]netip.Addr, 0, len(d.IPAddresses))
			for _, a := range d.IPAddresses {
				if addr, err := netip.ParseAddr(a); err == nil {
					addrs = append(addrs, addr)
				}
			}
			return &Device{ID: d.ID, Name: d.Name, Addresses: addrs}, nil
		}
	}
	return nil, apierrors.NewNotFoundError("vpn device", name)
}

func (p *HeadscaleProvider) RemoveDeviceByName(ctx context.Context, name string) (*Device, error) {
	dev, err := p.GetDeviceByName(ctx, name)
	if err != nil {
		if _, ok := apierrors.IsNotFoundError(err); ok {
			return nil, nil
		}
		return nil, err
	}
	if err := p.do(ctx, http.MethodDelete, "/api/v1/node/"+dev.ID, nil, nil); err != nil {
		return nil, err
	}
	return dev, nil
}

func (p *HeadscaleProvider) CreateAuthKey(ctx context.Context, description string, caps KeyCapabilities) (AuthKey, error) {
	var res headscalePreAuthKeyResponse
	body := map[string]interface{}{
		"reusable":   caps.Reusable,
		"ephemeral":  caps.Ephemeral,
		"expiration": time.Now().Add(time.Hour).Format(time.RFC3339),
	}
	if err := p.do(ctx, http.MethodPost, "/api/v1/preauthkey", body, &res); err != nil {
		return AuthKey{}, err
	}
	return AuthKey{Key: res.PreAuthKey.Key, ID: res.PreAuthKey.ID}, nil
}
