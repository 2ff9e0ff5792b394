package vpn

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	tsapi "tailscale.com/client/tailscale"
	"golang.org/x/oauth2/clientcredentials"

	"nebulous/internal/apierrors"
	"nebulous/internal/config"
)

// TailscaleProvider talks to the hosted Tailscale control plane via its
// REST API client, authenticated with OAuth client-credentials (the
// pattern the operator binary uses: a clientcredentials.Config backing
// tsClient.HTTPClient).
type TailscaleProvider struct {
	client  *tsapi.Client
	tailnet string
}

func NewTailscaleProvider(cfg config.VPNConfig) (*TailscaleProvider, error) {
	tsapi.I_Acknowledge_This_API_Is_Unstable = true

	tailnet := cfg.Tailnet
	if tailnet == "" {
		tailnet = "-"
	}

	client := tsapi.NewClient(tailnet, nil)
	if cfg.OAuthClientID != "" && cfg.OAuthClientSecret != "" {
		oauthCfg := clientcredentials.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			TokenURL:     "https://login.tailscale.com/api/v2/oauth/token",
		}
		client.HTTPClient = oauthCfg.Client(context.Background())
	} else if cfg.APIKey != "" {
		client.Auth = tsapi.APIKey(cfg.APIKey)
	} else {
		return nil, fmt.Errorf("vpn: tailscale provider requires either OAuth client credentials or an API key")
	}

	return &TailscaleProvider{client: client, tailnet: tailnet}, nil
}

func (p *TailscaleProvider) GetDeviceIP(ctx context.Context, hostname string) (netip.Addr, error) {
	dev, err := p.GetDeviceByName(ctx, hostname)
	if err != nil {
		return netip.Addr{}, err
	}
	if dev == nil || len(dev.Addresses) == 0 {
		return netip.Addr{}, apierrors.NewNotFoundError("vpn device address", hostname)
	}
	return dev.Addresses[0], nil
}

func (p *TailscaleProvider) GetDeviceByName(ctx context.Context, name string) (*Device, error) {
	devices, err := p.client.Devices(ctx)
	if err != nil {
		return nil, apierrors.NewTransientError("vpn.list_devices", err)
	}
	for _, d := range devices {
		if matchesDeviceName(d.Name, name) || matchesDeviceName(d.Hostname, name) {
			addrs := make([]netip.Addr, 0, len(d.Addresses))
			for _, a := range d.Addresses {
				if addr, err := netip.ParseAddr(a); err == nil {
					addrs = append(addrs, addr)
				}
			}
			return &Device{ID: d.DeviceID, Name: d.Hostname, Addresses: addrs}, nil
		}
	}
	return nil, apierrors.NewNotFoundError("vpn device", name)
}

func (p *TailscaleProvider) RemoveDeviceByName(ctx context.Context, name string) (*Device, error) {
	dev, err := p.GetDeviceByName(ctx, name)
	if err != nil {
		if _, ok := apierrors.IsNotFoundError(err); ok {
			return nil, nil
		}
		return nil, err
	}
	if err := p.client.DeleteDevice(ctx, dev.ID); err != nil {
		return nil, apierrors.NewTransientError("vpn.delete_device", err)
	}
	return dev, nil
}

func (p *TailscaleProvider) CreateAuthKey(ctx context.Context, description string, caps KeyCapabilities) (AuthKey, error) {
	key, meta, err := p.client.CreateKey(ctx, tsapi.KeyCapabilities{
		Devices: tsapi.KeyDeviceCapabilities{
			Create: tsapi.KeyDeviceCreateCapabilities{
				Reusable:      caps.Reusable,
				Ephemeral:     caps.Ephemeral,
				Preauthorized: caps.Preauthorized,
				Tags:          caps.Tags,
			},
		},
	})
	if err != nil {
		return AuthKey{}, apierrors.NewTransientError("vpn.create_key", err)
	}
	id := ""
	if meta != nil {
		id = meta.ID
	}
	return AuthKey{Key: key, ID: id}, nil
}

// matchesDeviceName compares a mesh device's FQDN-style name against our
// short hostname convention; Tailscale appends ".<tailnet>.ts.net.".
func matchesDeviceName(full, short string) bool {
	full = strings.TrimSuffix(full, ".")
	parts := strings.SplitN(full, ".", 2)
	return len(parts) > 0 && parts[0] == short
}
