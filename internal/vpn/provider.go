package vpn

import (
	"fmt"

	"nebulous/internal/config"
)

// NewClient constructs the configured mesh provider.
func NewClient(cfg config.VPNConfig) (Client, error) {
	switch cfg.Provider {
	case "tailscale", "":
		return NewTailscaleProvider(cfg)
	case "headscale":
		return NewHeadscaleProvider(cfg)
	default:
		return nil, fmt.Errorf("vpn: unknown provider %q", cfg.Provider)
	}
}
