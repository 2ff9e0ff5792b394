// Package vpn provides a provider-pluggable mesh VPN client. Every
// container joins the mesh under a device name derived from its id so the
// control plane and other containers can reach it without public
// exposure.
package vpn

import (
	"context"
	"fmt"
	"net/netip"

	"nebulous/internal/apierrors"
)

// DeviceName is the mesh hostname convention for a container.
func DeviceName(containerID string) string {
	return fmt.Sprintf("container-%s", containerID)
}

// KeyCapabilities describes the auth key the caller wants minted.
type KeyCapabilities struct {
	Tags          []string
	Reusable      bool
	Preauthorized bool
	Ephemeral     bool
}

// AuthKey is a minted, single-use key a joining device authenticates with.
type AuthKey struct {
	Key string
	ID  string
}

// Device is a mesh member, shown with just the fields adapters need.
type Device struct {
	ID        string
	Name      string
	Addresses []netip.Addr
}

// Client is the mesh control-plane surface every provider implements.
type Client interface {
	// GetDeviceIP looks up a device by hostname and returns its IPv4
	// address, or a NotFoundError if no such device is joined.
	GetDeviceIP(ctx context.Context, hostname string) (netip.Addr, error)
	GetDeviceByName(ctx context.Context, name string) (*Device, error)
	// RemoveDeviceByName is idempotent: removing an absent device is not
	// an error, it just returns (nil, nil).
	RemoveDeviceByName(ctx context.Context, name string) (*Device, error)
	CreateAuthKey(ctx context.Context, description string, caps KeyCapabilities) (AuthKey, error)
}

// containerTag is the tag every container device receives so mesh ACLs
// can target the whole fleet.
const containerTag = "tag:container"

// PrepareDeviceKey removes any stale device with the target name (mesh
// providers refuse to let two devices share a name) and mints a fresh
// ephemeral, preauthorized, single-use key for it to join with.
func PrepareDeviceKey(ctx context.Context, c Client, containerID string) (AuthKey, error) {
	name := DeviceName(containerID)
	if _, err := c.RemoveDeviceByName(ctx, name); err != nil {
		if _, ok := apierrors.IsNotFoundError(err); !ok {
			return AuthKey{}, fmt.Errorf("vpn: remove stale device %s: %w", name, err)
		}
	}
	return c.CreateAuthKey(ctx, "container "+containerID, KeyCapabilities{
		Tags:          []string{containerTag},
		Reusable:      false,
		Preauthorized: true,
		Ephemeral:     true,
	})
}
