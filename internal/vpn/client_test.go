package vpn

import (
	"context"
	"net/netip"
	"testing"

	"nebulous/internal/apierrors"
)

type fakeClient struct {
	removed       []string
	removeErr     error
	createdDesc   string
	createdCaps   KeyCapabilities
	createKeyResp AuthKey
}

func (f *fakeClient) GetDeviceIP(ctx context.Context, hostname string) (netip.Addr, error) {
	return netip.Addr{}, apierrors.NewNotFoundError("device", hostname)
}

func (f *fakeClient) GetDeviceByName(ctx context.Context, name string) (*Device, error) {
	return nil, apierrors.NewNotFoundError("device", name)
}

func (f *fakeClient) RemoveDeviceByName(ctx context.Context, name string) (*Device, error) {
	f.removed = append(f.removed, name)
	if f.removeErr != nil {
		return nil, f.removeErr
	}
	return nil, nil
}

func (f *fakeClient) CreateAuthKey(ctx context.Context, description string, caps KeyCapabilities) (AuthKey, error) {
	f.createdDesc = description
	f.createdCaps = caps
	return f.createKeyResp, nil
}

func TestDeviceNameConvention(t *testing.T) {
	if got := DeviceName("cont_abc"); got != "container-cont_abc" {
		t.Fatalf("DeviceName = %q, want container-cont_abc", got)
	}
}

func TestPrepareDeviceKeyRemovesStaleDeviceAndMintsKey(t *testing.T) {
	fc := &fakeClient{createKeyResp: AuthKey{Key: "tskey-minted", ID: "key-1"}}

	key, err := PrepareDeviceKey(context.Background(), fc, "cont_abc")
	if err != nil {
		t.Fatalf("PrepareDeviceKey: %v", err)
	}
	if key.Key != "tskey-minted" {
		t.Fatalf("key = %q, want tskey-minted", key.Key)
	}
	if len(fc.removed) != 1 || fc.removed[0] != "container-cont_abc" {
		t.Fatalf("removed = %v, want exactly container-cont_abc", fc.removed)
	}
	if !fc.createdCaps.Ephemeral || !fc.createdCaps.Preauthorized || fc.createdCaps.Reusable {
		t.Fatalf("unexpected capabilities: %+v", fc.createdCaps)
	}
	if len(fc.createdCaps.Tags) != 1 || fc.createdCaps.Tags[0] != containerTag {
		t.Fatalf("tags = %v, want [%s]", fc.createdCaps.Tags, containerTag)
	}
}

func TestPrepareDeviceKeyToleratesAbsentStaleDevice(t *testing.T) {
	fc := &fakeClient{
		removeErr:     apierrors.NewNotFoundError("device", "container-cont_new"),
		createKeyResp: AuthKey{Key: "tskey-fresh"},
	}

	key, err := PrepareDeviceKey(context.Background(), fc, "cont_new")
	if err != nil {
		t.Fatalf("PrepareDeviceKey: %v", err)
	}
	if key.Key != "tskey-fresh" {
		t.Fatalf("key = %q, want tskey-fresh", key.Key)
	}
}
