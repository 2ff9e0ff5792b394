package shellconn

import (
	"context"
	"strings"
	"testing"
)

func TestLocalConnectionRunsCommands(t *testing.T) {
	var c LocalConnection

	out, err := c.RunCommand(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Fatalf("out = %q, want hello", out)
	}
}

func TestLocalConnectionSurfacesCommandFailure(t *testing.T) {
	var c LocalConnection

	_, err := c.RunCommand(context.Background(), "exit 1")
	if err == nil {
		t.Fatal("expected an error from a failing command")
	}
}

func TestLocalConnectionIsConnected(t *testing.T) {
	var c LocalConnection
	if !c.IsConnected(context.Background()) {
		t.Fatal("IsConnected = false, want true (sh is always present in this environment)")
	}
}

func TestSSHConnectionRejectsInvalidPrivateKey(t *testing.T) {
	c := NewSSHConnection("example.invalid", 22, "root", "not a real key")

	if _, err := c.RunCommand(context.Background(), "true"); err == nil {
		t.Fatal("expected RunCommand to fail parsing an invalid private key")
	}
	if c.IsConnected(context.Background()) {
		t.Fatal("IsConnected = true, want false for an invalid private key")
	}
}

func TestNewSSHConnectionSetsFields(t *testing.T) {
	c := NewSSHConnection("host.example", 2222, "deploy", "key-material")
	if c.Host != "host.example" || c.Port != 2222 || c.Username != "deploy" || c.PrivateKey != "key-material" {
		t.Fatalf("unexpected connection fields: %+v", c)
	}
}
