// Package shellconn provides the shell-command execution abstraction the
// IaaS and Docker adapters share: a Connection that can run a command
// line and report whether it's reachable, backed by either a local shell
// or a remote host reached over SSH.
package shellconn

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/crypto/ssh"
)

// Connection runs shell commands against a target: a local shell or a
// remote host reached over SSH.
type Connection interface {
	RunCommand(ctx context.Context, command string) (string, error)
	IsConnected(ctx context.Context) bool
}

// LocalConnection runs commands on the machine the control plane itself
// is running on, via /bin/sh -c, matching LocalShell::run_command.
type LocalConnection struct{}

func (LocalConnection) RunCommand(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("command failed: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

func (LocalConnection) IsConnected(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "sh", "-c", "which sh")
	return cmd.Run() == nil
}

// SSHConnection runs commands on a remote host over SSH using a private
// key, matching SSHConnection<V>'s host/port/username/private_key shape.
type SSHConnection struct {
	Host       string
	Port       int
	Username   string
	PrivateKey string // PEM-encoded

	dialTimeout time.Duration
}

func NewSSHConnection(host string, port int, username, privateKeyPEM string) *SSHConnection {
	return &SSHConnection{Host: host, Port: port, Username: username, PrivateKey: privateKeyPEM, dialTimeout: 15 * time.Second}
}

func (c *SSHConnection) client() (*ssh.Client, error) {
	signer, err := ssh.ParsePrivateKey([]byte(c.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("shellconn: parse private key: %w", err)
	}
	cfg := &ssh.ClientConfig{
		User:            c.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint - nebulous manages short-lived, single-tenant VMs
		Timeout:         c.dialTimeout,
	}
	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	return ssh.Dial("tcp", addr, cfg)
}

func (c *SSHConnection) RunCommand(ctx context.Context, command string) (string, error) {
	client, err := c.client()
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("shellconn: new session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return stdout.String(), fmt.Errorf("remote command failed: %w: %s", err, stderr.String())
		}
		return stdout.String(), nil
	}
}

func (c *SSHConnection) IsConnected(ctx context.Context) bool {
	client, err := c.client()
	if err != nil {
		return false
	}
	defer client.Close()
	return true
}
