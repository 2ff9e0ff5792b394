package models

import "time"

// Secret stores an encrypted value plus the nonce used to encrypt it.
// Plaintext is never persisted; internal/vault handles the encrypt/decrypt
// boundary, the repository only ever sees ciphertext.
type Secret struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	Namespace      string     `gorm:"type:text;not null;index:idx_secrets_ns_name" json:"namespace"`
	Name           string     `gorm:"type:text;not null;index:idx_secrets_ns_name" json:"name"`
	FullName       string     `gorm:"type:text;uniqueIndex;not null" json:"full_name"`
	Owner          string     `gorm:"type:text;not null;index:idx_secrets_owner" json:"owner"`
	CreatedBy      *string    `gorm:"type:text" json:"created_by,omitempty"`
	EncryptedValue []byte     `gorm:"type:bytea;not null" json:"-"`
	Nonce          []byte     `gorm:"type:bytea;not null" json:"-"`
	Labels         JSONB      `gorm:"type:jsonb" json:"labels,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (Secret) TableName() string { return "secrets" }

// AgentKeySecretName is the convention for the callback credential minted
// for every declared container.
func AgentKeySecretName(containerID string) string {
	return "agent-key-" + containerID
}

// SSHPrivateKeySecretName and SSHPublicKeySecretName name the two secrets
// created when a container declares ssh_keys.
func SSHPrivateKeySecretName(containerID string) string { return "ssh-private-key-" + containerID }
func SSHPublicKeySecretName(containerID string) string  { return "ssh-public-key-" + containerID }
