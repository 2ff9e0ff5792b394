// Package config loads process configuration from the environment in a
// layered-struct, fail-fast style: every sub-component of the system gets
// its own struct, populated by New() with explicit defaults, and New()
// panics with a descriptive message when a value has no sane default and
// is missing, so the process never runs half-configured.
package config

import (
	"os"
	"strconv"
	"time"

	"nebulous/internal/secretsource"
)

// Config holds all configuration for the service.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	NATS        NATSConfig
	App         AppConfig
	Vault       VaultConfig
	VPN         VPNConfig
	ObjectStore ObjectStoreConfig
	Platform    PlatformConfig
	Reconciler  ReconcilerConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type NATSConfig struct {
	URL string
}

type AppConfig struct {
	Environment           string
	LogLevel              string
	RootOwner             string // the principal every container/secret is visible to, in addition to its declared owner
	RootAPIKey            string
	NebulousServerURL     string // this control plane's own callback base URL, stamped into every workload as NEBULOUS_SERVER
	OrignServerURL        string
	AgentseaAuthServerURL string
}

// VaultConfig configures the secret vault's master key.
type VaultConfig struct {
	MasterKeyBase64 string
}

// VPNConfig selects and configures the mesh provider: tailscale (hosted)
// or headscale (self-hosted).
type VPNConfig struct {
	Provider    string // "tailscale" or "headscale"
	Tailnet     string
	APIKey      string
	OAuthClientID     string
	OAuthClientSecret string
	LoginServerURL    string // headscale only
}

// ObjectStoreConfig configures the scoped-credential broker.
type ObjectStoreConfig struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	AssumeRoleARN   string
	Endpoint        string // non-empty for an S3-compatible local/dev provider
}

// PlatformConfig groups the per-adapter credentials the scheduler and
// registry need to construct each platform.Adapter.
type PlatformConfig struct {
	Runpod     RunpodConfig
	Kubernetes KubernetesConfig
	IaaS       IaaSConfig
	Nebulous   NebulousPeerConfig
	Docker     DockerConfig
}

type RunpodConfig struct {
	APIKey  string
	BaseURL string
}

type KubernetesConfig struct {
	KubeconfigPath string // empty means in-cluster config
	Namespace      string
}

// IaaSConfig configures the two-phase-placement compute adapter.
// DefaultSSHUser is required configuration: there is no hard-coded
// fallback username.
type IaaSConfig struct {
	Provider         string
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	ImageID          string
	DefaultSSHUser   string
	SSHPrivateKeyPEM string
}

type NebulousPeerConfig struct {
	BaseURL string
	APIKey  string
}

type DockerConfig struct {
	RemoteSSHUser        string
	RemoteSSHHost        string
	RemoteSSHPrivateKeyPEM string
}

// ReconcilerConfig controls the top-level reconcile loop.
type ReconcilerConfig struct {
	Interval         time.Duration
	PageSize         int
	PerRecordTimeout time.Duration
	MaxRetries       int
	ShutdownGrace    time.Duration
}

// New populates Config from the environment: required values with no
// safe default panic rather than silently running half-configured.
func New() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnvWithDefault("SERVER_HOST", "0.0.0.0"),
			Port: getEnvWithDefault("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnvWithDefault("DB_HOST", "localhost"),
			Port:     getEnvWithDefault("DB_PORT", "5432"),
			User:     getEnvWithDefault("DB_USER", "postgres"),
			Password: secretsource.GetDBPassword(),
			Name:     getEnvWithDefault("DB_NAME", "nebulous"),
			SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnvWithDefault("REDIS_HOST", "localhost"),
			Port:     getEnvWithDefault("REDIS_PORT", "6379"),
			Password: getEnvWithDefault("REDIS_PASSWORD", ""),
			DB:       getEnvAsIntWithDefault("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL: getEnvWithDefault("NATS_URL", "nats://nats.nebulous.svc.cluster.local:4222"),
		},
		App: AppConfig{
			Environment:           getEnvWithDefault("APP_ENV", "development"),
			LogLevel:              getEnvWithDefault("LOG_LEVEL", "info"),
			RootOwner:             getEnvWithDefault("NEBU_ROOT_OWNER", "root"),
			RootAPIKey:            secretsource.GetRootAPIKey(),
			NebulousServerURL:     getEnvWithDefault("NEBULOUS_SERVER_URL", ""),
			OrignServerURL:        getEnvWithDefault("ORIGN_SERVER_URL", ""),
			AgentseaAuthServerURL: getEnvWithDefault("AGENTSEA_AUTH_SERVER_URL", ""),
		},
		Vault: VaultConfig{
			MasterKeyBase64: secretsource.GetVaultMasterKey(),
		},
		VPN: VPNConfig{
			Provider:          getEnvWithDefault("VPN_PROVIDER", "tailscale"),
			Tailnet:           getEnvWithDefault("TAILSCALE_TAILNET", "-"),
			APIKey:            getEnvWithDefault("TAILSCALE_API_KEY", ""),
			OAuthClientID:     getEnvWithDefault("TAILSCALE_OAUTH_CLIENT_ID", ""),
			OAuthClientSecret: getEnvWithDefault("TAILSCALE_OAUTH_CLIENT_SECRET", ""),
			LoginServerURL:    getEnvWithDefault("HEADSCALE_URL", ""),
		},
		ObjectStore: ObjectStoreConfig{
			Bucket:          getEnvWithDefault("OBJECT_STORE_BUCKET", ""),
			Region:          getEnvWithDefault("OBJECT_STORE_REGION", "us-east-1"),
			AccessKeyID:     getEnvWithDefault("OBJECT_STORE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnvWithDefault("OBJECT_STORE_SECRET_ACCESS_KEY", ""),
			AssumeRoleARN:   getEnvWithDefault("OBJECT_STORE_ASSUME_ROLE_ARN", ""),
			Endpoint:        getEnvWithDefault("OBJECT_STORE_ENDPOINT", ""),
		},
		Platform: PlatformConfig{
			Runpod: RunpodConfig{
				APIKey:  getEnvWithDefault("RUNPOD_API_KEY", ""),
				BaseURL: getEnvWithDefault("RUNPOD_BASE_URL", "https://api.runpod.io/v2"),
			},
			Kubernetes: KubernetesConfig{
				KubeconfigPath: getEnvWithDefault("KUBECONFIG", ""),
				Namespace:      getEnvWithDefault("NEBU_K8S_NAMESPACE", "nebulous"),
			},
			IaaS: IaaSConfig{
				Provider:         getEnvWithDefault("IAAS_PROVIDER", "ec2"),
				Region:           getEnvWithDefault("IAAS_REGION", "us-east-1"),
				AccessKeyID:      getEnvWithDefault("IAAS_ACCESS_KEY_ID", ""),
				SecretAccessKey:  getEnvWithDefault("IAAS_SECRET_ACCESS_KEY", ""),
				ImageID:          getEnvWithDefault("IAAS_IMAGE_ID", ""),
				DefaultSSHUser:   getEnvWithDefault("IAAS_DEFAULT_SSH_USER", ""),
				SSHPrivateKeyPEM: getEnvWithDefault("IAAS_SSH_PRIVATE_KEY", ""),
			},
			Nebulous: NebulousPeerConfig{
				BaseURL: getEnvWithDefault("NEBULOUS_PEER_BASE_URL", ""),
				APIKey:  getEnvWithDefault("NEBULOUS_PEER_API_KEY", ""),
			},
			Docker: DockerConfig{
				RemoteSSHUser:          getEnvWithDefault("DOCKER_REMOTE_SSH_USER", ""),
				RemoteSSHHost:          getEnvWithDefault("DOCKER_REMOTE_SSH_HOST", ""),
				RemoteSSHPrivateKeyPEM: getEnvWithDefault("DOCKER_REMOTE_SSH_PRIVATE_KEY", ""),
			},
		},
		Reconciler: ReconcilerConfig{
			Interval:         time.Duration(getEnvAsIntWithDefault("RECONCILER_INTERVAL_SECONDS", 60)) * time.Second,
			PageSize:         getEnvAsIntWithDefault("RECONCILER_PAGE_SIZE", 100),
			PerRecordTimeout: time.Duration(getEnvAsIntWithDefault("RECONCILER_RECORD_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxRetries:       getEnvAsIntWithDefault("RECONCILER_MAX_RETRIES", 5),
			ShutdownGrace:    30 * time.Second,
		},
	}

	if cfg.Vault.MasterKeyBase64 == "" {
		panic("config: VAULT_MASTER_KEY is required")
	}
	if cfg.ObjectStore.Bucket == "" {
		panic("config: OBJECT_STORE_BUCKET is required")
	}

	return cfg
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
