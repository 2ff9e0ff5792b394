package platform

import (
	"context"
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"nebulous/internal/apierrors"
	"nebulous/internal/models"
	"nebulous/internal/objectstore"
	"nebulous/internal/repository"
	"nebulous/internal/statemachine"
	"nebulous/internal/vault"
	"nebulous/internal/vpn"
)

// deps holds the shared dependencies every adapter's common helpers need:
// the Store for persistence, the SecretService for side-resource
// provisioning, and a logger for the status transitions these helpers
// make on every adapter's behalf. Set once at startup via Init, before
// any adapter is registered. Unlike the rest of the tree, where a logger
// is threaded through each constructor, this one stays a package var
// because Declare/PersistCreated/MarkFailed/PersistObservedStatus are
// themselves package functions, not methods on a struct an adapter could
// thread a logger into individually.
var (
	store             *repository.Store
	secrets           *vault.SecretService
	log               *logrus.Entry
	objectStore       *objectstore.Broker
	objectStoreBucket string
	mesh              vpn.Client
	envCfg            CommonEnvConfig
)

// CommonEnvConfig carries the server/auth URLs BuildCommonEnv stamps into
// every workload's environment, sourced from config.AppConfig. These are
// control-plane-wide, not per-container, so Init sets them once alongside
// the rest of the shared dependencies.
type CommonEnvConfig struct {
	APIKey                string
	NebulousServerURL     string
	OrignServerURL        string
	AgentseaAuthServerURL string
}

// Init wires the shared Store, SecretService, and logger every adapter's
// Declare/PersistCreated/MarkFailed/PersistObservedStatus call, plus the
// optional object-store broker and mesh VPN client ProvisionSideEnv uses.
// main.go calls this once during startup, before registering adapters.
// broker and meshClient may be nil: both side-channels are best-effort,
// and adapters degrade gracefully when VPN or object-store are unavailable.
func Init(s *repository.Store, sv *vault.SecretService, logger *logrus.Logger, broker *objectstore.Broker, bucket string, meshClient vpn.Client, ce CommonEnvConfig) {
	store = s
	secrets = sv
	log = logger.WithField("component", "platform")
	objectStore = broker
	objectStoreBucket = bucket
	mesh = meshClient
	envCfg = ce
}

// BuildCommonEnv produces the baseline environment every workload
// receives regardless of adapter. Adapter-specific env (accelerator
// vendor vars, object-store credentials) is layered on top by the caller.
func BuildCommonEnv(record *models.Container) map[string]string {
	env := map[string]string{
		"NEBU_NAMESPACE":       record.Namespace,
		"NEBU_NAME":            record.Name,
		"NEBU_CONTAINER_ID":    record.ID,
		"NEBU_DATE":            record.CreatedAt.UTC().Format(time.RFC3339),
		"HF_HOME":              "/nebu/cache/huggingface",
		"NEBU_API_KEY":         envCfg.APIKey,
		"NEBULOUS_SERVER":      envCfg.NebulousServerURL,
		"ORIGN_SERVER":         envCfg.OrignServerURL,
		"AGENTSEA_AUTH_SERVER": envCfg.AgentseaAuthServerURL,
	}
	if record.CreatedBy != nil {
		env["AGENTSEA_API_KEY"] = models.AgentKeySecretName(record.ID)
	}
	env["NAMESPACE_VOLUME_URI"] = fmt.Sprintf("s3://nebulous/%s/", record.Namespace)
	env["NAME_VOLUME_URI"] = fmt.Sprintf("s3://nebulous/%s/%s/", record.Namespace, record.Name)
	env["ROOT_VOLUME_URI"] = "s3://nebulous/"
	return env
}

// DeclareContainer validates spec, allocates an id, and persists the
// container row in status=Defined. It does not provision anything
// external; that is Reconcile's job once the record reaches the
// reconciler's NeedsStart set, keeping "record the intent" and "make it
// real" separate.
func DeclareContainer(spec ContainerSpec, owner, platformName string) (*models.Container, error) {
	if spec.Namespace == "" || spec.Name == "" {
		return nil, apierrors.NewValidationError("namespace/name", "both are required")
	}
	if spec.Image == "" {
		return nil, apierrors.NewValidationError("image", "is required")
	}

	envJSON, err := models.NewJSONB(spec.Env)
	if err != nil {
		return nil, err
	}
	volumesJSON, err := models.NewJSONB(spec.Volumes)
	if err != nil {
		return nil, err
	}
	acceleratorsJSON, err := models.NewJSONB(spec.Accelerators)
	if err != nil {
		return nil, err
	}
	labelsJSON, err := models.NewJSONB(spec.Labels)
	if err != nil {
		return nil, err
	}
	metersJSON, err := models.NewJSONB(spec.Meters)
	if err != nil {
		return nil, err
	}
	portsJSON, err := models.NewJSONB(spec.Ports)
	if err != nil {
		return nil, err
	}
	sshKeysJSON, err := models.NewJSONB(spec.SSHKeys)
	if err != nil {
		return nil, err
	}
	platformsJSON, err := models.NewJSONB(spec.Platforms)
	if err != nil {
		return nil, err
	}
	resourcesJSON, err := models.NewJSONB(spec.Resources)
	if err != nil {
		return nil, err
	}

	statusDoc, err := models.NewJSONB(models.ContainerStatusDoc{Status: string(statemachine.Defined)})
	if err != nil {
		return nil, err
	}

	restart := spec.Restart
	if restart == "" {
		restart = "Always"
	}

	record := &models.Container{
		ID:           models.NewContainerID(),
		Namespace:    spec.Namespace,
		Name:         spec.Name,
		FullName:     spec.Namespace + "/" + spec.Name,
		Owner:        owner,
		Image:        spec.Image,
		Env:          envJSON,
		Volumes:      volumesJSON,
		Accelerators: acceleratorsJSON,
		Status:       statusDoc,
		Platform:     &platformName,
		Platforms:    platformsJSON,
		Labels:       labelsJSON,
		Meters:       metersJSON,
		Ports:        portsJSON,
		SSHKeys:      sshKeysJSON,
		Resources:    resourcesJSON,
		Restart:      restart,
		CreatedBy:    &owner,
	}
	if spec.Resources.MinCPU != "" {
		record.CPURequest = &spec.Resources.MinCPU
	}
	if spec.Resources.MinMemory != "" {
		record.MemoryRequest = &spec.Resources.MinMemory
	}
	if spec.Queue != "" {
		record.Queue = &spec.Queue
	}
	if spec.Command != "" {
		record.Command = &spec.Command
	}
	if spec.Args != "" {
		record.Args = &spec.Args
	}
	if spec.Timeout != "" {
		record.Timeout = &spec.Timeout
	}
	if spec.ProxyPort != 0 {
		record.ProxyPort = &spec.ProxyPort
	}
	if spec.HealthCheck != nil {
		hc, err := models.NewJSONB(spec.HealthCheck)
		if err != nil {
			return nil, err
		}
		record.HealthCheck = hc
	}
	if spec.Authz != nil {
		az, err := models.NewJSONB(spec.Authz)
		if err != nil {
			return nil, err
		}
		record.Authz = az
	}

	if err := store.Containers.Insert(context.Background(), record); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"container_id": record.ID, "platform": platformName, "owner": owner}).Info("declared container")

	if secrets != nil {
		if _, err := secrets.Create(context.Background(), spec.Namespace,
			models.AgentKeySecretName(record.ID), owner, owner,
			[]byte(models.NewContainerID()), nil); err != nil {
			return nil, apierrors.NewFatalError("platform.declare_agent_key", err)
		}
		if len(spec.SSHKeys) > 0 {
			if err := mintSSHKeypairSecrets(spec.Namespace, record.ID, owner); err != nil {
				return nil, err
			}
		}
	}

	return record, nil
}

// mintSSHKeypairSecrets generates a fresh ed25519 keypair and persists it
// as the two secrets a container's ssh_keys declaration expects, per the
// original's store_ssh_keypair.
func mintSSHKeypairSecrets(namespace, containerID, owner string) error {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return apierrors.NewFatalError("platform.generate_ssh_keypair", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return apierrors.NewFatalError("platform.generate_ssh_keypair", err)
	}
	privatePEM := pem.EncodeToMemory(block)

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return apierrors.NewFatalError("platform.generate_ssh_keypair", err)
	}
	publicLine := ssh.MarshalAuthorizedKey(sshPub)

	if _, err := secrets.Create(context.Background(), namespace,
		models.SSHPrivateKeySecretName(containerID), owner, owner, privatePEM, nil); err != nil {
		return apierrors.NewFatalError("platform.declare_ssh_keypair", err)
	}
	if _, err := secrets.Create(context.Background(), namespace,
		models.SSHPublicKeySecretName(containerID), owner, owner, publicLine, nil); err != nil {
		return apierrors.NewFatalError("platform.declare_ssh_keypair", err)
	}
	return nil
}

// ProvisionSideEnv mints the scoped object-store credential and mesh VPN
// auth key for record and returns them as environment variables, merged
// on top of BuildCommonEnv's output by the caller. Either side is a
// silent no-op when its broker/client wasn't configured (spec's
// ObjectStore/VPN config is optional outside of a real deployment), and a
// mint failure is logged and swallowed rather than failing Reconcile:
// a workload that can't reach the object store or mesh yet still gets to
// run, it just can't sync volumes or accept inbound mesh traffic until
// the next reconcile retries.
func ProvisionSideEnv(ctx context.Context, record *models.Container) map[string]string {
	env := map[string]string{}

	if objectStore != nil {
		cred, err := objectStore.MintScopedCredential(ctx, objectStoreBucket, record.Namespace, record.ID)
		if err != nil {
			log.WithError(err).WithField("container_id", record.ID).Warn("failed to mint object store credential")
		} else {
			for k, v := range cred.Env() {
				env[k] = v
			}
		}
	}

	if mesh != nil {
		key, err := vpn.PrepareDeviceKey(ctx, mesh, record.ID)
		if err != nil {
			log.WithError(err).WithField("container_id", record.ID).Warn("failed to mint mesh auth key")
		} else {
			env["TS_AUTHKEY"] = key.Key
			env["NEBU_VPN_HOSTNAME"] = vpn.DeviceName(record.ID)
		}
	}

	return env
}

// PersistCreated records the Creating->Created transition: the adapter's
// provider-side resource now exists, identified by resourceName (and
// optionally resourceNamespace). Of statusExtra only the "accelerator"
// string is copied into the status document; other keys are ignored.
func PersistCreated(ctx context.Context, record *models.Container, resourceName, resourceNamespace string, statusExtra map[string]interface{}) error {
	if err := store.Containers.UpdateResourceName(ctx, record.ID, resourceName, resourceNamespace); err != nil {
		return err
	}
	record.ResourceName = &resourceName

	patch := models.ContainerStatusDoc{Status: string(statemachine.Created)}
	if v, ok := statusExtra["accelerator"].(string); ok {
		patch.Accelerator = v
	}
	log.WithFields(logrus.Fields{"container_id": record.ID, "resource_name": resourceName}).Info("resource created")
	return store.Containers.UpdateStatus(ctx, record.ID, patch)
}

// MarkFailed transitions record to Failed with message, a terminal write
// that UpdateStatus's merge logic will refuse to ever walk back.
func MarkFailed(ctx context.Context, record *models.Container, message string) error {
	log.WithFields(logrus.Fields{"container_id": record.ID, "reason": message}).Warn("marking container failed")
	if err := store.Containers.UpdateStatus(ctx, record.ID, models.ContainerStatusDoc{
		Status:  string(statemachine.Failed),
		Message: message,
	}); err != nil {
		return err
	}
	doc, _ := record.ParseStatus()
	doc.Status = string(statemachine.Failed)
	doc.Message = message
	record.Status = models.MustNewJSONB(doc)
	return nil
}

// MarkReady flips the status document's ready flag without touching
// status itself, for adapters that observe readiness (e.g. a completed
// SSH bootstrap) independently of the state-machine status.
func MarkReady(ctx context.Context, record *models.Container) error {
	return store.Containers.UpdateStatus(ctx, record.ID, models.ContainerStatusDoc{Ready: true})
}

// PersistObservedStatus is the watch-loop's write path: it folds a newly
// observed provider status and cost-per-hour reading into the status
// document without disturbing fields the adapter didn't just observe.
func PersistObservedStatus(ctx context.Context, record *models.Container, newStatus statemachine.ContainerStatus, costPerHr float64) error {
	if costPerHr > 0 {
		if err := store.Containers.UpdateResourceCostPerHr(ctx, record.ID, costPerHr); err != nil {
			return err
		}
	}
	patch := models.ContainerStatusDoc{Status: string(newStatus)}
	if costPerHr > 0 {
		patch.CostPerHr = &costPerHr
	}
	return store.Containers.UpdateStatus(ctx, record.ID, patch)
}

// UpdateResourceNamespace persists which shared node a container has been
// assigned to before its own resource_name (the workload identifier on
// that node) is known, for adapters doing two-phase placement onto a node
// that isn't reachable yet.
func UpdateResourceNamespace(ctx context.Context, record *models.Container, resourceNamespace string) error {
	if err := store.Containers.UpdateContainerFields(ctx, record.ID, map[string]interface{}{
		"resource_namespace": resourceNamespace,
	}); err != nil {
		return err
	}
	record.ResourceNamespace = &resourceNamespace
	return nil
}

// CountActiveOnNode returns how many containers in a non-terminal status
// currently have resourceNamespace as their assigned node, for adapters
// that place several workloads on one shared host and must know whether
// it is safe to tear the node down.
func CountActiveOnNode(ctx context.Context, resourceNamespace string) (int, error) {
	count, err := store.Containers.CountActiveByResourceNamespace(ctx, resourceNamespace)
	return int(count), err
}

// deleteSecretIfExists removes the namespace/name secret, tolerating its
// absence: every side-resource cleanup path here must be safe to call
// more than once and safe to call when Declare's corresponding create
// step never ran or already failed.
func deleteSecretIfExists(ctx context.Context, namespace, name string) error {
	secret, err := store.Secrets.FindByNamespaceName(ctx, namespace, name)
	if err != nil {
		if _, ok := apierrors.IsNotFoundError(err); ok {
			return nil
		}
		return err
	}
	return store.Secrets.Delete(ctx, secret.ID)
}

// DeleteSideResources removes every side-resource Declare/ProvisionSideEnv
// may have created for record: the agent-key secret, the SSH keypair
// secrets when ssh_keys was set, and the mesh device. Each removal is
// idempotent, so this is safe to call from both the admin delete path and
// an adapter's own self-delete path.
func DeleteSideResources(ctx context.Context, record *models.Container) error {
	if secrets != nil {
		if err := deleteSecretIfExists(ctx, record.Namespace, models.AgentKeySecretName(record.ID)); err != nil {
			return fmt.Errorf("platform: delete agent key secret for %s: %w", record.ID, err)
		}
		var sshKeys []models.SSHKey
		_ = record.SSHKeys.Unmarshal(&sshKeys)
		if len(sshKeys) > 0 {
			if err := deleteSecretIfExists(ctx, record.Namespace, models.SSHPrivateKeySecretName(record.ID)); err != nil {
				return fmt.Errorf("platform: delete ssh private key secret for %s: %w", record.ID, err)
			}
			if err := deleteSecretIfExists(ctx, record.Namespace, models.SSHPublicKeySecretName(record.ID)); err != nil {
				return fmt.Errorf("platform: delete ssh public key secret for %s: %w", record.ID, err)
			}
		}
	}

	if mesh != nil {
		if _, err := mesh.RemoveDeviceByName(ctx, vpn.DeviceName(record.ID)); err != nil {
			if _, ok := apierrors.IsNotFoundError(err); !ok {
				return fmt.Errorf("platform: remove mesh device for %s: %w", record.ID, err)
			}
		}
	}

	return nil
}

// DeleteContainer cleans up record's side-resources and removes its store
// row. Callers handle the adapter-specific external resource (instance,
// pod, job) separately before calling this; a side-resource cleanup
// failure is logged and does not block removing the record, since a
// leaked secret or mesh device is recoverable while a record stuck
// undeletable is not.
func DeleteContainer(ctx context.Context, record *models.Container) error {
	if err := DeleteSideResources(ctx, record); err != nil {
		log.WithError(err).WithField("container_id", record.ID).Warn("failed to clean up side resources")
	}
	return store.Containers.Delete(ctx, record.ID)
}
