// Package iaas implements platform.Adapter with two-phase placement: first
// look for an existing tagged node with free capacity, and only provision
// a fresh compute instance (EC2 today; Provider is a config switch point
// for future providers) when none has room. Once a node is reachable, SSH
// in and run the workload as a Docker container. The SSH+docker-run half
// reuses shellconn the same way the docker adapter does.
package iaas

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"nebulous/internal/apierrors"
	"nebulous/internal/config"
	"nebulous/internal/models"
	"nebulous/internal/platform"
	"nebulous/internal/platform/shellconn"
	"nebulous/internal/statemachine"
)

// nodeTagKey marks an EC2 instance as a shareable compute node this
// adapter manages, distinguishing it from any other instance in the
// account. maxContainersPerNode caps how many workloads are packed onto
// one node; capacity is tracked by container count rather than parsed
// CPU/memory quantities, a deliberate simplification over summing
// requested resource quantities.
const (
	nodeTagKey           = "nebu-node"
	maxContainersPerNode = 4
	sshPort              = 22
	doneMarkerPath       = "/done.txt"
)

// Adapter provisions (or reuses) a node per container and then runs the
// workload over SSH via Docker.
type Adapter struct {
	ec2Client      *ec2.Client
	defaultSSHUser string
	sshPrivateKey  string
	imageID        string
}

func New(ctx context.Context, cfg config.IaaSConfig) (*Adapter, error) {
	if cfg.DefaultSSHUser == "" {
		return nil, fmt.Errorf("iaas: IAAS_DEFAULT_SSH_USER is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("iaas: load aws config: %w", err)
	}

	return &Adapter{
		ec2Client:      ec2.NewFromConfig(awsCfg),
		defaultSSHUser: cfg.DefaultSSHUser,
		sshPrivateKey:  cfg.SSHPrivateKeyPEM,
		imageID:        cfg.ImageID,
	}, nil
}

func (a *Adapter) Name() string { return "iaas" }

func (a *Adapter) Status(ctx context.Context) platform.Status {
	if _, err := a.ec2Client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{}); err != nil {
		return platform.Unavailable
	}
	return platform.Ready
}

// AcceleratorMap translates vendor-neutral accelerator names to EC2
// instance-type families; selectInstanceType below picks a specific size.
func (a *Adapter) AcceleratorMap() map[string]string {
	return map[string]string{
		"A100": "p4d",
		"H100": "p5",
		"T4":   "g4dn",
		"A10":  "g5",
		"L40":  "g6",
	}
}

func (a *Adapter) CommonEnv(record *models.Container) map[string]string {
	return platform.BuildCommonEnv(record)
}

func (a *Adapter) Declare(ctx context.Context, spec platform.ContainerSpec, owner, apiKey string) (*models.Container, error) {
	return platform.DeclareContainer(spec, owner, a.Name())
}

func containerName(record *models.Container) string {
	return "nebu-" + strings.ToLower(strings.ReplaceAll(record.ID, "_", "-"))
}

func dockerRestartPolicy(restart string) string {
	switch restart {
	case "Never":
		return "no"
	case "OnFailure":
		return "on-failure"
	default:
		return "unless-stopped"
	}
}

func (a *Adapter) Reconcile(ctx context.Context, record *models.Container) error {
	status, err := record.ParseStatus()
	if err != nil {
		return apierrors.NewFatalError("iaas.parse_status", err)
	}
	current := statemachine.ContainerStatus(status.Status)
	if current.IsTerminal() {
		return nil
	}

	if current.NeedsStart() {
		return a.provision(ctx, record)
	}
	if current.NeedsWatch() {
		return a.pollOnce(ctx, record)
	}
	return nil
}

// provision is phase one of two-phase placement: reuse an existing tagged
// node with free capacity if one is Running, bootstrapping the workload
// onto it immediately since it's already reachable; otherwise launch a
// fresh instance and leave the workload bootstrap for the next watch tick,
// once the new node is up.
func (a *Adapter) provision(ctx context.Context, record *models.Container) error {
	nodeID, publicIP, err := a.findNodeWithCapacity(ctx)
	if err != nil {
		return err
	}
	if nodeID != "" {
		return a.bootstrapAndPersist(ctx, record, nodeID, publicIP)
	}

	var accelerators []string
	_ = record.Accelerators.Unmarshal(&accelerators)
	instanceType := a.selectInstanceType(accelerators)

	out, err := a.ec2Client.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:      aws.String(a.imageID),
		InstanceType: ec2types.InstanceType(instanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		TagSpecifications: []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeInstance,
				Tags: []ec2types.Tag{
					{Key: aws.String(nodeTagKey), Value: aws.String("true")},
					{Key: aws.String("Name"), Value: aws.String(record.FullName)},
				},
			},
		},
	})
	if err != nil {
		return apierrors.NewTransientError("iaas.run_instances", err)
	}
	if len(out.Instances) == 0 {
		return apierrors.NewTransientError("iaas.run_instances", fmt.Errorf("no instance returned"))
	}

	instanceID := aws.ToString(out.Instances[0].InstanceId)
	if err := platform.UpdateResourceNamespace(ctx, record, instanceID); err != nil {
		return err
	}
	return platform.PersistObservedStatus(ctx, record, statemachine.Creating, 0)
}

// findNodeWithCapacity scans instances tagged as a node this adapter
// manages, in Running state, and returns the first whose currently
// assigned container count is under maxContainersPerNode. Returns "", "",
// nil when none qualify, which is not an error: phase two then provisions
// a new node.
func (a *Adapter) findNodeWithCapacity(ctx context.Context) (nodeID, publicIP string, err error) {
	out, err := a.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:" + nodeTagKey), Values: []string{"true"}},
			{Name: aws.String("instance-state-name"), Values: []string{"running"}},
		},
	})
	if err != nil {
		return "", "", apierrors.NewTransientError("iaas.describe_instances", err)
	}

	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			id := aws.ToString(inst.InstanceId)
			ip := aws.ToString(inst.PublicIpAddress)
			if id == "" || ip == "" {
				continue
			}
			used, err := platform.CountActiveOnNode(ctx, id)
			if err != nil {
				return "", "", err
			}
			if used < maxContainersPerNode {
				return id, ip, nil
			}
		}
	}
	return "", "", nil
}

// selectInstanceType picks the smallest size in the family matching the
// first recognized accelerator, or a plain CPU instance when none was
// requested.
func (a *Adapter) selectInstanceType(accelerators []string) string {
	for _, want := range accelerators {
		if family, ok := a.AcceleratorMap()[want]; ok {
			return family + ".xlarge"
		}
	}
	return "m5.large"
}

// bootstrapAndPersist SSHes into a node already known to be reachable and
// launches the workload as a named Docker container, then persists
// resource_name=container name / resource_namespace=node id together with
// status=Created.
func (a *Adapter) bootstrapAndPersist(ctx context.Context, record *models.Container, nodeID, publicIP string) error {
	conn := shellconn.NewSSHConnection(publicIP, sshPort, a.defaultSSHUser, a.sshPrivateKey)
	name := containerName(record)

	env := a.CommonEnv(record)
	for k, v := range platform.ProvisionSideEnv(ctx, record) {
		env[k] = v
	}
	args := []string{"run", "-d", "--name", name, "--restart", dockerRestartPolicy(record.Restart)}
	for k, v := range env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, record.Image)
	if record.Command != nil && *record.Command != "" {
		args = append(args, strings.Fields(*record.Command)...)
	}

	parts := make([]string, len(args))
	for i, ag := range args {
		parts[i] = platform.QuoteShellArg(ag)
	}
	command := "docker " + strings.Join(parts, " ")

	bootstrapCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if _, err := conn.RunCommand(bootstrapCtx, command); err != nil {
		return apierrors.NewTransientError("iaas.bootstrap", err)
	}

	return platform.PersistCreated(ctx, record, name, nodeID, nil)
}

func (a *Adapter) pollOnce(ctx context.Context, record *models.Container) error {
	if record.ResourceNamespace == nil || *record.ResourceNamespace == "" {
		return apierrors.NewFatalError("iaas.poll", fmt.Errorf("missing node assignment for %s", record.ID))
	}
	nodeID := *record.ResourceNamespace

	out, err := a.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{nodeID},
	})
	if err != nil {
		return apierrors.NewTransientError("iaas.describe_instances", err)
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return platform.MarkFailed(ctx, record, "instance no longer exists")
	}
	inst := out.Reservations[0].Instances[0]

	switch inst.State.Name {
	case ec2types.InstanceStateNameTerminated, ec2types.InstanceStateNameShuttingDown:
		return platform.MarkFailed(ctx, record, "instance terminated")
	case ec2types.InstanceStateNameStopped:
		return platform.PersistObservedStatus(ctx, record, statemachine.Stopped, 0)
	case ec2types.InstanceStateNamePending:
		return platform.PersistObservedStatus(ctx, record, statemachine.Creating, 0)
	}

	publicIP := aws.ToString(inst.PublicIpAddress)
	if publicIP == "" {
		// Instance is running but AWS hasn't assigned a public IP yet;
		// stay in Creating (a NeedsWatch status) rather than Pending so the
		// next reconcile polls again instead of re-provisioning.
		return platform.PersistObservedStatus(ctx, record, statemachine.Creating, 0)
	}

	if record.ResourceName == nil || *record.ResourceName == "" {
		// Node is running and reachable but the workload hasn't been
		// bootstrapped onto it yet (phase two: we just created this node).
		return a.bootstrapAndPersist(ctx, record, nodeID, publicIP)
	}

	if record.Restart == "Never" {
		done, err := a.probeDone(ctx, publicIP)
		if err != nil {
			return err
		}
		if done {
			return a.selfDelete(ctx, record, nodeID, publicIP)
		}
	}

	status, err := record.ParseStatus()
	if err != nil {
		return apierrors.NewFatalError("iaas.parse_status", err)
	}
	if !status.Ready {
		if err := platform.MarkReady(ctx, record); err != nil {
			return err
		}
	}

	return platform.PersistObservedStatus(ctx, record, statemachine.Running, 0)
}

// probeDone runs a remote SSH check for the completion marker a
// restart=Never workload is expected to create when it finishes.
// Connection errors and a missing file both surface as "not done yet":
// there is no reliable way to tell them apart over this single command,
// so a transient SSH hiccup just costs one extra poll rather than failing
// reconciliation.
func (a *Adapter) probeDone(ctx context.Context, publicIP string) (bool, error) {
	conn := shellconn.NewSSHConnection(publicIP, sshPort, a.defaultSSHUser, a.sshPrivateKey)
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := conn.RunCommand(probeCtx, "test -f "+doneMarkerPath); err != nil {
		return false, nil
	}
	return true, nil
}

// selfDelete drives the restart=Never completion contract: the control
// plane, not the workload, observes /done.txt and transitions the record
// to Completed, removes the docker container from its node, releases the
// node itself if no other container is still assigned to it, and deletes
// the record and its side-resources.
func (a *Adapter) selfDelete(ctx context.Context, record *models.Container, nodeID, publicIP string) error {
	if err := platform.PersistObservedStatus(ctx, record, statemachine.Completed, 0); err != nil {
		return err
	}

	if record.ResourceName != nil && *record.ResourceName != "" {
		conn := shellconn.NewSSHConnection(publicIP, sshPort, a.defaultSSHUser, a.sshPrivateKey)
		_, _ = conn.RunCommand(ctx, "docker rm -f "+platform.QuoteShellArg(*record.ResourceName))
	}

	if err := a.releaseNodeIfIdle(ctx, nodeID); err != nil {
		return err
	}

	return platform.DeleteContainer(ctx, record)
}

// releaseNodeIfIdle terminates nodeID once no active container is still
// assigned to it. Called after the caller has already moved its own
// record to a terminal status, so an idle node counts zero active
// tenants.
func (a *Adapter) releaseNodeIfIdle(ctx context.Context, nodeID string) error {
	remaining, err := platform.CountActiveOnNode(ctx, nodeID)
	if err != nil {
		return apierrors.NewTransientError("iaas.count_node_tenants", err)
	}
	if remaining > 0 {
		return nil
	}
	if _, err := a.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{nodeID}}); err != nil {
		return apierrors.NewTransientError("iaas.terminate", err)
	}
	return nil
}

func (a *Adapter) Logs(ctx context.Context, record *models.Container) (string, error) {
	publicIP, err := a.publicIP(ctx, record)
	if err != nil {
		return "", err
	}
	conn := shellconn.NewSSHConnection(publicIP, sshPort, a.defaultSSHUser, a.sshPrivateKey)
	out, err := conn.RunCommand(ctx, "docker logs --tail 1000 "+platform.QuoteShellArg(*record.ResourceName))
	if err != nil {
		return "", apierrors.NewTransientError("iaas.logs", err)
	}
	return out, nil
}

func (a *Adapter) Exec(ctx context.Context, record *models.Container, command string) (string, error) {
	publicIP, err := a.publicIP(ctx, record)
	if err != nil {
		return "", err
	}
	conn := shellconn.NewSSHConnection(publicIP, sshPort, a.defaultSSHUser, a.sshPrivateKey)
	out, err := conn.RunCommand(ctx, "docker exec "+platform.QuoteShellArg(*record.ResourceName)+" "+command)
	if err != nil {
		return "", apierrors.NewTransientError("iaas.exec", err)
	}
	return out, nil
}

// publicIP resolves the current public IP of record's node, requiring
// that both the node assignment and the workload's own resource_name are
// already known.
func (a *Adapter) publicIP(ctx context.Context, record *models.Container) (string, error) {
	if record.ResourceNamespace == nil || *record.ResourceNamespace == "" || record.ResourceName == nil {
		return "", apierrors.NewNotFoundError("instance", record.ID)
	}
	out, err := a.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{*record.ResourceNamespace},
	})
	if err != nil {
		return "", apierrors.NewTransientError("iaas.describe_instances", err)
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return "", apierrors.NewNotFoundError("instance", *record.ResourceNamespace)
	}
	ip := aws.ToString(out.Reservations[0].Instances[0].PublicIpAddress)
	if ip == "" {
		return "", apierrors.NewTransientError("iaas.public_ip", fmt.Errorf("instance has no public ip yet"))
	}
	return ip, nil
}

// Delete removes record's docker container from its node (best effort),
// then terminates the node itself only if record was the last active
// container assigned to it; other workloads sharing the node are left
// running.
func (a *Adapter) Delete(ctx context.Context, record *models.Container) error {
	if record.ResourceNamespace == nil || *record.ResourceNamespace == "" {
		return nil
	}
	nodeID := *record.ResourceNamespace

	if record.ResourceName != nil && *record.ResourceName != "" {
		if publicIP, err := a.nodePublicIP(ctx, nodeID); err == nil && publicIP != "" {
			conn := shellconn.NewSSHConnection(publicIP, sshPort, a.defaultSSHUser, a.sshPrivateKey)
			_, _ = conn.RunCommand(ctx, "docker rm -f "+platform.QuoteShellArg(*record.ResourceName))
		}
	}

	// record itself is still in an active status at this point (the API
	// handler deletes the store row after Delete returns), so "only this
	// one left" shows up as a count of 1, not 0.
	remaining, err := platform.CountActiveOnNode(ctx, nodeID)
	if err != nil {
		return apierrors.NewTransientError("iaas.count_node_tenants", err)
	}
	if remaining > 1 {
		return nil
	}
	if _, err := a.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{nodeID}}); err != nil {
		return apierrors.NewTransientError("iaas.terminate", err)
	}
	return nil
}

func (a *Adapter) nodePublicIP(ctx context.Context, nodeID string) (string, error) {
	out, err := a.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{nodeID}})
	if err != nil {
		return "", err
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return "", apierrors.NewNotFoundError("instance", nodeID)
	}
	return aws.ToString(out.Reservations[0].Instances[0].PublicIpAddress), nil
}
