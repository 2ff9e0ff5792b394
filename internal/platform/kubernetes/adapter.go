// Package kubernetes implements platform.Adapter against a Kubernetes
// cluster, scheduling each container as a single-pod batchv1.Job with
// restartPolicy=Never and backoffLimit=0 — the reconciler owns restarts,
// not Kubernetes — and polling Job status for state transitions. The
// client is in-cluster by default, with explicit error wrapping around
// construction failures.
package kubernetes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"nebulous/internal/apierrors"
	"nebulous/internal/config"
	"nebulous/internal/models"
	"nebulous/internal/platform"
	"nebulous/internal/statemachine"
)

// Adapter schedules workloads as Kubernetes Jobs.
type Adapter struct {
	clientset *kubernetes.Clientset
	namespace string
}

func New(cfg config.KubernetesConfig) (*Adapter, error) {
	restCfg, err := loadRestConfig(cfg.KubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("kubernetes: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("kubernetes: create clientset: %w", err)
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "default"
	}
	return &Adapter{clientset: clientset, namespace: ns}, nil
}

func loadRestConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		cfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("in-cluster config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig %s: %w", kubeconfigPath, err)
	}
	return cfg, nil
}

func (a *Adapter) Name() string { return "kubernetes" }

func (a *Adapter) Status(ctx context.Context) platform.Status {
	if _, err := a.clientset.CoreV1().Namespaces().Get(ctx, a.namespace, metav1.GetOptions{}); err != nil {
		return platform.Unavailable
	}
	return platform.Ready
}

// AcceleratorMap translates vendor-neutral accelerator names to the GPU
// product label Kubernetes node selectors use, following the common
// GKE/EKS label convention.
func (a *Adapter) AcceleratorMap() map[string]string {
	return map[string]string{
		"A100": "nvidia-tesla-a100",
		"H100": "nvidia-h100-80gb",
		"T4":   "nvidia-tesla-t4",
		"A10":  "nvidia-a10g",
		"L40":  "nvidia-l40",
	}
}

func (a *Adapter) CommonEnv(record *models.Container) map[string]string {
	return platform.BuildCommonEnv(record)
}

func (a *Adapter) Declare(ctx context.Context, spec platform.ContainerSpec, owner, apiKey string) (*models.Container, error) {
	return platform.DeclareContainer(spec, owner, a.Name())
}

func jobName(record *models.Container) string {
	return "nebu-" + strings.ToLower(strings.ReplaceAll(record.ID, "_", "-"))
}

func (a *Adapter) Reconcile(ctx context.Context, record *models.Container) error {
	status, err := record.ParseStatus()
	if err != nil {
		return apierrors.NewFatalError("kubernetes.parse_status", err)
	}
	current := statemachine.ContainerStatus(status.Status)
	if current.IsTerminal() {
		return nil
	}

	if current.NeedsStart() {
		return a.create(ctx, record)
	}
	if current.NeedsWatch() {
		return a.pollOnce(ctx, record)
	}
	return nil
}

func (a *Adapter) create(ctx context.Context, record *models.Container) error {
	name := jobName(record)

	var accelerators []string
	_ = record.Accelerators.Unmarshal(&accelerators)
	gpuCount := 0
	if len(accelerators) > 0 {
		gpuCount = 1
	}

	var envVars []models.EnvVar
	_ = record.Env.Unmarshal(&envVars)

	commonEnv := a.CommonEnv(record)
	for k, v := range platform.ProvisionSideEnv(ctx, record) {
		commonEnv[k] = v
	}
	env := make([]corev1.EnvVar, 0, len(envVars)+len(commonEnv))
	for k, v := range commonEnv {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}
	for _, e := range envVars {
		env = append(env, corev1.EnvVar{Name: e.Key, Value: e.Value})
	}

	var command []string
	if record.Command != nil && *record.Command != "" {
		command = strings.Fields(*record.Command)
	}

	resources := corev1.ResourceRequirements{}
	if gpuCount > 0 {
		resources.Limits = corev1.ResourceList{
			"nvidia.com/gpu": resource.MustParse(strconv.Itoa(gpuCount)),
		}
	}
	if record.CPURequest != nil && *record.CPURequest != "" {
		if resources.Requests == nil {
			resources.Requests = corev1.ResourceList{}
		}
		resources.Requests[corev1.ResourceCPU] = resource.MustParse(*record.CPURequest)
	}
	if record.MemoryRequest != nil && *record.MemoryRequest != "" {
		if resources.Requests == nil {
			resources.Requests = corev1.ResourceList{}
		}
		resources.Requests[corev1.ResourceMemory] = resource.MustParse(*record.MemoryRequest)
	}

	nodeSelector := map[string]string{}
	if gpuCount > 0 {
		nodeSelector["role"] = "gpu"
		for _, want := range accelerators {
			if label, ok := a.AcceleratorMap()[want]; ok {
				nodeSelector["gpu-type"] = label
				break
			}
		}
	}

	volumeMounts := []corev1.VolumeMount{
		{Name: "huggingface-cache", MountPath: "/huggingface"},
		{Name: "nebu-pvc", MountPath: "/nebu"},
	}
	volumes := []corev1.Volume{
		{
			Name: "huggingface-cache",
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: "huggingface-cache-pvc"},
			},
		},
		{
			Name: "nebu-pvc",
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: "nebu-pvc"},
			},
		},
	}

	backoffLimit := int32(0)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: a.namespace,
			Labels:    map[string]string{"nebu-container-id": record.ID},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": name}},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					NodeSelector:  nodeSelector,
					Volumes:       volumes,
					Containers: []corev1.Container{
						{
							Name:         name,
							Image:        record.Image,
							Command:      command,
							Env:          env,
							Resources:    resources,
							VolumeMounts: volumeMounts,
							Ports:        []corev1.ContainerPort{{ContainerPort: 8000}},
						},
					},
				},
			},
		},
	}

	created, err := a.clientset.BatchV1().Jobs(a.namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		if apierrs.IsAlreadyExists(err) {
			return platform.PersistCreated(ctx, record, name, a.namespace, nil)
		}
		return apierrors.NewTransientError("kubernetes.create_job", err)
	}

	return platform.PersistCreated(ctx, record, created.Name, created.Namespace, nil)
}

// pollOnce reads the Job's status, mirroring watch_job_status: a
// completion_time with succeeded>0 is Completed, any failed count is
// Failed, an active count is Running, otherwise the job is still Pending.
func (a *Adapter) pollOnce(ctx context.Context, record *models.Container) error {
	if record.ResourceName == nil {
		return apierrors.NewFatalError("kubernetes.poll", fmt.Errorf("missing resource_name for %s", record.ID))
	}
	job, err := a.clientset.BatchV1().Jobs(a.namespace).Get(ctx, *record.ResourceName, metav1.GetOptions{})
	if err != nil {
		if apierrs.IsNotFound(err) {
			return platform.MarkFailed(ctx, record, "Job no longer exists")
		}
		return apierrors.NewTransientError("kubernetes.get_job", err)
	}

	newStatus := mapJobStatus(job)
	return platform.PersistObservedStatus(ctx, record, newStatus, 0)
}

func mapJobStatus(job *batchv1.Job) statemachine.ContainerStatus {
	st := job.Status
	if st.CompletionTime != nil {
		if st.Succeeded > 0 {
			return statemachine.Completed
		}
		return statemachine.Failed
	}
	if st.Failed > 0 {
		return statemachine.Failed
	}
	if st.Active > 0 {
		return statemachine.Running
	}
	return statemachine.Pending
}

func (a *Adapter) Logs(ctx context.Context, record *models.Container) (string, error) {
	pods, err := a.podsForJob(ctx, record)
	if err != nil {
		return "", err
	}
	if len(pods) == 0 {
		return "", apierrors.NewNotFoundError("pod", "for job "+derefOrEmpty(record.ResourceName))
	}
	req := a.clientset.CoreV1().Pods(a.namespace).GetLogs(pods[0].Name, &corev1.PodLogOptions{TailLines: int64Ptr(500)})
	raw, err := req.DoRaw(ctx)
	if err != nil {
		return "", apierrors.NewTransientError("kubernetes.logs", err)
	}
	return string(raw), nil
}

func (a *Adapter) Exec(ctx context.Context, record *models.Container, command string) (string, error) {
	return "", apierrors.NewFatalError("kubernetes.exec", fmt.Errorf("interactive exec requires a streaming client; not supported over this interface"))
}

func (a *Adapter) Delete(ctx context.Context, record *models.Container) error {
	if record.ResourceName == nil {
		return nil
	}
	propagation := metav1.DeletePropagationForeground
	err := a.clientset.BatchV1().Jobs(a.namespace).Delete(ctx, *record.ResourceName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil && !apierrs.IsNotFound(err) {
		return apierrors.NewTransientError("kubernetes.delete_job", err)
	}
	return nil
}

func (a *Adapter) podsForJob(ctx context.Context, record *models.Container) ([]corev1.Pod, error) {
	if record.ResourceName == nil {
		return nil, apierrors.NewFatalError("kubernetes.pods_for_job", fmt.Errorf("missing resource_name for %s", record.ID))
	}
	list, err := a.clientset.CoreV1().Pods(a.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "app=" + *record.ResourceName,
	})
	if err != nil {
		return nil, apierrors.NewTransientError("kubernetes.list_pods", err)
	}
	return list.Items, nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func int64Ptr(v int64) *int64 { return &v }
