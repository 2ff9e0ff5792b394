package kubernetes

import (
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"nebulous/internal/models"
	"nebulous/internal/statemachine"
)

func TestNameIsKubernetes(t *testing.T) {
	a := &Adapter{namespace: "nebulous"}
	if a.Name() != "kubernetes" {
		t.Fatalf("Name() = %q, want kubernetes", a.Name())
	}
}

func TestAcceleratorMapCoversCommonSKUs(t *testing.T) {
	a := &Adapter{}
	m := a.AcceleratorMap()
	for _, want := range []string{"A100", "H100", "T4", "A10", "L40"} {
		if _, ok := m[want]; !ok {
			t.Errorf("AcceleratorMap missing %s", want)
		}
	}
}

func TestJobNameSanitizesUnderscores(t *testing.T) {
	record := &models.Container{ID: "cont_abc_123"}
	if got := jobName(record); got != "nebu-cont-abc-123" {
		t.Fatalf("jobName = %q, want nebu-cont-abc-123", got)
	}
}

func TestMapJobStatus(t *testing.T) {
	now := metav1.NewTime(time.Unix(0, 0))
	cases := []struct {
		name string
		job  *batchv1.Job
		want statemachine.ContainerStatus
	}{
		{"completed successfully", &batchv1.Job{Status: batchv1.JobStatus{CompletionTime: &now, Succeeded: 1}}, statemachine.Completed},
		{"completion time but no successes", &batchv1.Job{Status: batchv1.JobStatus{CompletionTime: &now}}, statemachine.Failed},
		{"failed count set", &batchv1.Job{Status: batchv1.JobStatus{Failed: 1}}, statemachine.Failed},
		{"active", &batchv1.Job{Status: batchv1.JobStatus{Active: 1}}, statemachine.Running},
		{"not yet scheduled", &batchv1.Job{}, statemachine.Pending},
	}
	for _, tc := range cases {
		if got := mapJobStatus(tc.job); got != tc.want {
			t.Errorf("%s: mapJobStatus = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDerefOrEmpty(t *testing.T) {
	if got := derefOrEmpty(nil); got != "" {
		t.Errorf("derefOrEmpty(nil) = %q, want empty", got)
	}
	s := "value"
	if got := derefOrEmpty(&s); got != "value" {
		t.Errorf("derefOrEmpty = %q, want value", got)
	}
}
