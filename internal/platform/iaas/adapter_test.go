package iaas

import (
	"testing"

	"nebulous/internal/models"
)

func TestNameIsIaaS(t *testing.T) {
	a := &Adapter{}
	if a.Name() != "iaas" {
		t.Fatalf("Name() = %q, want iaas", a.Name())
	}
}

func TestIaaSDockerRestartPolicy(t *testing.T) {
	cases := map[string]string{
		"Never":     "no",
		"OnFailure": "on-failure",
		"Always":    "unless-stopped",
		"":          "unless-stopped",
	}
	for in, want := range cases {
		if got := dockerRestartPolicy(in); got != want {
			t.Errorf("dockerRestartPolicy(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIaaSContainerNameSanitizesUnderscores(t *testing.T) {
	record := &models.Container{ID: "cont_abc_123"}
	if got := containerName(record); got != "nebu-cont-abc-123" {
		t.Fatalf("containerName = %q, want nebu-cont-abc-123", got)
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

func TestSelectInstanceTypePicksFirstKnownAccelerator(t *testing.T) {
	a := &Adapter{}
	if got := a.selectInstanceType([]string{"H100", "A100"}); got != "p5.xlarge" {
		t.Errorf("selectInstanceType = %q, want p5.xlarge", got)
	}
}

func TestSelectInstanceTypeSkipsUnknownAccelerators(t *testing.T) {
	a := &Adapter{}
	if got := a.selectInstanceType([]string{"quantum-chip", "T4"}); got != "g4dn.xlarge" {
		t.Errorf("selectInstanceType = %q, want g4dn.xlarge", got)
	}
}

func TestSelectInstanceTypeDefaultsToCPUWhenNoAccelerator(t *testing.T) {
	a := &Adapter{}
	if got := a.selectInstanceType(nil); got != "m5.large" {
		t.Errorf("selectInstanceType = %q, want m5.large", got)
	}
}
