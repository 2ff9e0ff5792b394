package platform

import (
	"context"
	"testing"
	"time"

	"nebulous/internal/models"
)

func TestBuildCommonEnvBaseFields(t *testing.T) {
	createdBy := "owner-1"
	record := &models.Container{
		ID:        "cont_abc123",
		Namespace: "default",
		Name:      "trainer",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		CreatedBy: &createdBy,
	}

	env := BuildCommonEnv(record)

	want := map[string]string{
		"NEBU_NAMESPACE":       "default",
		"NEBU_NAME":            "trainer",
		"NEBU_CONTAINER_ID":    "cont_abc123",
		"NAMESPACE_VOLUME_URI": "s3://nebulous/default/",
		"NAME_VOLUME_URI":      "s3://nebulous/default/trainer/",
		"ROOT_VOLUME_URI":      "s3://nebulous/",
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("env[%q] = %q, want %q", k, env[k], v)
		}
	}
	if env["AGENTSEA_API_KEY"] != models.AgentKeySecretName(record.ID) {
		t.Errorf("AGENTSEA_API_KEY = %q, want %q", env["AGENTSEA_API_KEY"], models.AgentKeySecretName(record.ID))
	}
}

func TestBuildCommonEnvOmitsAgentKeyWithoutCreatedBy(t *testing.T) {
	record := &models.Container{ID: "cont_xyz", Namespace: "ns", Name: "n"}
	env := BuildCommonEnv(record)
	if _, ok := env["AGENTSEA_API_KEY"]; ok {
		t.Error("expected no AGENTSEA_API_KEY when CreatedBy is nil")
	}
}

func TestProvisionSideEnvNoopWithoutConfiguredBrokerOrMesh(t *testing.T) {
	record := &models.Container{ID: "cont_noop", Namespace: "ns", Name: "n"}
	env := ProvisionSideEnv(context.Background(), record)
	if len(env) != 0 {
		t.Errorf("expected empty env with no broker/mesh configured, got %v", env)
	}
}
