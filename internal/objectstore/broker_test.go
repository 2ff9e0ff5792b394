package objectstore

import (
	"context"
	"strings"
	"testing"

	"nebulous/internal/config"
)

func TestNewBrokerRequiresAssumeRoleARN(t *testing.T) {
	_, err := NewBroker(context.Background(), config.ObjectStoreConfig{})
	if err == nil {
		t.Fatal("expected error when AssumeRoleARN is empty")
	}
}

func TestCredentialEnvIncludesAWSAndRcloneVars(t *testing.T) {
	cred := Credential{
		AccessKeyID:     "AKIA-TEST",
		SecretAccessKey: "secret",
		SessionToken:    "token",
		Region:          "us-east-1",
	}
	env := cred.Env()

	if env["AWS_ACCESS_KEY_ID"] != "AKIA-TEST" {
		t.Errorf("AWS_ACCESS_KEY_ID = %q", env["AWS_ACCESS_KEY_ID"])
	}
	if env["RCLONE_CONFIG_S3_ACCESS_KEY_ID"] != "AKIA-TEST" {
		t.Errorf("RCLONE_CONFIG_S3_ACCESS_KEY_ID = %q", env["RCLONE_CONFIG_S3_ACCESS_KEY_ID"])
	}
	if _, ok := env["RCLONE_CONFIG_S3_ENDPOINT"]; ok {
		t.Error("expected no endpoint var when Endpoint is empty")
	}
}

func TestCredentialEnvIncludesEndpointWhenSet(t *testing.T) {
	cred := Credential{Endpoint: "https://minio.local:9000"}
	env := cred.Env()
	if env["RCLONE_CONFIG_S3_ENDPOINT"] != "https://minio.local:9000" {
		t.Errorf("RCLONE_CONFIG_S3_ENDPOINT = %q", env["RCLONE_CONFIG_S3_ENDPOINT"])
	}
}

func TestScopedPolicyDocumentScopesToPrefix(t *testing.T) {
	policy := scopedPolicyDocument("nebulous-bucket", "default/")
	if !strings.Contains(policy, "nebulous-bucket") || !strings.Contains(policy, "default/") {
		t.Errorf("policy missing bucket or prefix: %s", policy)
	}
}
