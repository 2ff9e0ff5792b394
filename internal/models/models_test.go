package models

import (
	"strings"
	"testing"
)

func TestJSONBValueRoundTripsThroughScan(t *testing.T) {
	j := MustNewJSONB(map[string]string{"key": "value"})

	v, err := j.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var scanned JSONB
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var out map[string]string
	if err := scanned.Unmarshal(&out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["key"] != "value" {
		t.Fatalf("out = %v, want key=value", out)
	}
}

func TestJSONBValueIsNilForEmptyDocument(t *testing.T) {
	var j JSONB
	v, err := j.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != nil {
		t.Fatalf("Value = %v, want nil for an empty document", v)
	}
}

func TestJSONBScanAcceptsStringAndBytes(t *testing.T) {
	var fromBytes JSONB
	if err := fromBytes.Scan([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("Scan([]byte): %v", err)
	}
	var fromString JSONB
	if err := fromString.Scan(`{"a":1}`); err != nil {
		t.Fatalf("Scan(string): %v", err)
	}
	if string(fromBytes) != string(fromString) {
		t.Fatalf("Scan(bytes) = %q, Scan(string) = %q, want equal", fromBytes, fromString)
	}
}

func TestJSONBScanNilClearsDocument(t *testing.T) {
	j := MustNewJSONB([]string{"a"})
	if err := j.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !j.IsZero() {
		t.Fatal("expected Scan(nil) to zero the document")
	}
}

func TestJSONBScanRejectsUnsupportedType(t *testing.T) {
	var j JSONB
	if err := j.Scan(42); err == nil {
		t.Fatal("expected an error scanning an unsupported type")
	}
}

func TestJSONBIsZeroTreatsNullAsZero(t *testing.T) {
	j := JSONB("null")
	if !j.IsZero() {
		t.Fatal("JSONB(\"null\") should be zero")
	}
}

func TestJSONBUnmarshalOnZeroDocumentIsNoOp(t *testing.T) {
	var j JSONB
	out := map[string]string{"untouched": "yes"}
	if err := j.Unmarshal(&out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["untouched"] != "yes" {
		t.Fatal("Unmarshal on a zero JSONB should leave v untouched")
	}
}

func TestNewJSONBWithNilValueProducesZeroDocument(t *testing.T) {
	j, err := NewJSONB(nil)
	if err != nil {
		t.Fatalf("NewJSONB(nil): %v", err)
	}
	if !j.IsZero() {
		t.Fatal("NewJSONB(nil) should produce a zero document")
	}
}

func TestMustNewJSONBPanicsOnUnmarshalableValue(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected MustNewJSONB to panic on an unmarshalable value")
		}
	}()
	MustNewJSONB(func() {})
}

func TestNewContainerIDHasNebuPrefix(t *testing.T) {
	id := NewContainerID()
	if !strings.HasPrefix(id, "nebu-") {
		t.Fatalf("NewContainerID() = %q, want nebu- prefix", id)
	}
}

func TestParseStatusDefaultsOnUnsetColumn(t *testing.T) {
	c := &Container{}
	doc, err := c.ParseStatus()
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if doc.Status != "" {
		t.Fatalf("Status = %q, want empty for an unset column", doc.Status)
	}
}

func TestParseStatusDecodesStoredDocument(t *testing.T) {
	c := &Container{Status: MustNewJSONB(ContainerStatusDoc{Status: "running", Ready: true})}
	doc, err := c.ParseStatus()
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if doc.Status != "running" || !doc.Ready {
		t.Fatalf("doc = %+v, want status=running ready=true", doc)
	}
}

func TestSecretNameHelpersAreStableAndDistinct(t *testing.T) {
	id := "cont_1"
	names := map[string]string{
		"agent":    AgentKeySecretName(id),
		"ssh_priv": SSHPrivateKeySecretName(id),
		"ssh_pub":  SSHPublicKeySecretName(id),
	}
	seen := map[string]bool{}
	for label, name := range names {
		if !strings.Contains(name, id) {
			t.Errorf("%s name %q does not contain container id", label, name)
		}
		if seen[name] {
			t.Errorf("%s name %q collides with another secret name helper", label, name)
		}
		seen[name] = true
	}
}
