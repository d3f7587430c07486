package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vmJSON = `{
  "apiVersion": "kubevirt.io/v1",
  "kind": "VirtualMachine",
  "metadata": {
    "name": "fedora-vm",
    "namespace": "dev-cae-team",
    "creationTimestamp": "2025-03-01T10:00:00Z",
    "labels": {"app": "fedora"}
  },
  "spec": {"running": true, "template": {"spec": {"domain": {"cpu": {"cores": 2}}}}},
  "status": {
    "printableStatus": "Running",
    "ready": true,
    "conditions": [
      {"type": "Ready", "status": "False", "message": "booting"},
      {"type": "Paused", "status": "False"},
      {"type": "Ready", "status": "True", "message": "ok"}
    ]
  }
}`

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(vmJSON))
	require.NoError(t, err)

	assert.Equal(t, "fedora-vm", env.Name())
	assert.Equal(t, "dev-cae-team", env.Namespace())
	assert.Equal(t, "VirtualMachine", env.Kind())
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), env.CreationTimestamp().UTC())
	assert.Equal(t, map[string]string{"app": "fedora"}, env.Labels())

	status, ok := env.NestedString("status", "printableStatus")
	assert.True(t, ok)
	assert.Equal(t, "Running", status)

	ready, ok := env.NestedBool("status", "ready")
	assert.True(t, ok)
	assert.True(t, ready)

	assert.Equal(t, true, env.Spec()["running"])
	assert.True(t, env.HasField("spec", "template"))
	assert.False(t, env.HasField("spec", "runStrategy"))
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"metadata":`},
		{"empty body", ``},
		{"null", `null`},
		{"array", `[]`},
		{"missing metadata", `{"spec":{}}`},
		{"missing name", `{"metadata":{"namespace":"dev"}}`},
		{"empty name", `{"metadata":{"name":""}}`},
		{"name not a string", `{"metadata":{"name":3}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			require.Error(t, err)

			var de *DecodeError
			assert.True(t, errors.As(err, &de), "expected *DecodeError, got %T", err)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestEnvelopeIsImmutable(t *testing.T) {
	env, err := Decode([]byte(vmJSON))
	require.NoError(t, err)

	spec := env.Spec()
	spec["running"] = false
	delete(spec, "template")

	obj := env.Object()
	obj["metadata"].(map[string]interface{})["name"] = "changed"

	labels := env.Labels()
	labels["app"] = "changed"

	assert.Equal(t, true, env.Spec()["running"])
	assert.Contains(t, env.Spec(), "template")
	assert.Equal(t, "fedora-vm", env.Name())
	assert.Equal(t, "fedora", env.Labels()["app"])
}

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		expected  []string
		expectErr bool
	}{
		{
			name:     "missing items",
			body:     `{"kind":"VirtualMachineList","metadata":{}}`,
			expected: []string{},
		},
		{
			name:     "null items",
			body:     `{"items":null}`,
			expected: []string{},
		},
		{
			name:     "empty items",
			body:     `{"items":[]}`,
			expected: []string{},
		},
		{
			name:     "two items",
			body:     `{"items":[{"metadata":{"name":"a","namespace":"x"}},{"metadata":{"name":"b","namespace":"y"}}]}`,
			expected: []string{"a", "b"},
		},
		{
			name:      "items not a list",
			body:      `{"items":{}}`,
			expectErr: true,
		},
		{
			name:      "item without name",
			body:      `{"items":[{"metadata":{}}]}`,
			expectErr: true,
		},
		{
			name:      "malformed",
			body:      `{"items":[`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := DecodeList([]byte(tt.body))
			if tt.expectErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrDecode)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, items)

			names := make([]string, 0, len(items))
			for _, it := range items {
				names = append(names, it.Name())
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestEncodeMergePatch(t *testing.T) {
	body, err := SpecPatch(map[string]interface{}{"running": false}).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"spec":{"running":false}}`, string(body))

	_, err = EncodeMergePatch(nil)
	assert.Error(t, err)
}

func TestMergePatchKeepsUntouchedKeys(t *testing.T) {
	stored := []byte(`{"metadata":{"name":"fedora-vm"},"spec":{"running":true,"template":{"spec":{"domain":{}}}}}`)
	patch := []byte(`{"spec":{"running":false}}`)

	merged, err := ApplyMergePatch(stored, patch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"metadata":{"name":"fedora-vm"},"spec":{"running":false,"template":{"spec":{"domain":{}}}}}`, string(merged))
}

func TestPreview(t *testing.T) {
	env, err := Decode([]byte(vmJSON))
	require.NoError(t, err)

	preview, err := env.Preview(SpecPatch(map[string]interface{}{"runStrategy": "Halted", "running": nil}))
	require.NoError(t, err)

	assert.Equal(t, "Halted", preview.Spec()["runStrategy"])
	assert.NotContains(t, preview.Spec(), "running", "null removes a key in merge patch")
	assert.Contains(t, preview.Spec(), "template")
	assert.Equal(t, true, env.Spec()["running"], "preview must not alter the original")
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(map[string]interface{}{
		"metadata": map[string]interface{}{"name": "plan-a"},
		"spec":     map[string]interface{}{"vms": []interface{}{map[string]interface{}{"name": "vm1"}}, "count": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "plan-a", env.Name())

	_, err = NewEnvelope(map[string]interface{}{"spec": map[string]interface{}{}})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestZeroEnvelope(t *testing.T) {
	var env Envelope
	assert.True(t, env.IsZero())
	assert.Empty(t, env.Name())
	assert.Empty(t, env.Spec())
	assert.Nil(t, env.Conditions())

	data, err := env.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
