package repackager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railyard-run/railyard/internal/models"
)

type fakeParamStore struct{ values map[string]string }

func (f *fakeParamStore) GetParameter(_ context.Context, path string) (string, error) {
	return f.values[path], nil
}

type fakeSecretStore struct{ values map[string]string }

func (f *fakeSecretStore) GetSecret(_ context.Context, path string) (string, error) {
	return f.values[path], nil
}

func (f *fakeSecretStore) PutSecretWithTTL(_ context.Context, _, _ string, _ time.Duration) error {
	return nil
}

func TestEnvVarName(t *testing.T) {
	assert.Equal(t, "DB_PASSWORD", envVarName("/app/prod/db-password"))
	assert.Equal(t, "API_KEY", envVarName("api-key"))
}

func TestAssembleEnv_OverwriteCollision(t *testing.T) {
	r := New(Dependencies{
		Params:  &fakeParamStore{values: map[string]string{"/app/x": "b"}},
		Secrets: &fakeSecretStore{values: map[string]string{"/app/secret/x": "c"}},
	})

	order := &models.Order{
		EnvVars:            map[string]string{"X": "a"},
		SSMPaths:           []string{"/app/x"},
		SecretManagerPaths: []string{"/app/secret/x"},
	}

	env, srcKeys, err := r.assembleEnv(context.Background(), order, "trace1", "run1", "0001", "flow1")
	require.NoError(t, err)

	assert.Equal(t, "c", env["X"], "secret-store value must win the collision")
	assert.Equal(t, []string{"/app/secret/x", "/app/x"}, srcKeys)
	assert.Equal(t, "trace1", env["TRACE_ID"])
	assert.Equal(t, "run1", env["RUN_ID"])
	assert.Equal(t, "0001", env["ORDER_NUM"])
	assert.Equal(t, "flow1", env["FLOW_ID"])
}

func TestAssembleEnv_IntrospectionFieldsAlwaysPresent(t *testing.T) {
	r := New(Dependencies{
		Params:  &fakeParamStore{values: map[string]string{}},
		Secrets: &fakeSecretStore{values: map[string]string{}},
	})

	env, srcKeys, err := r.assembleEnv(context.Background(), &models.Order{}, "t", "r", "0001", "f")
	require.NoError(t, err)

	assert.Empty(t, srcKeys)
	assert.Equal(t, "", env["ORDER_ID"])
	assert.Equal(t, "0001", env["ORDER_NUM"])
}
