package interfaces

import (
	"context"
	"time"
)

// ParameterStore resolves SSM-style parameter references to plaintext values.
type ParameterStore interface {
	GetParameter(ctx context.Context, path string) (string, error)
}

// SecretStore resolves secret-manager references and also hosts the
// repackager's auto-generated envelope private keys.
type SecretStore interface {
	GetSecret(ctx context.Context, path string) (string, error)
	// PutSecretWithTTL stores value at path with an automatic-expiry policy.
	// Used to persist auto-generated envelope private keys for the worker to
	// retrieve later, scoped per (run_id, order_num).
	PutSecretWithTTL(ctx context.Context, path, value string, ttl time.Duration) error
}
