// Package secrets implements the parameter-reference and secret-reference
// resolution capability over AWS SSM Parameter Store and AWS Secrets
// Manager, plus the envelope-private-key persistence the repackager uses.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/railyard-run/railyard/internal/store/retry"
)

// ParameterStore resolves SSM Parameter Store references.
type ParameterStore struct {
	client *ssm.Client
	policy retry.Policy
}

// NewParameterStore constructs a ParameterStore.
func NewParameterStore(client *ssm.Client, policy retry.Policy) *ParameterStore {
	return &ParameterStore{client: client, policy: policy}
}

func isSSMThrottle(err error) bool {
	if err == nil {
		return false
	}
	var throttled *ssmtypes.TooManyUpdates
	return errors.As(err, &throttled) || strings.Contains(err.Error(), "ThrottlingException")
}

// GetParameter resolves a single SSM parameter to its plaintext value,
// decrypting SecureString parameters.
func (p *ParameterStore) GetParameter(ctx context.Context, path string) (string, error) {
	var value string
	err := retry.Do(ctx, p.policy, isSSMThrottle, func() error {
		out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(path),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return err
		}
		value = aws.ToString(out.Parameter.Value)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", path, err)
	}
	return value, nil
}

// SecretStore resolves Secrets Manager references and hosts envelope
// private keys.
type SecretStore struct {
	client *secretsmanager.Client
	policy retry.Policy
}

// NewSecretStore constructs a SecretStore.
func NewSecretStore(client *secretsmanager.Client, policy retry.Policy) *SecretStore {
	return &SecretStore{client: client, policy: policy}
}

func isSecretsManagerThrottle(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "ThrottlingException") || strings.Contains(err.Error(), "TooManyRequestsException")
}

// GetSecret resolves a Secrets Manager secret to its plaintext value.
func (s *SecretStore) GetSecret(ctx context.Context, path string) (string, error) {
	var value string
	err := retry.Do(ctx, s.policy, isSecretsManagerThrottle, func() error {
		out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(path),
		})
		if err != nil {
			return err
		}
		value = aws.ToString(out.SecretString)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", path, err)
	}
	return value, nil
}

// GitCredentials implements interfaces.GitCredentialSource over the same
// Secrets Manager store used for order secrets: git tokens and SSH private
// keys are just secrets at a caller-supplied path, so no new AWS client is
// needed.
type GitCredentials struct {
	secrets *SecretStore
}

// NewGitCredentials constructs a GitCredentials adapter.
func NewGitCredentials(secrets *SecretStore) *GitCredentials {
	return &GitCredentials{secrets: secrets}
}

// ResolveToken resolves a job's git_token_ref to its plaintext token.
func (g *GitCredentials) ResolveToken(ctx context.Context, ref string) (string, error) {
	return g.secrets.GetSecret(ctx, ref)
}

// ResolveSSHKey resolves a job's git_ssh_key_ref to its plaintext PEM key.
func (g *GitCredentials) ResolveSSHKey(ctx context.Context, ref string) (string, error) {
	return g.secrets.GetSecret(ctx, ref)
}

// expiresAtTagKey tags a secret with its intended expiry. Secrets Manager
// has no native sub-day TTL; a separate sweeper (out of scope here) is
// expected to delete secrets past this tag's value, the same way the
// engine relies on DynamoDB's native TTL for the orders table.
const expiresAtTagKey = "railyard:expires_at"

// PutSecretWithTTL creates (or updates) a secret at path, tagged with its
// expiry, used to persist auto-generated envelope private keys under
// /<prefix>/sops-keys/<run_id>/<order_num> with a 2-hour window.
func (s *SecretStore) PutSecretWithTTL(ctx context.Context, path, value string, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).UTC().Format(time.RFC3339)

	createErr := retry.Do(ctx, s.policy, isSecretsManagerThrottle, func() error {
		_, err := s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(path),
			SecretString: aws.String(value),
			Tags: []smtypes.Tag{
				{Key: aws.String(expiresAtTagKey), Value: aws.String(expiresAt)},
			},
		})
		return err
	})

	if createErr != nil {
		var exists *smtypes.ResourceExistsException
		if !errors.As(createErr, &exists) {
			return fmt.Errorf("create secret %s: %w", path, createErr)
		}
		if err := retry.Do(ctx, s.policy, isSecretsManagerThrottle, func() error {
			_, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
				SecretId:     aws.String(path),
				SecretString: aws.String(value),
			})
			return err
		}); err != nil {
			return fmt.Errorf("update secret %s: %w", path, err)
		}
	}

	return retry.Do(ctx, s.policy, isSecretsManagerThrottle, func() error {
		_, err := s.client.TagResource(ctx, &secretsmanager.TagResourceInput{
			SecretId: aws.String(path),
			Tags: []smtypes.Tag{
				{Key: aws.String(expiresAtTagKey), Value: aws.String(expiresAt)},
			},
		})
		return err
	})
}
