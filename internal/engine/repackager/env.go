package repackager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/railyard-run/railyard/internal/crypto"
	"github.com/railyard-run/railyard/internal/models"
)

// envVarName derives the environment variable name for a parameter/secret
// reference: its last path segment, uppercased, with "-" replaced by "_".
func envVarName(ref string) string {
	segment := ref
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		segment = ref[idx+1:]
	}
	segment = strings.ToUpper(segment)
	return strings.ReplaceAll(segment, "-", "_")
}

// assembleEnv implements the §4.2 merge law: env_vars -> ssm values ->
// secret values -> introspection fields, each layer overriding the last on
// key collision. CALLBACK_URL is added by the caller once the presigned
// URL is known; introspection fields are written unconditionally.
func (r *Repackager) assembleEnv(ctx context.Context, order *models.Order, traceID, runID, orderNum, flowID string) (env map[string]string, srcKeys []string, err error) {
	env = map[string]string{}

	for k, v := range order.EnvVars {
		env[k] = v
	}

	var fetched []string

	for _, path := range order.SSMPaths {
		val, err := r.deps.Params.GetParameter(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch ssm parameter %s: %w", path, err)
		}
		env[envVarName(path)] = val
		fetched = append(fetched, path)
	}

	for _, path := range order.SecretManagerPaths {
		val, err := r.deps.Secrets.GetSecret(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch secret %s: %w", path, err)
		}
		env[envVarName(path)] = val
		fetched = append(fetched, path)
	}

	sort.Strings(fetched)

	// Introspection fields are written unconditionally, using empty
	// strings when a value is unavailable (e.g. order_name unset).
	env["TRACE_ID"] = traceID
	env["RUN_ID"] = runID
	env["ORDER_ID"] = order.OrderName
	env["ORDER_NUM"] = orderNum
	env["FLOW_ID"] = flowID

	return env, fetched, nil
}

// writeEnvArtifacts produces the three (four for agent) manifests the
// worker expects alongside the order's code tree.
func writeEnvArtifacts(codeDir string, env map[string]string, srcKeys []string, recipientPub [32]byte, target models.ExecutionTarget) error {
	plaintext, err := envToJSON(env)
	if err != nil {
		return fmt.Errorf("marshal env for sealing: %w", err)
	}

	sealed, err := crypto.Seal(plaintext, recipientPub)
	if err != nil {
		return fmt.Errorf("seal env: %w", err)
	}
	if err := os.WriteFile(filepath.Join(codeDir, "secrets.enc.json"), sealed, 0o600); err != nil {
		return fmt.Errorf("write secrets.enc.json: %w", err)
	}

	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}
	sort.Strings(names)
	if err := os.WriteFile(filepath.Join(codeDir, "env_vars.env"), []byte(strings.Join(names, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write env_vars.env: %w", err)
	}

	srcSorted := append([]string(nil), srcKeys...)
	sort.Strings(srcSorted)
	if err := os.WriteFile(filepath.Join(codeDir, "secrets.src"), []byte(strings.Join(srcSorted, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write secrets.src: %w", err)
	}

	if target == models.ExecutionTargetAgent {
		if err := os.WriteFile(filepath.Join(codeDir, "env_vars.json"), plaintext, 0o600); err != nil {
			return fmt.Errorf("write env_vars.json: %w", err)
		}
	}

	return nil
}
