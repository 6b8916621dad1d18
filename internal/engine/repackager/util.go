package repackager

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// writeCmdsManifest writes the agent back-end's cmds.json, a JSON array of
// the order's shell commands.
func writeCmdsManifest(codeDir string, cmds []string) error {
	data, err := json.Marshal(cmds)
	if err != nil {
		return fmt.Errorf("marshal cmds: %w", err)
	}
	return os.WriteFile(filepath.Join(codeDir, "cmds.json"), data, 0o644)
}

// envToJSON serializes an env map as the plaintext payload that gets sealed
// into secrets.enc.json (and, for the agent back-end, mirrored plaintext
// into env_vars.json).
func envToJSON(env map[string]string) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal env map: %w", err)
	}
	return data, nil
}

// decodeRecipientKey decodes a base64-encoded X25519 public key supplied as
// an order's sops_key.
func decodeRecipientKey(encoded string) ([32]byte, error) {
	var key [32]byte
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return key, fmt.Errorf("decode recipient key: %w", err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("recipient key must be 32 bytes, got %d", len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// encodeKey base64-encodes a 32-byte key for storage as a secret string.
func encodeKey(key [32]byte) string {
	return base64.StdEncoding.EncodeToString(key[:])
}
