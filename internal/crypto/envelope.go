// Package crypto implements the envelope-encryption scheme the repackager
// uses to seal an order's assembled environment to a recipient public key,
// built on the teacher's existing golang.org/x/crypto dependency (there
// used for bcrypt) extended into its nacl/box sealed-box subpackage rather
// than pulling in an unrelated "age"-style library.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// envelopeVersion is bumped if the on-disk ciphertext JSON shape changes.
const envelopeVersion = 1

// Envelope is the JSON ciphertext file (secrets.enc.json) produced by Seal.
// It follows the standard "sealed box" construction: an ephemeral keypair
// is generated per message, its public half travels with the ciphertext,
// and its private half is discarded — only the recipient's long-lived
// private key can open it.
type Envelope struct {
	Version      int    `json:"version"`
	RecipientPub string `json:"recipient_pub"` // base64
	EphemeralPub string `json:"ephemeral_pub"` // base64
	Nonce        string `json:"nonce"`         // base64
	Ciphertext   string `json:"ciphertext"`    // base64
}

// GenerateKeypair produces a fresh X25519 keypair for orders that did not
// supply a recipient public key (sops_key).
func GenerateKeypair() (pub, priv [32]byte, err error) {
	p, s, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return pub, priv, fmt.Errorf("generate envelope keypair: %w", err)
	}
	return *p, *s, nil
}

// Seal encrypts plaintext to recipientPub, returning the JSON ciphertext
// envelope bytes written to secrets.enc.json.
func Seal(plaintext []byte, recipientPub [32]byte) ([]byte, error) {
	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral keypair: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := box.Seal(nil, plaintext, &nonce, &recipientPub, ephPriv)

	env := Envelope{
		Version:      envelopeVersion,
		RecipientPub: base64.StdEncoding.EncodeToString(recipientPub[:]),
		EphemeralPub: base64.StdEncoding.EncodeToString(ephPub[:]),
		Nonce:        base64.StdEncoding.EncodeToString(nonce[:]),
		Ciphertext:   base64.StdEncoding.EncodeToString(sealed),
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Open decrypts a ciphertext envelope using the recipient's private key.
// Used by the worker side (out of scope here) and by tests to validate
// round-trip sealing.
func Open(envelopeJSON []byte, recipientPriv [32]byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(envelopeJSON, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	ephPubBytes, err := base64.StdEncoding.DecodeString(env.EphemeralPub)
	if err != nil {
		return nil, fmt.Errorf("decode ephemeral pub key: %w", err)
	}
	nonceBytes, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	var ephPubArr [32]byte
	copy(ephPubArr[:], ephPubBytes)
	var nonceArr [24]byte
	copy(nonceArr[:], nonceBytes)

	plaintext, ok := box.Open(nil, ciphertext, &nonceArr, &ephPubArr, &recipientPriv)
	if !ok {
		return nil, fmt.Errorf("open envelope: decryption failed")
	}
	return plaintext, nil
}
