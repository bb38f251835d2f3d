package governance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON renders a value as sorted-key, whitespace-free UTF-8 JSON.
// Any deviation here bifurcates the dedup set, so the form is frozen by
// tests.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	// encoding/json sorts map keys; round-tripping through a generic value
	// normalizes struct field order as well.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	return json.Marshal(generic)
}

// Fingerprint computes SHA-256 over (critic_type, finding_type,
// canonical(proposed_change)), the cross-episode dedup key.
func Fingerprint(critic CriticType, findingType string, proposedChange map[string]any) (string, error) {
	canonical, err := CanonicalJSON(proposedChange)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(critic))
	h.Write([]byte{0})
	h.Write([]byte(findingType))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContextHash is the stable 16-hex digest of an episode context.
func ContextHash(context any) (string, error) {
	canonical, err := CanonicalJSON(context)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16], nil
}

// ArtifactChecksum is the SHA-256 of an artifact's canonical content.
func ArtifactChecksum(content json.RawMessage) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
