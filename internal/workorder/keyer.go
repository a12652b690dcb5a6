package workorder

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

const keyDerivationContext = "hive idempotency key v1"

// Keyer derives stable fingerprints from the CORE subset of a work order.
// The hash is keyed: two deployments with different secrets produce
// unrelated fingerprints for the same order.
type Keyer struct {
	key [32]byte
}

// NewKeyer builds a Keyer from the process secret. An absent or short secret
// is a hard error; there is no weak fallback.
func NewKeyer(secret string) (*Keyer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("idempotency secret is not configured")
	}
	if len(secret) < 16 {
		return nil, fmt.Errorf("idempotency secret too short: %d bytes, want >= 16", len(secret))
	}
	k := &Keyer{}
	blake3.DeriveKey(keyDerivationContext, []byte(secret), k.key[:])
	return k, nil
}

// Key returns the hex fingerprint of the work order's CORE fields. Orders
// differing only in trace/audit/extension fields share a fingerprint.
func (k *Keyer) Key(wo *WorkOrder) (string, error) {
	if k == nil {
		return "", fmt.Errorf("keyer is nil")
	}
	if err := wo.Validate(); err != nil {
		return "", err
	}
	canon, err := canonicalCoreJSON(wo)
	if err != nil {
		return "", err
	}
	h, err := blake3.NewKeyed(k.key[:])
	if err != nil {
		return "", err
	}
	if _, err := h.Write(canon); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalCoreJSON serializes the CORE fields with all object keys sorted,
// recursively, so the byte representation is independent of map iteration
// order and of the caller's field order.
func canonicalCoreJSON(wo *WorkOrder) ([]byte, error) {
	core := map[string]any{
		"version":  wo.Version,
		"tenant":   wo.Tenant,
		"scope":    wo.Scope,
		"policyId": wo.PolicyID,
		"inputs":   wo.Inputs,
		"constraints": map[string]any{
			"maxRounds":      wo.Constraints.MaxRounds,
			"costCapUsd":     wo.Constraints.CostCapUSD,
			"maxTokensTotal": wo.Constraints.MaxTokensTotal,
		},
	}
	var buf strings.Builder
	if err := writeCanonical(&buf, core); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func writeCanonical(buf *strings.Builder, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.Number:
		buf.WriteString(t.String())
		return nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
