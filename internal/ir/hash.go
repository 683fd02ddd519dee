package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainDispatch = "reentry/dispatch/v1"
	DomainRoutine  = "reentry/routine/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DispatchID computes the content-addressed ID of one dispatch record.
// The same event at the same logical time and depth always hashes the same,
// which keeps journal writes idempotent across replays.
func DispatchID(eventID, routine string, params []Value, depth int, seq int64) (string, error) {
	obj := map[string]any{
		"event_id": eventID,
		"routine":  routine,
		"params":   params,
		"depth":    depth,
		"seq":      seq,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("DispatchID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDispatch, canonical), nil
}

// MustDispatchID is like DispatchID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDispatchID(eventID, routine string, params []Value, depth int, seq int64) string {
	id, err := DispatchID(eventID, routine, params, depth, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// ScriptHash fingerprints a compiled routine table so journal rows can be
// tied to the script version that produced them.
func ScriptHash(decls []RoutineDecl) (string, error) {
	items := make([]any, len(decls))
	for i, d := range decls {
		items[i] = d.canonicalMap()
	}
	canonical, err := MarshalCanonical(items)
	if err != nil {
		return "", fmt.Errorf("ScriptHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRoutine, canonical), nil
}
