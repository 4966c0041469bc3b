package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix enables future algorithm migration.
const (
	DomainSnapshot = "wfsync/snapshot/v1"
	DomainUpdate   = "wfsync/update/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotDigest fingerprints a canonical state object.
// Two states have the same digest exactly when their canonical JSON matches.
func SnapshotDigest(state Object) (string, error) {
	canonical, err := MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("SnapshotDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// UpdateID computes the content-addressed identity of a journaled update.
// The sequence number is part of the identity, so replaying the same batch
// at a different position yields a different ID.
func UpdateID(workflowID string, seq int64, update Object) (string, error) {
	obj := Object{
		"workflow_id": String(workflowID),
		"seq":         Int(seq),
		"update":      update,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("UpdateID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainUpdate, canonical), nil
}

// MustSnapshotDigest is like SnapshotDigest but panics on error.
// Use only in tests or when the object is known to be valid.
func MustSnapshotDigest(state Object) string {
	d, err := SnapshotDigest(state)
	if err != nil {
		panic(err)
	}
	return d
}
