// Package ir provides the value representation carried inside patch operations
// and the canonical JSON encoding used to compare and fingerprint workflow state.
//
// This package contains value types and serialization only. All other internal
// packages may import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - progress and indices are integers, use int64
//   - Null is a first-class value: optional state fields are cleared with it
//   - Object keys are ordered by UTF-16 code units (RFC 8785) when serialized
//   - All JSON tags use snake_case so patch paths map 1:1 onto field names
package ir
