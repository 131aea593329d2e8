// Package id provides unique identifier generation utilities.
//
// This is the canonical source for ID generation across the autorecord
// codebase. Fixture IDs are UUID v4 so externalized blobs are addressable
// without coordination; Short IDs are 16-character hex for user-facing
// contexts where brevity matters.
package id

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// Fixture returns a new identifier for an externalized response blob.
func Fixture() string {
	return uuid.NewString()
}

// Short generates a short random hex ID (16 characters).
func Short() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
