// Package id generates collision-resistant names for stored files.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// RefLength is the length of the random part of a stored file name.
const RefLength = 21

// NewImageRef creates a unique stored-image name using NanoID.
// Format: nanoid + extension (e.g., "V1StGXR8_Z5jdHi6B-myT.jpg").
//
// The extension is lower-cased and gets a leading dot if it lacks one.
// Returns an error if the system has insufficient entropy for secure random generation.
func NewImageRef(ext string) (string, error) {
	id, err := gonanoid.New(RefLength)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return id + normalizeExt(ext), nil
}

// MustImageRef is like NewImageRef but panics if ID generation fails.
// Use this only when failure should crash the program (e.g., during seeding).
func MustImageRef(ext string) string {
	ref, err := NewImageRef(ext)
	if err != nil {
		panic(fmt.Sprintf("failed to generate image ref: %v", err))
	}
	return ref
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}
