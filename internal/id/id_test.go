package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageRef_Uniqueness(t *testing.T) {
	// Generate many refs and verify they're unique
	refs := make(map[string]bool)
	count := 1000

	for i := 0; i < count; i++ {
		ref, err := NewImageRef(".jpg")
		require.NoError(t, err)
		assert.False(t, refs[ref], "ref should be unique: %s", ref)
		refs[ref] = true
	}

	assert.Len(t, refs, count)
}

func TestNewImageRef_Format(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		want string
	}{
		{"dotted", ".jpg", ".jpg"},
		{"upper case", ".PNG", ".png"},
		{"no dot", "webp", ".webp"},
		{"padded", " .Jpeg ", ".jpeg"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := NewImageRef(tt.ext)
			require.NoError(t, err)

			assert.True(t, strings.HasSuffix(ref, tt.want))
			assert.Len(t, ref, RefLength+len(tt.want))
			assert.NotContains(t, ref[:RefLength], ".")
		})
	}
}

func TestNewImageRef_FitsStoredLimit(t *testing.T) {
	// Category image refs are limited to 37 characters.
	ref, err := NewImageRef(".jpeg")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(ref), 37)
}

func TestMustImageRef(t *testing.T) {
	assert.NotPanics(t, func() {
		ref := MustImageRef("png")
		assert.True(t, strings.HasSuffix(ref, ".png"))
	})
}
