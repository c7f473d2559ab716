// Package storage keeps evidence file bytes outside the database. Stored
// objects are addressed by the key returned from Put, which the evidence
// store records as the file path.
package storage

import (
	"errors"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrInvalidKey = errors.New("storage: invalid key")
)

// newKey returns prefix/<uuid><ext>. The original file name is not part of
// the key so user input never reaches the storage namespace.
func newKey(prefix, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 16 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	key := uuid.NewString() + ext
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

// cleanKey rejects absolute keys, keys escaping the storage root and keys
// outside prefix, so a store only ever touches objects it could have written.
func cleanKey(prefix, key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	if prefix = strings.Trim(prefix, "/"); prefix != "" && !strings.HasPrefix(cleaned, prefix+"/") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
