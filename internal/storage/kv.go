// Package storage persists the client's session across restarts. Two
// independent namespaces are kept: raw bearer tokens and a serialized
// session snapshot.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KV.Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Namespaces used by the client.
const (
	NamespaceTokens = "secure_tokens"
	NamespaceState  = "app_state"
)

// KV is a string key-value namespace.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}
