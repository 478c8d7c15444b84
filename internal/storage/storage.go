// Package storage persists per-session storefront state as JSON documents
// under a small set of well-known keys. Reads are best-effort: a missing or
// unreadable value is treated as absent and callers fall back to a default.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

// Keys under which session state is stored.
const (
	KeyCart               = "cart"
	KeySavedAddresses     = "saved_addresses"
	KeyPromo              = "promo"
	KeyCheckoutMethod     = "checkout_method"
	KeyAllowSubstitutions = "allow_substitutions"
	KeyUserCity           = "user_city"
)

// Store is a durable key to JSON map, namespaced by session.
type Store interface {
	// Get returns the raw JSON stored under key, or an error wrapping
	// apperrors.ErrNotFound when nothing is stored.
	Get(ctx context.Context, session, key string) ([]byte, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, session, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, session, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Purger is implemented by backends that cannot expire entries on their own.
// The app calls Purge periodically.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// ErrNotFound builds the not-found error backends return from Get.
func ErrNotFound(session, key string) error {
	return apperrors.NotFound("stored value", session+"/"+key)
}

// IsNotFound reports whether err means the key holds no value.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

// Load decodes the value under key into a T. A missing key, a backend
// failure or a corrupt document all yield def; the last two are logged.
func Load[T any](ctx context.Context, s Store, session, key string, def T, logger *slog.Logger) T {
	raw, err := s.Get(ctx, session, key)
	if err != nil {
		if !IsNotFound(err) {
			logger.WarnContext(ctx, "failed to read local state",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return def
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.WarnContext(ctx, "discarding corrupt local state",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return def
	}
	return v
}

// Save encodes v as JSON and stores it under key.
func Save[T any](ctx context.Context, s Store, session, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.Set(ctx, session, key, data); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}
