// Package store defines the boundary to the hosted document store that keeps
// places, listas and perfiles: realtime snapshots of a place's lista, merge
// writes per item, atomic batches, and the email+password auth channel.
// Services depend on this interface, not on a concrete backend, enabling the
// in-memory implementation for tests and local development.
package store

import (
	"context"

	"milista/internal/model"
)

// Unsubscribe tears down a subscription. Implementations must tolerate being
// called more than once.
type Unsubscribe func()

// BatchEntry pairs a storage key with its merge-write payload for BulkUpsert.
type BatchEntry struct {
	ItemID string
	Doc    model.ItemDoc
}

// Client is the full store contract.
type Client interface {
	// SubscribeLista delivers the place's complete item collection ordered by
	// codigo: once immediately with current state, then again after every
	// write to the collection by anyone. Read failures after subscription go
	// to onError; the subscription stays down after that (no retries).
	SubscribeLista(ctx context.Context, placeID string, onSnapshot func([]model.Item), onError func(error)) (Unsubscribe, error)

	// FindPlace returns the place or a NotFoundError.
	FindPlace(ctx context.Context, placeID string) (*model.Place, error)

	// UpdateCabecera rewrites exactly the four header fields, empty strings
	// included verbatim.
	UpdateCabecera(ctx context.Context, placeID string, cab model.Cabecera) error

	// UpsertItem merge-writes one item doc: present fields overwrite, absent
	// fields are left untouched. Creates the doc when missing.
	UpsertItem(ctx context.Context, placeID, itemID string, doc model.ItemDoc) error

	// DeleteItem removes the item. Deleting a missing item is not an error.
	DeleteItem(ctx context.Context, placeID, itemID string) error

	// BulkUpsert applies a bounded-size batch of merge-writes as a unit:
	// either every entry lands or none does (WriteError).
	BulkUpsert(ctx context.Context, placeID string, entries []BatchEntry) error

	// FindPerfil resolves an authenticated uid to its place binding.
	FindPerfil(ctx context.Context, userID string) (*model.Perfil, error)

	// SignIn authenticates with email+password and returns the identity, or
	// an AuthError on bad credentials.
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)

	// SignOut clears the current identity.
	SignOut(ctx context.Context) error

	// OnAuthChange fires once at registration with the current identity (nil
	// when signed out), then on every sign-in/sign-out.
	OnAuthChange(fn func(*model.Identity)) Unsubscribe

	// Ping reports backend connectivity for health checks.
	Ping(ctx context.Context) error
}
