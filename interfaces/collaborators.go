package interfaces

import "context"

// Catalog is the external product catalog collaborator. The provenance core
// never owns product records; it only asks whether a product exists before
// accepting custody events for it.
type Catalog interface {
	ProductExists(ctx context.Context, productID string) (bool, error)
}

// CatalogFunc adapts a function to the Catalog interface.
type CatalogFunc func(ctx context.Context, productID string) (bool, error)

func (f CatalogFunc) ProductExists(ctx context.Context, productID string) (bool, error) {
	return f(ctx, productID)
}

// Authorizer is the external authorization collaborator, consulted by key
// unwrap and blob deletion.
type Authorizer interface {
	Authorize(ctx context.Context, principal, action, resourceID string) bool
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, principal, action, resourceID string) bool

func (f AuthorizerFunc) Authorize(ctx context.Context, principal, action, resourceID string) bool {
	return f(ctx, principal, action, resourceID)
}

// Ledger is the external ledger collaborator anchor digests are published to.
// Submit may be slow or unreliable; callers retry with backoff and must treat
// an error as "not acknowledged", never as a partial publication.
type Ledger interface {
	Submit(ctx context.Context, digest []byte) (confirmationRef string, err error)
}
