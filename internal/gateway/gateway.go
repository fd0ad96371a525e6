package gateway

import (
	"context"

	"github.com/condorshop/storefront/internal/domain"
)

// CredentialSource supplies the credential to attach to backend requests and
// receives guest tokens minted by the backend. The session identity resolver
// implements it.
type CredentialSource interface {
	// AuthToken returns the authenticated bearer token, if any.
	AuthToken() (string, bool)

	// GuestToken returns the anonymous session token, if one has been minted.
	GuestToken() (string, bool)

	// StoreGuestToken records a guest token minted or rotated by the backend.
	StoreGuestToken(token string)
}

// CartGateway is the storefront's view of the backend cart endpoints. The
// wire contract is owned by the backend; this interface only conforms to it.
type CartGateway interface {
	// FetchCart retrieves the current cart for the presented identity.
	FetchCart(ctx context.Context) ([]domain.LineItem, error)

	// AddItem adds a product to the cart. The endpoint returns a confirmation
	// only, not item data; callers refetch the cart afterwards.
	AddItem(ctx context.Context, productID string, quantity int) error

	// UpdateQuantity sets the quantity of a line item and returns the
	// authoritative item as confirmed by the backend.
	UpdateQuantity(ctx context.Context, lineItemID string, quantity int) (domain.LineItem, error)

	// RemoveItem deletes a line item. A backend 404 surfaces as
	// apperrors.ErrNotFound; callers treat it as already satisfied.
	RemoveItem(ctx context.Context, lineItemID string) error
}

// StorefrontGateway extends the cart contract with the browse and checkout
// endpoints the storefront proxies.
type StorefrontGateway interface {
	CartGateway

	ListProducts(ctx context.Context, page, perPage int) ([]domain.Product, error)
	GetProduct(ctx context.Context, slug string) (domain.Product, error)
	Checkout(ctx context.Context) (domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
}
