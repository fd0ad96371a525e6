package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/condorshop/storefront/pkg/errors"
)

// Mode is the identity state of a shopper session. Exactly one mode is
// active at a time.
type Mode string

const (
	ModeGuest         Mode = "guest"
	ModeAuthenticated Mode = "authenticated"
)

// IdentityChangeHook is invoked after a guest/authenticated transition.
// The cart sync controller registers a forced refetch here, because the
// backend's notion of "the current cart" depends on the presented identity.
type IdentityChangeHook func(mode Mode)

// Resolver tracks whether the active cart belongs to a guest or an
// authenticated shopper. The guest token is minted lazily by the backend on
// the first unauthenticated cart interaction and stored via the gateway's
// CredentialSource callback.
type Resolver struct {
	mu         sync.Mutex
	mode       Mode
	authToken  string
	subject    string
	guestToken string
	onChange   IdentityChangeHook
	logger     *slog.Logger
}

// NewResolver creates a resolver starting in guest mode.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{
		mode:   ModeGuest,
		logger: logger,
	}
}

// SetIdentityChangeHook registers the transition hook. Must be called during
// wiring, before the resolver is shared.
func (r *Resolver) SetIdentityChangeHook(hook IdentityChangeHook) {
	r.onChange = hook
}

// Login validates the backend-issued JWT and transitions to authenticated
// mode. Only the claims are inspected; the signature is the backend's to
// verify, the storefront merely refuses tokens that are already expired or
// unparseable. The identity-change hook fires after the transition.
func (r *Resolver) Login(token string) error {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return apperrors.InvalidInput("malformed session token")
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return apperrors.Unauthorized("session token expired")
	}

	r.mu.Lock()
	r.mode = ModeAuthenticated
	r.authToken = token
	r.subject = claims.Subject
	r.mu.Unlock()

	r.logger.Info("shopper authenticated", slog.String("subject", claims.Subject))

	if r.onChange != nil {
		r.onChange(ModeAuthenticated)
	}
	return nil
}

// Logout transitions back to guest mode. A no-op when already guest; the
// hook only fires on an actual transition.
func (r *Resolver) Logout() {
	r.mu.Lock()
	if r.mode != ModeAuthenticated {
		r.mu.Unlock()
		return
	}
	r.mode = ModeGuest
	r.authToken = ""
	r.subject = ""
	r.mu.Unlock()

	r.logger.Info("shopper logged out")

	if r.onChange != nil {
		r.onChange(ModeGuest)
	}
}

// ClearCredential drops an expired credential without firing the transition
// hook. Used when the backend rejects the credential on a fetch: the caller
// clears the cart itself and a refetch loop must not start.
func (r *Resolver) ClearCredential() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = ModeGuest
	r.authToken = ""
	r.subject = ""
}

// Mode returns the active identity mode.
func (r *Resolver) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Authenticated reports whether an authenticated credential is active.
func (r *Resolver) Authenticated() bool {
	return r.Mode() == ModeAuthenticated
}

// Subject returns the authenticated shopper's subject claim, empty for guests.
func (r *Resolver) Subject() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subject
}

// AuthToken implements gateway.CredentialSource.
func (r *Resolver) AuthToken() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authToken, r.authToken != ""
}

// GuestToken implements gateway.CredentialSource.
func (r *Resolver) GuestToken() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guestToken, r.guestToken != ""
}

// StoreGuestToken implements gateway.CredentialSource. The backend mints the
// token lazily; the resolver just keeps the latest one.
func (r *Resolver) StoreGuestToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guestToken = token
}
