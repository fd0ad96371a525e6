package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/condorshop/storefront/internal/domain"
	apperrors "github.com/condorshop/storefront/pkg/errors"
	"github.com/condorshop/storefront/pkg/httpclient"
)

const guestTokenHeader = "X-Guest-Token"

// Client talks to the CondorShop backend REST API. Requests carry the
// credential supplied by the CredentialSource; responses may mint a guest
// token, which is handed back to the source.
type Client struct {
	baseURL string
	http    *httpclient.CircuitBreakerClient
	creds   CredentialSource
	logger  *slog.Logger
}

// NewClient creates a backend API client. baseURL must not end with a slash.
func NewClient(baseURL string, httpClient *httpclient.CircuitBreakerClient, creds CredentialSource, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		creds:   creds,
		logger:  logger,
	}
}

// --- Cart endpoints ---

// FetchCart retrieves the cart for the presented identity.
func (c *Client) FetchCart(ctx context.Context) ([]domain.LineItem, error) {
	var out struct {
		Items []domain.LineItem `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/cart", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// AddItem adds a product to the cart. Confirmation only; no item data.
func (c *Client) AddItem(ctx context.Context, productID string, quantity int) error {
	body := map[string]any{
		"product_id": productID,
		"quantity":   quantity,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/cart/items", body, nil)
}

// UpdateQuantity sets a line item's quantity and returns the authoritative item.
func (c *Client) UpdateQuantity(ctx context.Context, lineItemID string, quantity int) (domain.LineItem, error) {
	body := map[string]any{"quantity": quantity}

	var out struct {
		Item domain.LineItem `json:"item"`
	}
	path := "/api/v1/cart/items/" + url.PathEscape(lineItemID)
	if err := c.do(ctx, http.MethodPatch, path, body, &out); err != nil {
		return domain.LineItem{}, err
	}
	return out.Item, nil
}

// RemoveItem deletes a line item. 404 maps to apperrors.ErrNotFound.
func (c *Client) RemoveItem(ctx context.Context, lineItemID string) error {
	path := "/api/v1/cart/items/" + url.PathEscape(lineItemID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// --- Catalog endpoints ---

// ListProducts fetches a catalog page.
func (c *Client) ListProducts(ctx context.Context, page, perPage int) ([]domain.Product, error) {
	var out struct {
		Products []domain.Product `json:"products"`
	}
	path := "/api/v1/products?page=" + strconv.Itoa(page) + "&per_page=" + strconv.Itoa(perPage)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

// GetProduct fetches a single product by slug.
func (c *Client) GetProduct(ctx context.Context, slug string) (domain.Product, error) {
	var out struct {
		Product domain.Product `json:"product"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/products/"+url.PathEscape(slug), nil, &out); err != nil {
		return domain.Product{}, err
	}
	return out.Product, nil
}

// --- Order endpoints ---

// Checkout places an order from the server-side cart.
func (c *Client) Checkout(ctx context.Context) (domain.Order, error) {
	var out struct {
		Order domain.Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders", map[string]any{}, &out); err != nil {
		return domain.Order{}, err
	}
	return out.Order, nil
}

// ListOrders returns the order history for the authenticated shopper.
func (c *Client) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var out struct {
		Orders []domain.Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/orders", nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

// --- Request plumbing ---

// do builds a request, attaches the credential, executes it, captures any
// minted guest token, and decodes the `{data: ...}` envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.attachCredential(req)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if token := resp.Header.Get(guestTokenHeader); token != "" {
		c.creds.StoreGuestToken(token)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.parseError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode backend payload: %w", err)
	}
	return nil
}

func (c *Client) attachCredential(req *http.Request) {
	if token, ok := c.creds.AuthToken(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
		return
	}
	if token, ok := c.creds.GuestToken(); ok {
		req.Header.Set(guestTokenHeader, token)
	}
}

// parseError translates a non-2xx backend response into an AppError,
// preserving the backend's code and message when the body matches the
// standard error envelope.
func (c *Client) parseError(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("backend returned status %d (failed to read body: %w)", resp.StatusCode, err)
	}

	var envelope struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	code := ""
	message := ""
	if json.Unmarshal(bodyBytes, &envelope) == nil && envelope.Error != nil {
		code = envelope.Error.Code
		message = envelope.Error.Message
	}
	if message == "" {
		message = fmt.Sprintf("backend returned status %d", resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return &apperrors.AppError{
			Code: "NOT_FOUND", Message: message,
			Status: http.StatusNotFound, Err: apperrors.ErrNotFound,
		}
	case http.StatusBadRequest:
		return apperrors.InvalidInput(message)
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(message)
	case http.StatusForbidden:
		return apperrors.Forbidden(message)
	case http.StatusConflict:
		if code == "OUT_OF_STOCK" {
			return apperrors.OutOfStock(message)
		}
		return apperrors.Conflict(message)
	case http.StatusServiceUnavailable:
		return apperrors.Unavailable(message)
	default:
		return fmt.Errorf("backend error (%d/%s): %s", resp.StatusCode, code, message)
	}
}
