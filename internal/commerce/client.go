package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const publishableKeyHeader = "x-publishable-api-key"

type Options struct {
	BaseURL        string
	PublishableKey string
	Timeout        time.Duration

	// Optional customer credentials; when set every call carries a bearer token.
	CustomerEmail    string
	CustomerPassword string

	// HTTPClient overrides the instrumented default, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the commerce backend store API.
type Client struct {
	baseURL        string
	publishableKey string
	http           *http.Client
	breaker        *gobreaker.CircuitBreaker[[]byte]
	tokens         *TokenCache
	logger         *zap.Logger
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	c := &Client{
		baseURL:        opts.BaseURL,
		publishableKey: opts.PublishableKey,
		http:           httpClient,
		breaker:        newBreaker("commerce-backend", logger),
		logger:         logger,
	}
	if opts.CustomerEmail != "" {
		c.tokens = NewTokenCache(c.login(opts.CustomerEmail, opts.CustomerPassword))
	}
	return c
}

type cartEnvelope struct {
	Cart   *domain.Cart `json:"cart"`
	Parent *domain.Cart `json:"parent"`
}

func (e cartEnvelope) cart() (*domain.Cart, error) {
	if e.Cart != nil {
		return e.Cart, nil
	}
	if e.Parent != nil {
		return e.Parent, nil
	}
	return nil, status.Error(codes.Internal, "backend reply carried no cart")
}

func (c *Client) RetrieveCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	var env cartEnvelope
	if err := c.do(ctx, http.MethodGet, "/store/carts/"+url.PathEscape(cartID), nil, &env); err != nil {
		return nil, err
	}
	return env.cart()
}

func (c *Client) CreateCart(ctx context.Context, regionID string) (*domain.Cart, error) {
	var env cartEnvelope
	body := map[string]string{"region_id": regionID}
	if err := c.do(ctx, http.MethodPost, "/store/carts", body, &env); err != nil {
		return nil, err
	}
	return env.cart()
}

func (c *Client) UpdateCart(ctx context.Context, cartID string, update domain.CartUpdate) (*domain.Cart, error) {
	var env cartEnvelope
	if err := c.do(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID), update, &env); err != nil {
		return nil, err
	}
	return env.cart()
}

func (c *Client) AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*domain.Cart, error) {
	var env cartEnvelope
	body := map[string]any{"variant_id": variantID, "quantity": quantity}
	path := fmt.Sprintf("/store/carts/%s/line-items", url.PathEscape(cartID))
	if err := c.do(ctx, http.MethodPost, path, body, &env); err != nil {
		return nil, err
	}
	return env.cart()
}

func (c *Client) UpdateLineItem(ctx context.Context, cartID, itemID string, quantity int) (*domain.Cart, error) {
	var env cartEnvelope
	body := map[string]int{"quantity": quantity}
	path := fmt.Sprintf("/store/carts/%s/line-items/%s", url.PathEscape(cartID), url.PathEscape(itemID))
	if err := c.do(ctx, http.MethodPost, path, body, &env); err != nil {
		return nil, err
	}
	return env.cart()
}

func (c *Client) DeleteLineItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error) {
	var env cartEnvelope
	path := fmt.Sprintf("/store/carts/%s/line-items/%s", url.PathEscape(cartID), url.PathEscape(itemID))
	if err := c.do(ctx, http.MethodDelete, path, nil, &env); err != nil {
		return nil, err
	}
	return env.cart()
}

func (c *Client) AddShippingMethod(ctx context.Context, cartID, optionID string) (*domain.Cart, error) {
	var env cartEnvelope
	body := map[string]string{"option_id": optionID}
	path := fmt.Sprintf("/store/carts/%s/shipping-methods", url.PathEscape(cartID))
	if err := c.do(ctx, http.MethodPost, path, body, &env); err != nil {
		return nil, err
	}
	return env.cart()
}

func (c *Client) ListShippingOptions(ctx context.Context, cartID string) ([]domain.ShippingOption, error) {
	var resp struct {
		ShippingOptions []domain.ShippingOption `json:"shipping_options"`
	}
	path := "/store/shipping-options?cart_id=" + url.QueryEscape(cartID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ShippingOptions, nil
}

func (c *Client) ApplyPromotions(ctx context.Context, cartID string, promoCodes []string) (*domain.Cart, error) {
	var env cartEnvelope
	body := map[string][]string{"promo_codes": promoCodes}
	path := fmt.Sprintf("/store/carts/%s/promotions", url.PathEscape(cartID))
	if err := c.do(ctx, http.MethodPost, path, body, &env); err != nil {
		return nil, err
	}
	return env.cart()
}

func (c *Client) RemovePromotions(ctx context.Context, cartID string, promoCodes []string) (*domain.Cart, error) {
	var env cartEnvelope
	body := map[string][]string{"promo_codes": promoCodes}
	path := fmt.Sprintf("/store/carts/%s/promotions", url.PathEscape(cartID))
	if err := c.do(ctx, http.MethodDelete, path, body, &env); err != nil {
		return nil, err
	}
	return env.cart()
}

func (c *Client) CreatePaymentCollection(ctx context.Context, cartID string) (*domain.PaymentCollection, error) {
	var resp struct {
		PaymentCollection *domain.PaymentCollection `json:"payment_collection"`
	}
	body := map[string]string{"cart_id": cartID}
	if err := c.do(ctx, http.MethodPost, "/store/payment-collections", body, &resp); err != nil {
		return nil, err
	}
	if resp.PaymentCollection == nil {
		return nil, status.Error(codes.Internal, "backend reply carried no payment collection")
	}
	return resp.PaymentCollection, nil
}

func (c *Client) InitiatePaymentSession(ctx context.Context, collectionID, providerID string, data map[string]any) (*domain.PaymentCollection, error) {
	var resp struct {
		PaymentCollection *domain.PaymentCollection `json:"payment_collection"`
	}
	body := map[string]any{"provider_id": providerID}
	if len(data) > 0 {
		body["data"] = data
	}
	path := fmt.Sprintf("/store/payment-collections/%s/payment-sessions", url.PathEscape(collectionID))
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.PaymentCollection == nil {
		return nil, status.Error(codes.Internal, "backend reply carried no payment collection")
	}
	return resp.PaymentCollection, nil
}

func (c *Client) ListPaymentProviders(ctx context.Context, regionID string) ([]domain.PaymentProvider, error) {
	var resp struct {
		PaymentProviders []domain.PaymentProvider `json:"payment_providers"`
	}
	path := "/store/payment-providers?region_id=" + url.QueryEscape(regionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.PaymentProviders, nil
}

// CompleteCart asks the backend to turn the cart into an order. A reply of
// type "cart" is returned as a result, not as an error.
func (c *Client) CompleteCart(ctx context.Context, cartID string) (*domain.CompletionResult, error) {
	var result domain.CompletionResult
	path := fmt.Sprintf("/store/carts/%s/complete", url.PathEscape(cartID))
	if err := c.do(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) login(email, password string) RefreshFunc {
	return func(ctx context.Context) (string, time.Time, error) {
		var resp struct {
			Token string `json:"token"`
		}
		body := map[string]string{"email": email, "password": password}
		if err := c.send(ctx, http.MethodPost, "/auth/customer/emailpass", body, "", &resp); err != nil {
			return "", time.Time{}, fmt.Errorf("customer login failed: %w", err)
		}
		return resp.Token, tokenExpiry(resp.Token, time.Now()), nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token := ""
	if c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		token = t
	}

	err := c.send(ctx, method, path, body, token, out)
	if c.tokens != nil && status.Code(err) == codes.Unauthenticated {
		c.tokens.Invalidate()
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body any, token string, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = b
	}

	respBody, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload, token)
	})
	if err != nil {
		c.logger.Debug("backend call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return status.Errorf(codes.Unavailable, "commerce backend unavailable: %v", err)
		}
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, token string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(publishableKeyHeader, c.publishableKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, status.Errorf(codes.Unavailable, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "read %s %s response: %v", method, path, err)
	}

	if resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		return nil, statusFromHTTP(resp.StatusCode, apiErr)
	}
	return data, nil
}
