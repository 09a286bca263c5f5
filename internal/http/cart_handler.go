package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/cartstore"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/lineitem"
	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/totals"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	store   *cartstore.Store
	items   *lineitem.Mutator
	timeout time.Duration
}

func NewCartHandler(store *cartstore.Store, items *lineitem.Mutator, timeout time.Duration) *CartHandler {
	return &CartHandler{
		store:   store,
		items:   items,
		timeout: timeout,
	}
}

type CreateCartRequestDTO struct {
	RegionID string `json:"region_id"`
}

type UpdateCartRequestDTO struct {
	Email    *string `json:"email"`
	RegionID *string `json:"region_id"`
}

type AddItemRequestDTO struct {
	RegionID  string `json:"region_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type SelectItemRequestDTO struct {
	Selected bool `json:"selected"`
}

type PromotionsRequestDTO struct {
	Codes []string `json:"codes"`
}

type ItemDTO struct {
	domain.LineItem
	Selected bool `json:"selected"`
	InFlight bool `json:"in_flight"`
}

type CartResponse struct {
	Cart         *domain.Cart   `json:"cart"`
	Items        []ItemDTO      `json:"items"`
	Totals       *totals.Result `json:"totals,omitempty"`
	DisplayTotal string         `json:"display_total,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart := h.store.Retrieve(ctx, getSessionID(r.Context()), "")
	if cart == nil {
		respondJSON(w, http.StatusOK, CartResponse{})
		return
	}
	respondJSON(w, http.StatusOK, h.present(h.items.View(cart)))
}

func (h *CartHandler) CreateCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateCartRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RegionID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_region_id", "region_id is required")
		return
	}

	cart, err := h.store.GetOrCreate(ctx, getSessionID(r.Context()), req.RegionID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.present(h.items.View(cart)))
}

func (h *CartHandler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateCartRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	cart, err := h.store.Update(ctx, getSessionID(r.Context()), domain.CartUpdate{
		Email:    req.Email,
		RegionID: req.RegionID,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.present(h.items.View(cart)))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.VariantID == "" {
		respondError(w, http.StatusBadRequest, "invalid_variant_id", "variant_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	cart, err := h.store.AddItem(ctx, getSessionID(r.Context()), req.RegionID, req.VariantID, req.Quantity)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.present(h.items.View(cart)))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	h.mutateItem(w, r, func(ctx context.Context, v *lineitem.View, itemID string) error {
		return v.UpdateQuantity(ctx, itemID, req.Quantity)
	})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, func(ctx context.Context, v *lineitem.View, itemID string) error {
		return v.RemoveItem(ctx, itemID)
	})
}

func (h *CartHandler) SelectItem(w http.ResponseWriter, r *http.Request) {
	var req SelectItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	h.mutateItem(w, r, func(_ context.Context, v *lineitem.View, itemID string) error {
		return v.SetSelected(itemID, req.Selected)
	})
}

// mutateItem runs fn against the session cart's line item view. Retries
// inside the view sleep between attempts, so it runs under the request
// context rather than the shorter backend timeout.
func (h *CartHandler) mutateItem(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, v *lineitem.View, itemID string) error) {
	ctx := r.Context()
	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}

	cart := h.store.Retrieve(ctx, getSessionID(ctx), "")
	if cart == nil {
		handleError(w, domain.ErrNoCart)
		return
	}

	view := h.items.View(cart)
	if err := fn(ctx, view, itemID); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.present(view))
}

func (h *CartHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart := h.store.Retrieve(ctx, getSessionID(r.Context()), "")
	if cart == nil {
		handleError(w, domain.ErrNoCart)
		return
	}
	view := h.items.View(cart)
	result := totals.Calculate(view.Items(), view.Selection(), totals.AggregatesOf(cart))
	respondJSON(w, http.StatusOK, result)
}

func (h *CartHandler) ApplyPromotions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PromotionsRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Codes) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_codes", "at least one promotion code is required")
		return
	}

	cart, err := h.store.ApplyPromotions(ctx, getSessionID(r.Context()), req.Codes)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.present(h.items.View(cart)))
}

func (h *CartHandler) RemovePromotion(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	code := chi.URLParam(r, "code")
	cart, err := h.store.RemovePromotions(ctx, getSessionID(r.Context()), []string{code})
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.present(h.items.View(cart)))
}

func (h *CartHandler) present(view *lineitem.View) CartResponse {
	cart := view.Cart()
	if cart == nil {
		return CartResponse{}
	}
	items := make([]ItemDTO, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, ItemDTO{LineItem: item, Selected: item.Selected, InFlight: view.InFlight(item.ID)})
	}
	result := totals.Calculate(cart.Items, view.Selection(), totals.AggregatesOf(cart))
	return CartResponse{
		Cart:         cart,
		Items:        items,
		Totals:       &result,
		DisplayTotal: domain.FormatAmount(result.Total, cart.CurrencyCode),
	}
}
