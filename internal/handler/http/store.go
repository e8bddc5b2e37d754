package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/foodcart/internal/domain"
	"github.com/utafrali/foodcart/internal/notify"
	"github.com/utafrali/foodcart/internal/remote"
	"github.com/utafrali/foodcart/internal/store"
	apperrors "github.com/utafrali/foodcart/pkg/errors"
	"github.com/utafrali/foodcart/pkg/httputil"
	"github.com/utafrali/foodcart/pkg/validator"
)

// itemIDRule bounds item IDs taken from the URL.
const itemIDRule = "required,max=128,printascii"

// StoreHandler serves the cart store over HTTP.
type StoreHandler struct {
	store  *store.Store
	feed   *notify.Feed
	logger *slog.Logger
}

// NewStoreHandler creates a new store HTTP handler.
func NewStoreHandler(st *store.Store, feed *notify.Feed, logger *slog.Logger) *StoreHandler {
	return &StoreHandler{store: st, feed: feed, logger: logger}
}

// --- Request DTOs ---

// ReplaceCartRequest is the body of PUT /api/store/cart.
type ReplaceCartRequest struct {
	Items map[string]int `json:"items" validate:"dive,keys,required,max=128,endkeys,gte=0"`
}

// SetSessionRequest is the body of PUT /api/store/session.
type SetSessionRequest struct {
	Token string `json:"token" validate:"required,max=4096"`
}

// --- Response DTOs ---

// CartView is the cart as the UI renders it.
type CartView struct {
	Items     domain.Cart     `json:"items"`
	Lines     []domain.Line   `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// SnapshotView is the whole store state. The token itself is never echoed.
type SnapshotView struct {
	Catalog  domain.Catalog `json:"catalog"`
	Cart     CartView       `json:"cart"`
	SignedIn bool           `json:"signed_in"`
	URL      string         `json:"url"`
	LastSeq  uint64         `json:"last_notification_seq"`
}

// MutationView answers a cart change. The local change always stands; Sync
// tells whether the food API took it ("local" for anonymous sessions).
type MutationView struct {
	Cart  CartView `json:"cart"`
	Sync  string   `json:"sync"`
	Error string   `json:"error,omitempty"`
}

// TotalView answers GET /api/store/cart/total.
type TotalView struct {
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// SessionView answers session changes.
type SessionView struct {
	SignedIn bool `json:"signed_in"`
}

// NotificationsView answers GET /api/store/notifications.
type NotificationsView struct {
	Notifications []notify.Notification `json:"notifications"`
	LastSeq       uint64                `json:"last_seq"`
}

func cartView(snap store.Snapshot) CartView {
	return CartView{
		Items:     snap.Cart,
		Lines:     snap.Lines,
		Total:     snap.Total,
		ItemCount: snap.Cart.ItemCount(),
	}
}

// --- Handlers ---

// GetSnapshot handles GET /api/store
func (h *StoreHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	httputil.WriteData(w, http.StatusOK, SnapshotView{
		Catalog:  snap.Catalog,
		Cart:     cartView(snap),
		SignedIn: snap.Token != "",
		URL:      snap.BaseURL,
		LastSeq:  h.feed.LastSeq(),
	})
}

// GetCatalog handles GET /api/store/catalog
func (h *StoreHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.store.Catalog())
}

// RefreshCatalog handles POST /api/store/catalog/refresh
func (h *StoreHandler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.store.FetchFoodList(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, h.store.Catalog())
}

// GetCart handles GET /api/store/cart
func (h *StoreHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, cartView(h.store.Snapshot()))
}

// ReplaceCart handles PUT /api/store/cart. It only changes local state.
func (h *StoreHandler) ReplaceCart(w http.ResponseWriter, r *http.Request) {
	var req ReplaceCartRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}
	h.store.SetCart(domain.Cart(req.Items))
	httputil.WriteData(w, http.StatusOK, cartView(h.store.Snapshot()))
}

// ReloadCart handles POST /api/store/cart/reload
func (h *StoreHandler) ReloadCart(w http.ResponseWriter, r *http.Request) {
	token := h.store.Token()
	if token == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("no session token set"), h.logger)
		return
	}
	if err := h.store.LoadCartData(r.Context(), token); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, cartView(h.store.Snapshot()))
}

// GetTotal handles GET /api/store/cart/total
func (h *StoreHandler) GetTotal(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	httputil.WriteData(w, http.StatusOK, TotalView{Total: snap.Total, ItemCount: snap.Cart.ItemCount()})
}

// AddItem handles POST /api/store/cart/items/{itemId}
func (h *StoreHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	h.writeMutation(w, r, h.store.AddToCart(r.Context(), itemID))
}

// RemoveItem handles DELETE /api/store/cart/items/{itemId}
func (h *StoreHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	h.writeMutation(w, r, h.store.RemoveFromCart(r.Context(), itemID))
}

// SetSession handles PUT /api/store/session
func (h *StoreHandler) SetSession(w http.ResponseWriter, r *http.Request) {
	var req SetSessionRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}
	h.store.SetToken(req.Token)
	httputil.WriteData(w, http.StatusOK, SessionView{SignedIn: true})
}

// ClearSession handles DELETE /api/store/session. The cart is kept, as it is
// on sign-out in the browser.
func (h *StoreHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	h.store.SetToken("")
	httputil.WriteData(w, http.StatusOK, SessionView{SignedIn: false})
}

// ListNotifications handles GET /api/store/notifications?after=<seq>
func (h *StoreHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("after must be a non-negative integer"), h.logger)
			return
		}
		after = v
	}
	httputil.WriteData(w, http.StatusOK, NotificationsView{
		Notifications: h.feed.Since(after),
		LastSeq:       h.feed.LastSeq(),
	})
}

// --- Helpers ---

func (h *StoreHandler) itemID(w http.ResponseWriter, r *http.Request) (string, bool) {
	itemID := chi.URLParam(r, "itemId")
	if err := validator.Var(itemID, itemIDRule); err != nil {
		httputil.WriteValidationError(w, r, err)
		return "", false
	}
	return itemID, true
}

// writeMutation reports a cart change. Errors that stopped the change are
// written as errors; a failed sync still answers 200 because the local
// change was applied and the notification feed carries the failure.
func (h *StoreHandler) writeMutation(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperrors.ErrNotInCart) || errors.Is(err, apperrors.ErrInvalidInput) {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	view := MutationView{Cart: cartView(h.store.Snapshot()), Sync: remote.Outcome(err)}
	switch {
	case err != nil:
		view.Error = err.Error()
	case h.store.Token() == "":
		view.Sync = "local"
	}
	httputil.WriteData(w, http.StatusOK, view)
}
