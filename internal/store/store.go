// Package store holds the storefront's session-scoped cart state: the cart
// quantities, the product catalog and the session token. Cart mutations are
// applied locally first and then mirrored to the food API when a session
// token is present. Outcomes are reported through a notify.Notifier.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/utafrali/foodcart/internal/domain"
	"github.com/utafrali/foodcart/internal/notify"
	"github.com/utafrali/foodcart/internal/remote"
	"github.com/utafrali/foodcart/internal/session"
	apperrors "github.com/utafrali/foodcart/pkg/errors"
	"github.com/utafrali/foodcart/pkg/logger"
)

// User-facing notification messages.
const (
	MsgItemAdded        = "Item added to cart"
	MsgItemRemoved      = "Item removed from cart"
	MsgSomethingWrong   = "Something went wrong"
	MsgAddFailed        = "Failed to add item to cart"
	MsgRemoveFailed     = "Failed to remove item from cart"
	MsgNotInCart        = "Item is not in the cart"
	MsgFetchFoodsFailed = "Failed to fetch food list"
	MsgLoadCartFailed   = "Failed to load cart data"
)

// API is the food API surface the store depends on. *remote.Client
// implements it.
type API interface {
	AddToCart(ctx context.Context, token, itemID string) error
	RemoveFromCart(ctx context.Context, token, itemID string) error
	GetCart(ctx context.Context, token string) (domain.Cart, error)
	ListFoods(ctx context.Context) (domain.Catalog, error)
	BaseURL() string
}

// Options configures a Store. Zero values are usable.
type Options struct {
	// Tokens supplies the persisted token read by Init.
	Tokens session.TokenSource
	// Notifier receives user-facing messages.
	Notifier notify.Notifier
	Logger   *slog.Logger
	// ReconcileOnFailure reloads the server cart after a failed cart sync so
	// the local quantities converge to what the API holds.
	ReconcileOnFailure bool
}

// Store is the cart state container. It is safe for concurrent use.
type Store struct {
	api       API
	tokens    session.TokenSource
	notifier  notify.Notifier
	logger    *slog.Logger
	reconcile bool

	mu      sync.RWMutex
	cart    domain.Cart
	catalog domain.Catalog
	token   string

	items *sequencer

	initOnce sync.Once
	initErr  error
}

// New returns a store with an empty cart, an empty catalog and no token.
func New(api API, opts Options) *Store {
	s := &Store{
		api:       api,
		tokens:    opts.Tokens,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		reconcile: opts.ReconcileOnFailure,
		cart:      domain.NewCart(),
		catalog:   domain.Catalog{},
		items:     newSequencer(),
	}
	if s.tokens == nil {
		s.tokens = session.Static("")
	}
	if s.notifier == nil {
		s.notifier = notify.Discard
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	return s
}

// syncOp describes one cart mutation mirrored to the API.
type syncOp struct {
	name     string
	ok       string
	failed   string
	call     func(ctx context.Context, token, itemID string) error
	logEvent string
}

func (s *Store) addOp() syncOp {
	return syncOp{
		name:     opAddToCart,
		ok:       MsgItemAdded,
		failed:   MsgAddFailed,
		call:     s.api.AddToCart,
		logEvent: "error adding to cart",
	}
}

func (s *Store) removeOp() syncOp {
	return syncOp{
		name:     opRemoveFromCart,
		ok:       MsgItemRemoved,
		failed:   MsgRemoveFailed,
		call:     s.api.RemoveFromCart,
		logEvent: "error removing from cart",
	}
}

// AddToCart adds one unit of itemID to the local cart right away and, for a
// signed-in session, mirrors the change to the API. The local change is kept
// when the API call fails. The returned error has already been reported to
// the notifier.
func (s *Store) AddToCart(ctx context.Context, itemID string) error {
	if itemID == "" {
		return apperrors.InvalidInput("item id is required")
	}

	s.mu.Lock()
	s.cart[itemID]++
	storeCartItems.Set(float64(s.cart.ItemCount()))
	token := s.token
	var t *ticket
	if token != "" {
		t = s.items.enqueue(itemID)
	}
	s.mu.Unlock()

	if t == nil {
		storeOperations.WithLabelValues(opAddToCart, outcomeLocal).Inc()
		return nil
	}
	return s.sync(ctx, s.addOp(), token, itemID, t)
}

// RemoveFromCart removes one unit of itemID. An item that is absent or has no
// positive quantity is not removed: the call reports MsgNotInCart and returns
// an error matching apperrors.ErrNotInCart without contacting the API. A
// quantity that reaches zero stays in the cart as 0, as the API keeps it.
func (s *Store) RemoveFromCart(ctx context.Context, itemID string) error {
	if itemID == "" {
		return apperrors.InvalidInput("item id is required")
	}

	s.mu.Lock()
	if s.cart[itemID] <= 0 {
		token := s.token
		s.mu.Unlock()
		storeOperations.WithLabelValues(opRemoveFromCart, outcomeNotFound).Inc()
		s.notify(s.sessionContext(ctx, token), notify.Error(MsgNotInCart).ForItem(itemID))
		return apperrors.NotInCart(itemID)
	}
	s.cart[itemID]--
	storeCartItems.Set(float64(s.cart.ItemCount()))
	token := s.token
	var t *ticket
	if token != "" {
		t = s.items.enqueue(itemID)
	}
	s.mu.Unlock()

	if t == nil {
		storeOperations.WithLabelValues(opRemoveFromCart, outcomeLocal).Inc()
		return nil
	}
	return s.sync(ctx, s.removeOp(), token, itemID, t)
}

// sync waits for the item's earlier syncs, calls the API and reports the
// outcome. With reconcile enabled a failure is followed by a cart reload
// before the next sync for the item may start.
func (s *Store) sync(ctx context.Context, op syncOp, token, itemID string, t *ticket) error {
	ctx = s.sessionContext(ctx, token)

	if err := t.wait(ctx); err != nil {
		err = apperrors.Transport(op.name, err)
		s.report(ctx, op, itemID, err)
		return err
	}
	defer t.release()

	err := op.call(ctx, token, itemID)
	s.report(ctx, op, itemID, err)
	if err != nil && s.reconcile && ctx.Err() == nil {
		s.reconcileCart(ctx, token)
	}
	return err
}

func (s *Store) report(ctx context.Context, op syncOp, itemID string, err error) {
	storeOperations.WithLabelValues(op.name, remote.Outcome(err)).Inc()
	log := logger.WithContext(ctx, s.logger)

	switch {
	case err == nil:
		s.notify(ctx, notify.Success(op.ok).ForItem(itemID))
	case errors.Is(err, apperrors.ErrRejected):
		log.WarnContext(ctx, "cart change not accepted",
			slog.String("operation", op.name),
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
		s.notify(ctx, notify.Error(MsgSomethingWrong).ForItem(itemID))
	default:
		log.ErrorContext(ctx, op.logEvent,
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
		s.notify(ctx, notify.Error(op.failed).ForItem(itemID))
	}
}

// reconcileCart replaces the local cart with the server's after a failed
// sync, unless the session changed in the meantime.
func (s *Store) reconcileCart(ctx context.Context, token string) {
	if s.Token() != token {
		return
	}
	if err := s.LoadCartData(ctx, token); err != nil {
		return
	}
	logger.WithContext(ctx, s.logger).InfoContext(ctx, "cart reconciled with food API")
}

// TotalCartAmount returns Σ price × quantity over cart entries with a
// positive quantity whose item exists in the catalog.
func (s *Store) TotalCartAmount() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.TotalAmount(s.catalog)
}

// FetchFoodList replaces the catalog with the API's list. On failure the
// catalog is left as it was and MsgFetchFoodsFailed is reported.
func (s *Store) FetchFoodList(ctx context.Context) error {
	foods, err := s.api.ListFoods(ctx)
	storeOperations.WithLabelValues(opFetchFoodList, remote.Outcome(err)).Inc()
	if err != nil {
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "error fetching food list",
			slog.String("error", err.Error()),
		)
		s.notify(ctx, notify.Error(MsgFetchFoodsFailed))
		return err
	}

	s.mu.Lock()
	s.catalog = foods.Clone()
	s.mu.Unlock()
	storeCatalogSize.Set(float64(len(foods)))
	return nil
}

// LoadCartData replaces the whole local cart with the API's cart for token.
// On failure the cart is left as it was and MsgLoadCartFailed is reported.
func (s *Store) LoadCartData(ctx context.Context, token string) error {
	ctx = s.sessionContext(ctx, token)
	cart, err := s.api.GetCart(ctx, token)
	storeOperations.WithLabelValues(opLoadCartData, remote.Outcome(err)).Inc()
	if err != nil {
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "error loading cart data",
			slog.String("error", err.Error()),
		)
		s.notify(ctx, notify.Error(MsgLoadCartFailed))
		return err
	}

	s.mu.Lock()
	s.cart = cart.Clone()
	storeCartItems.Set(float64(s.cart.ItemCount()))
	s.mu.Unlock()
	return nil
}

// Init runs the startup sequence once: load the catalog, then read the
// persisted token and, when there is one, adopt it and load its cart.
// Failures are reported like any other operation and leave the store usable;
// the joined error is returned to every caller.
func (s *Store) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.init(ctx)
	})
	return s.initErr
}

func (s *Store) init(ctx context.Context) error {
	fetchErr := s.FetchFoodList(ctx)

	token, err := s.tokens.Token(ctx)
	if err != nil {
		logger.WithContext(ctx, s.logger).WarnContext(ctx, "session token unavailable, continuing anonymously",
			slog.String("error", err.Error()),
		)
		return errors.Join(fetchErr, err)
	}
	if token == "" {
		return fetchErr
	}

	s.SetToken(token)
	return errors.Join(fetchErr, s.LoadCartData(ctx, token))
}

// Catalog returns a copy of the product list.
func (s *Store) Catalog() domain.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Clone()
}

// Cart returns a copy of the cart quantities.
func (s *Store) Cart() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

// SetCart replaces the local cart without contacting the API.
func (s *Store) SetCart(cart domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = cart.Clone()
	storeCartItems.Set(float64(s.cart.ItemCount()))
}

// Token returns the session token, "" for an anonymous session.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken replaces the session token. It is never written back to the
// token source.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// BaseURL returns the food API root.
func (s *Store) BaseURL() string {
	return s.api.BaseURL()
}

// Snapshot is a consistent view of the store.
type Snapshot struct {
	Catalog domain.Catalog
	Cart    domain.Cart
	Lines   []domain.Line
	Token   string
	Total   decimal.Decimal
	BaseURL string
}

// Snapshot reads every piece of state under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Catalog: s.catalog.Clone(),
		Cart:    s.cart.Clone(),
		Lines:   s.cart.Lines(s.catalog),
		Token:   s.token,
		Total:   s.cart.TotalAmount(s.catalog),
		BaseURL: s.api.BaseURL(),
	}
}

func (s *Store) sessionContext(ctx context.Context, token string) context.Context {
	if fp := session.Fingerprint(token); fp != "" {
		return logger.WithSession(ctx, fp)
	}
	return ctx
}

func (s *Store) notify(ctx context.Context, n notify.Notification) {
	s.notifier.Notify(ctx, n)
}
