package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/foodcart/internal/domain"
	"github.com/utafrali/foodcart/internal/notify"
	"github.com/utafrali/foodcart/internal/remote"
	"github.com/utafrali/foodcart/internal/remote/remotetest"
	"github.com/utafrali/foodcart/internal/session"
	apperrors "github.com/utafrali/foodcart/pkg/errors"
	"github.com/utafrali/foodcart/pkg/httpclient"
	"github.com/utafrali/foodcart/pkg/logger"
)

// --- Mock API ---

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) AddToCart(ctx context.Context, token, itemID string) error {
	return m.Called(ctx, token, itemID).Error(0)
}

func (m *mockAPI) RemoveFromCart(ctx context.Context, token, itemID string) error {
	return m.Called(ctx, token, itemID).Error(0)
}

func (m *mockAPI) GetCart(ctx context.Context, token string) (domain.Cart, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Cart), args.Error(1)
}

func (m *mockAPI) ListFoods(ctx context.Context) (domain.Catalog, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Catalog), args.Error(1)
}

func (m *mockAPI) BaseURL() string {
	return "http://localhost:4000"
}

// --- Test Helpers ---

func product(id string, price int64) domain.Product {
	return domain.Product{ID: id, Name: "food " + id, Price: decimal.NewFromInt(price)}
}

func newTestStore(api API, opts Options) (*Store, *notify.Feed) {
	feed := notify.NewFeed(50)
	opts.Notifier = feed
	opts.Logger = logger.Discard()
	return New(api, opts), feed
}

// newRemoteStore wires a store to an in-process food API through the real client.
func newRemoteStore(t *testing.T, opts Options) (*Store, *notify.Feed, *remotetest.Server) {
	t.Helper()
	api := remotetest.New(t)
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 2 * time.Second
	client, err := remote.NewClient(api.URL, httpclient.New(cfg), logger.Discard())
	require.NoError(t, err)
	s, feed := newTestStore(client, opts)
	return s, feed, api
}

func messages(feed *notify.Feed) []string {
	var out []string
	for _, n := range feed.Since(0) {
		out = append(out, string(n.Level)+": "+n.Message)
	}
	return out
}

// --- Tests ---

func TestNew_StartsEmpty(t *testing.T) {
	s, _ := newTestStore(&mockAPI{}, Options{})

	assert.Empty(t, s.Cart())
	assert.NotNil(t, s.Cart())
	assert.Empty(t, s.Catalog())
	assert.Empty(t, s.Token())
	assert.True(t, s.TotalCartAmount().IsZero())
	assert.Equal(t, "http://localhost:4000", s.BaseURL())
}

func TestAddToCart_AnonymousIsLocalOnly(t *testing.T) {
	api := &mockAPI{}
	s, feed := newTestStore(api, Options{})
	ctx := context.Background()

	require.NoError(t, s.AddToCart(ctx, "x"))
	assert.Equal(t, domain.Cart{"x": 1}, s.Cart())

	require.NoError(t, s.AddToCart(ctx, "x"))
	assert.Equal(t, domain.Cart{"x": 2}, s.Cart())

	api.AssertNotCalled(t, "AddToCart", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, feed.Since(0))
}

func TestAddToCart_EmptyItemID(t *testing.T) {
	s, _ := newTestStore(&mockAPI{}, Options{})

	err := s.AddToCart(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, s.Cart())
}

func TestAddToCart_SyncsWithToken(t *testing.T) {
	s, feed, api := newRemoteStore(t, Options{})
	api.AddSession("tok", domain.NewCart())
	s.SetToken("tok")

	require.NoError(t, s.AddToCart(context.Background(), "a"))

	assert.Equal(t, domain.Cart{"a": 1}, s.Cart())
	assert.Equal(t, domain.Cart{"a": 1}, api.Cart("tok"))
	assert.Equal(t, []string{"success: Item added to cart"}, messages(feed))
}

func TestAddToCart_RejectedKeepsLocalChange(t *testing.T) {
	s, feed, api := newRemoteStore(t, Options{})
	s.SetToken("unknown")

	err := s.AddToCart(context.Background(), "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRejected)

	assert.Equal(t, domain.Cart{"a": 1}, s.Cart())
	assert.Equal(t, 1, api.Calls(remotetest.PathCartAdd))
	assert.Equal(t, []string{"error: Something went wrong"}, messages(feed))
}

func TestAddToCart_TransportFailureKeepsLocalChange(t *testing.T) {
	s, feed, api := newRemoteStore(t, Options{})
	api.AddSession("tok", domain.NewCart())
	api.Fail(remotetest.PathCartAdd, remotetest.FailHangup)
	s.SetToken("tok")

	err := s.AddToCart(context.Background(), "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransport)

	assert.Equal(t, domain.Cart{"a": 1}, s.Cart())
	assert.Equal(t, domain.NewCart(), api.Cart("tok"))
	assert.Equal(t, []string{"error: Failed to add item to cart"}, messages(feed))
}

func TestAddToCart_ServerErrorReportsFailure(t *testing.T) {
	s, feed, api := newRemoteStore(t, Options{})
	api.AddSession("tok", domain.NewCart())
	api.Fail(remotetest.PathCartAdd, remotetest.FailServerError)
	s.SetToken("tok")

	require.Error(t, s.AddToCart(context.Background(), "a"))
	assert.Equal(t, []string{"error: Failed to add item to cart"}, messages(feed))
}

func TestAddToCart_ReconcileOnFailure(t *testing.T) {
	s, feed, api := newRemoteStore(t, Options{ReconcileOnFailure: true})
	api.AddSession("tok", domain.Cart{"b": 3})
	api.Fail(remotetest.PathCartAdd, remotetest.FailServerError)
	s.SetToken("tok")

	require.Error(t, s.AddToCart(context.Background(), "a"))

	assert.Equal(t, domain.Cart{"b": 3}, s.Cart())
	assert.Equal(t, 1, api.Calls(remotetest.PathCartGet))
	assert.Equal(t, []string{"error: Failed to add item to cart"}, messages(feed))
}

func TestAddToCart_ReconcileSkippedAfterTokenChange(t *testing.T) {
	api := &mockAPI{}
	s, _ := newTestStore(api, Options{ReconcileOnFailure: true})
	s.SetToken("old")

	api.On("AddToCart", mock.Anything, "old", "a").
		Run(func(mock.Arguments) { s.SetToken("new") }).
		Return(apperrors.Transport("add to cart", errors.New("boom")))

	require.Error(t, s.AddToCart(context.Background(), "a"))
	api.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything)
	assert.Equal(t, domain.Cart{"a": 1}, s.Cart())
}

func TestRemoveFromCart_Decrements(t *testing.T) {
	s, feed := newTestStore(&mockAPI{}, Options{})
	s.SetCart(domain.Cart{"x": 2})

	require.NoError(t, s.RemoveFromCart(context.Background(), "x"))
	assert.Equal(t, domain.Cart{"x": 1}, s.Cart())

	require.NoError(t, s.RemoveFromCart(context.Background(), "x"))
	assert.Equal(t, domain.Cart{"x": 0}, s.Cart())
	assert.Empty(t, feed.Since(0))
}

func TestRemoveFromCart_NotInCartIsRejected(t *testing.T) {
	tests := []struct {
		name string
		cart domain.Cart
	}{
		{"absent", domain.Cart{"y": 1}},
		{"zero", domain.Cart{"x": 0}},
		{"negative", domain.Cart{"x": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{}
			s, feed := newTestStore(api, Options{})
			s.SetCart(tt.cart)
			s.SetToken("tok")

			err := s.RemoveFromCart(context.Background(), "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrNotInCart)

			assert.Equal(t, tt.cart, s.Cart())
			api.AssertNotCalled(t, "RemoveFromCart", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, []string{"error: Item is not in the cart"}, messages(feed))
		})
	}
}

func TestRemoveFromCart_SyncsWithToken(t *testing.T) {
	s, feed, api := newRemoteStore(t, Options{})
	api.AddSession("tok", domain.Cart{"a": 2})
	s.SetToken("tok")
	s.SetCart(domain.Cart{"a": 2})

	require.NoError(t, s.RemoveFromCart(context.Background(), "a"))

	assert.Equal(t, domain.Cart{"a": 1}, s.Cart())
	assert.Equal(t, domain.Cart{"a": 1}, api.Cart("tok"))
	assert.Equal(t, []string{"success: Item removed from cart"}, messages(feed))
}

func TestRemoveFromCart_FailureMessages(t *testing.T) {
	api := &mockAPI{}
	s, feed := newTestStore(api, Options{})
	s.SetToken("tok")
	s.SetCart(domain.Cart{"a": 3})

	api.On("RemoveFromCart", mock.Anything, "tok", "a").Return(apperrors.Rejected("remove from cart", "")).Once()
	api.On("RemoveFromCart", mock.Anything, "tok", "a").Return(apperrors.Transport("remove from cart", errors.New("reset"))).Once()

	require.Error(t, s.RemoveFromCart(context.Background(), "a"))
	require.Error(t, s.RemoveFromCart(context.Background(), "a"))

	assert.Equal(t, domain.Cart{"a": 1}, s.Cart())
	assert.Equal(t, []string{
		"error: Something went wrong",
		"error: Failed to remove item from cart",
	}, messages(feed))
	api.AssertExpectations(t)
}

func TestTotalCartAmount(t *testing.T) {
	api := &mockAPI{}
	api.On("ListFoods", mock.Anything).Return(domain.Catalog{product("a", 5), product("b", 3)}, nil)
	s, _ := newTestStore(api, Options{})
	require.NoError(t, s.FetchFoodList(context.Background()))

	s.SetCart(domain.Cart{"a": 2, "b": 1, "c": 4})
	assert.True(t, s.TotalCartAmount().Equal(decimal.NewFromInt(13)), s.TotalCartAmount().String())

	s.SetCart(domain.Cart{"a": 0, "b": -2, "c": 4})
	assert.True(t, s.TotalCartAmount().IsZero())
}

func TestFetchFoodList_ReplacesCatalog(t *testing.T) {
	s, _, api := newRemoteStore(t, Options{})
	api.SetFoods(product("a", 5), product("b", 3))
	require.NoError(t, s.FetchFoodList(context.Background()))
	require.Len(t, s.Catalog(), 2)

	api.SetFoods(product("c", 7))
	require.NoError(t, s.FetchFoodList(context.Background()))

	catalog := s.Catalog()
	require.Len(t, catalog, 1)
	assert.Equal(t, "c", catalog[0].ID)
	_, found := catalog.Find("a")
	assert.False(t, found)
}

func TestFetchFoodList_FailureLeavesCatalog(t *testing.T) {
	for _, failure := range []remotetest.Failure{remotetest.FailReject, remotetest.FailServerError, remotetest.FailHangup} {
		s, feed, api := newRemoteStore(t, Options{})
		api.SetFoods(product("a", 5))
		require.NoError(t, s.FetchFoodList(context.Background()))

		api.SetFoods(product("z", 1))
		api.Fail(remotetest.PathFoodList, failure)
		require.Error(t, s.FetchFoodList(context.Background()))

		catalog := s.Catalog()
		require.Len(t, catalog, 1)
		assert.Equal(t, "a", catalog[0].ID)
		assert.Equal(t, []string{"error: Failed to fetch food list"}, messages(feed))
	}
}

func TestLoadCartData_ReplacesWholesale(t *testing.T) {
	s, _, api := newRemoteStore(t, Options{})
	api.AddSession("tok", domain.Cart{"b": 2})
	s.SetCart(domain.Cart{"a": 5})

	require.NoError(t, s.LoadCartData(context.Background(), "tok"))
	assert.Equal(t, domain.Cart{"b": 2}, s.Cart())
}

func TestLoadCartData_NilCartIsEmpty(t *testing.T) {
	api := &mockAPI{}
	api.On("GetCart", mock.Anything, "tok").Return(domain.NewCart(), nil)
	s, _ := newTestStore(api, Options{})
	s.SetCart(domain.Cart{"a": 1})

	require.NoError(t, s.LoadCartData(context.Background(), "tok"))
	assert.Empty(t, s.Cart())
}

func TestLoadCartData_FailureLeavesCart(t *testing.T) {
	s, feed, api := newRemoteStore(t, Options{})
	s.SetCart(domain.Cart{"a": 5})

	require.Error(t, s.LoadCartData(context.Background(), "nobody"))
	assert.Equal(t, domain.Cart{"a": 5}, s.Cart())

	api.AddSession("tok", domain.Cart{"b": 1})
	api.Fail(remotetest.PathCartGet, remotetest.FailMalformed)
	require.Error(t, s.LoadCartData(context.Background(), "tok"))
	assert.Equal(t, domain.Cart{"a": 5}, s.Cart())

	assert.Equal(t, []string{
		"error: Failed to load cart data",
		"error: Failed to load cart data",
	}, messages(feed))
}

func TestInit_CatalogThenStoredCart(t *testing.T) {
	s, feed, api := newRemoteStore(t, Options{Tokens: session.Static("tok")})
	api.SetFoods(product("a", 5), product("b", 3))
	api.AddSession("tok", domain.Cart{"a": 2, "b": 1, "c": 4})

	require.NoError(t, s.Init(context.Background()))

	assert.Equal(t, "tok", s.Token())
	assert.Len(t, s.Catalog(), 2)
	assert.Equal(t, domain.Cart{"a": 2, "b": 1, "c": 4}, s.Cart())
	assert.True(t, s.TotalCartAmount().Equal(decimal.NewFromInt(13)))
	assert.Empty(t, feed.Since(0))

	reqs := api.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, remotetest.PathFoodList, reqs[0].Path)
	assert.Equal(t, remotetest.PathCartGet, reqs[1].Path)
	assert.Equal(t, "tok", reqs[1].Token)
}

func TestInit_RunsOnce(t *testing.T) {
	s, _, api := newRemoteStore(t, Options{})

	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, s.Init(context.Background()))
	assert.Equal(t, 1, api.Calls(remotetest.PathFoodList))
	assert.Equal(t, 0, api.Calls(remotetest.PathCartGet))
	assert.Empty(t, s.Token())
}

type failingTokens struct{}

func (failingTokens) Token(context.Context) (string, error) {
	return "", errors.New("storage offline")
}

func TestInit_TokenSourceErrorIsAnonymous(t *testing.T) {
	s, _, api := newRemoteStore(t, Options{Tokens: failingTokens{}})
	api.SetFoods(product("a", 5))

	err := s.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage offline")
	assert.Empty(t, s.Token())
	assert.Len(t, s.Catalog(), 1)
	assert.Equal(t, 0, api.Calls(remotetest.PathCartGet))
}

func TestInit_CatalogFailureStillLoadsCart(t *testing.T) {
	s, feed, api := newRemoteStore(t, Options{Tokens: session.Static("tok")})
	api.AddSession("tok", domain.Cart{"a": 1})
	api.Fail(remotetest.PathFoodList, remotetest.FailServerError)

	err := s.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.Cart{"a": 1}, s.Cart())
	assert.Equal(t, []string{"error: Failed to fetch food list"}, messages(feed))
}

func TestSetters_CopyState(t *testing.T) {
	s, _ := newTestStore(&mockAPI{}, Options{})

	in := domain.Cart{"a": 1}
	s.SetCart(in)
	in["a"] = 9
	assert.Equal(t, 1, s.Cart().Quantity("a"))

	out := s.Cart()
	out["a"] = 7
	assert.Equal(t, 1, s.Cart().Quantity("a"))

	s.SetToken("t1")
	assert.Equal(t, "t1", s.Token())
	s.SetToken("")
	assert.Empty(t, s.Token())
}

func TestSnapshot(t *testing.T) {
	api := &mockAPI{}
	api.On("ListFoods", mock.Anything).Return(domain.Catalog{product("a", 5), product("b", 3)}, nil)
	s, _ := newTestStore(api, Options{})
	require.NoError(t, s.FetchFoodList(context.Background()))
	s.SetCart(domain.Cart{"b": 1, "a": 2})
	s.SetToken("tok")

	snap := s.Snapshot()
	assert.Equal(t, "tok", snap.Token)
	assert.True(t, snap.Total.Equal(decimal.NewFromInt(13)))
	require.Len(t, snap.Lines, 2)
	assert.Equal(t, "a", snap.Lines[0].Product.ID)
	assert.True(t, snap.Lines[0].Subtotal.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "http://localhost:4000", snap.BaseURL)
}

func TestAddToCart_ConcurrentNoLostUpdates(t *testing.T) {
	s, _, api := newRemoteStore(t, Options{})
	api.AddSession("tok", domain.NewCart())
	s.SetToken("tok")

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AddToCart(context.Background(), "a"))
		}()
	}
	wg.Wait()

	assert.Equal(t, n, s.Cart().Quantity("a"))
	assert.Equal(t, n, api.Cart("tok").Quantity("a"))
	assert.Equal(t, 0, s.items.pending())
}

func TestSync_SameItemReachesAPIInCallOrder(t *testing.T) {
	api := &mockAPI{}
	s, _ := newTestStore(api, Options{})
	s.SetToken("tok")
	s.SetCart(domain.Cart{"a": 5})

	var mu sync.Mutex
	var order []string
	release := make(chan struct{})
	api.On("AddToCart", mock.Anything, "tok", "a").Run(func(mock.Arguments) {
		<-release
		mu.Lock()
		order = append(order, "add")
		mu.Unlock()
	}).Return(nil)
	api.On("RemoveFromCart", mock.Anything, "tok", "a").Run(func(mock.Arguments) {
		mu.Lock()
		order = append(order, "remove")
		mu.Unlock()
	}).Return(nil)

	addDone := make(chan error, 1)
	go func() { addDone <- s.AddToCart(context.Background(), "a") }()
	require.Eventually(t, func() bool { return s.Cart().Quantity("a") == 6 }, time.Second, time.Millisecond)

	removeDone := make(chan error, 1)
	go func() { removeDone <- s.RemoveFromCart(context.Background(), "a") }()
	require.Eventually(t, func() bool { return s.Cart().Quantity("a") == 5 }, time.Second, time.Millisecond)

	// The remove is applied locally but waits for the add to reach the API.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, order)
	mu.Unlock()

	close(release)
	require.NoError(t, <-addDone)
	require.NoError(t, <-removeDone)
	assert.Equal(t, []string{"add", "remove"}, order)
}

func TestSync_CancelledWhileQueued(t *testing.T) {
	api := &mockAPI{}
	s, feed := newTestStore(api, Options{})
	s.SetToken("tok")

	release := make(chan struct{})
	api.On("AddToCart", mock.Anything, "tok", "a").Run(func(mock.Arguments) { <-release }).Return(nil).Once()
	api.On("AddToCart", mock.Anything, "tok", "a").Return(nil)

	first := make(chan error, 1)
	go func() { first <- s.AddToCart(context.Background(), "a") }()
	require.Eventually(t, func() bool { return s.Cart().Quantity("a") == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.AddToCart(ctx, "a")
	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, s.Cart().Quantity("a"))

	close(release)
	require.NoError(t, <-first)
	require.Eventually(t, func() bool { return s.items.pending() == 0 }, time.Second, time.Millisecond)

	require.NoError(t, s.AddToCart(context.Background(), "a"))
	api.AssertNumberOfCalls(t, "AddToCart", 2)
	assert.Contains(t, messages(feed), "error: Failed to add item to cart")
}
