// Package remotetest runs an in-process food API for tests. It keeps carts
// per token the way the real service keeps them per user.
package remotetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/foodcart/internal/domain"
)

// Failure selects how an endpoint misbehaves.
type Failure int

const (
	// FailNone serves the request normally.
	FailNone Failure = iota
	// FailReject answers 200 with success=false.
	FailReject
	// FailServerError answers 500.
	FailServerError
	// FailMalformed answers 200 with a body that is not JSON.
	FailMalformed
	// FailHangup closes the connection without answering.
	FailHangup
)

// Paths served by the fake.
const (
	PathCartAdd    = "/api/cart/add"
	PathCartRemove = "/api/cart/remove"
	PathCartGet    = "/api/cart/get"
	PathFoodList   = "/api/food/list"
)

// Request is one call observed by the fake.
type Request struct {
	Path   string
	Token  string
	ItemID string
}

// Server is a fake food API backed by httptest.Server.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	foods    domain.Catalog
	carts    map[string]domain.Cart
	failures map[string]Failure
	delays   map[string]time.Duration
	requests []Request
}

// New starts a fake API that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		foods:    domain.Catalog{},
		carts:    make(map[string]domain.Cart),
		failures: make(map[string]Failure),
		delays:   make(map[string]time.Duration),
	}

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("API Working"))
	})
	r.Get(PathFoodList, s.listFoods)
	r.Post(PathCartAdd, s.addToCart)
	r.Post(PathCartRemove, s.removeFromCart)
	r.Post(PathCartGet, s.getCart)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// SetFoods replaces the catalog.
func (s *Server) SetFoods(foods ...domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foods = append(domain.Catalog{}, foods...)
}

// AddSession registers token with an initial cart.
func (s *Server) AddSession(token string, cart domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[token] = cart.Clone()
}

// Cart returns a copy of the server-side cart for token.
func (s *Server) Cart(token string) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carts[token].Clone()
}

// Fail makes path misbehave until reset with FailNone.
func (s *Server) Fail(path string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = f
}

// Delay holds every answer on path for d.
func (s *Server) Delay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[path] = d
}

// Requests returns the calls observed so far, in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Calls counts the requests observed on path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

type itemBody struct {
	ItemID string `json:"itemId"`
}

// begin records the request and reports whether the handler should go on.
func (s *Server) begin(w http.ResponseWriter, r *http.Request, itemID string) bool {
	s.mu.Lock()
	s.requests = append(s.requests, Request{Path: r.URL.Path, Token: r.Header.Get("token"), ItemID: itemID})
	failure := s.failures[r.URL.Path]
	delay := s.delays[r.URL.Path]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return false
		}
	}

	switch failure {
	case FailReject:
		writeJSON(w, map[string]any{"success": false, "message": "Error"})
		return false
	case FailServerError:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return false
	case FailMalformed:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("<html>oops"))
		return false
	case FailHangup:
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return false
			}
		}
		http.Error(w, "hangup unsupported", http.StatusInternalServerError)
		return false
	}
	return true
}

func (s *Server) listFoods(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r, "") {
		return
	}
	s.mu.Lock()
	foods := s.foods.Clone()
	s.mu.Unlock()
	writeJSON(w, map[string]any{"success": true, "data": foods})
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(cart domain.Cart, id string) string {
		cart[id]++
		return "Added To Cart"
	})
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(cart domain.Cart, id string) string {
		if cart[id] > 0 {
			cart[id]--
		}
		return "Removed From Cart"
	})
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, apply func(domain.Cart, string) string) {
	var body itemBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	if !s.begin(w, r, body.ItemID) {
		return
	}

	s.mu.Lock()
	cart, ok := s.carts[r.Header.Get("token")]
	var msg string
	if ok {
		msg = apply(cart, body.ItemID)
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, map[string]any{"success": false, "message": "Not Authorized Login Again"})
		return
	}
	writeJSON(w, map[string]any{"success": true, "message": msg})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r, "") {
		return
	}
	s.mu.Lock()
	cart, ok := s.carts[r.Header.Get("token")]
	cart = cart.Clone()
	s.mu.Unlock()

	if !ok {
		writeJSON(w, map[string]any{"success": false, "message": "Not Authorized Login Again"})
		return
	}
	writeJSON(w, map[string]any{"success": true, "cartData": cart})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
