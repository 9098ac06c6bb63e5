package cart_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Storefront/internal/cart"
)

// fakeDisplay records presenter pushes.
type fakeDisplay struct {
	mu      sync.Mutex
	counts  []int
	visible []bool
}

func (d *fakeDisplay) SetCount(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts = append(d.counts, n)
}

func (d *fakeDisplay) SetVisible(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visible = append(d.visible, v)
}

func (d *fakeDisplay) last(t *testing.T) (int, bool) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.counts) == 0 || len(d.visible) == 0 {
		t.Fatalf("display never updated")
	}
	return d.counts[len(d.counts)-1], d.visible[len(d.visible)-1]
}

func (d *fakeDisplay) pushes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.counts)
}

// fakeRemote is a stub of the remote cart service.
type fakeRemote struct {
	mu          sync.Mutex
	cart        map[string]any
	getHits     int
	addStatus   int
	addBody     string
	lastAddBody []byte
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		cart:      map[string]any{"token": "tok", "items": []any{}, "item_count": 0, "total_price": 0},
		addStatus: http.StatusOK,
		addBody:   `{"items":[{"id":123,"quantity":2,"key":"line-1","product_title":"Mug"}]}`,
	}
}

func (f *fakeRemote) setCart(c map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cart = c
}

func (f *fakeRemote) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getHits
}

func (f *fakeRemote) addBodySent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAddBody
}

func (f *fakeRemote) server(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /cart.js", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.getHits++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.cart)
	})

	mux.HandleFunc("POST /cart/add.js", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastAddBody = body
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.addStatus)
		_, _ = w.Write([]byte(f.addBody))
	})

	mux.HandleFunc("POST /cart/change.js", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID       string `json:"id"`
			Quantity int    `json:"quantity"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		defer f.mu.Unlock()
		if req.Quantity == 0 {
			f.cart["items"] = []any{}
			f.cart["item_count"] = 0
		} else {
			f.cart["items"] = []any{
				map[string]any{"key": req.ID, "product_title": "Mug", "quantity": req.Quantity},
			}
			f.cart["item_count"] = req.Quantity
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.cart)
	})

	mux.HandleFunc("POST /cart/update.js", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Attributes map[string]string `json:"attributes"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.cart["attributes"] = req.Attributes
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.cart)
	})

	mux.HandleFunc("POST /cart/clear.js", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cart["items"] = []any{}
		f.cart["item_count"] = 0
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.cart)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, remote *httptest.Server) (*cart.Client, *fakeDisplay) {
	t.Helper()

	p := cart.NewPresenter("")
	d := &fakeDisplay{}
	p.Register("header", d)

	return cart.NewClient(remote.URL, p, zap.NewNop()), d
}

func TestClient_GetCartReplacesSnapshot(t *testing.T) {
	remote := newFakeRemote()
	remote.setCart(map[string]any{
		"token":      "tok",
		"item_count": 3,
		"items": []any{
			map[string]any{"key": "line-1", "product_title": "Mug", "quantity": 3},
		},
	})

	c, _ := newTestClient(t, remote.server(t))

	snap, err := c.GetCart(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "Mug", snap.Items[0].ProductTitle)
	assert.Equal(t, snap, c.Snapshot())
}

func TestClient_GetCartTransportFailureKeepsSnapshot(t *testing.T) {
	remote := newFakeRemote()
	remote.setCart(map[string]any{
		"items": []any{map[string]any{"key": "line-1", "product_title": "Mug", "quantity": 1}},
	})

	ts := remote.server(t)
	c, _ := newTestClient(t, ts)

	_, err := c.GetCart(context.Background())
	require.NoError(t, err)
	before := c.Snapshot()

	ts.Close()

	_, err = c.GetCart(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cart.ErrCartUnavailable)
	assert.Equal(t, before, c.Snapshot(), "failed fetch must leave prior snapshot untouched")
}

func TestClient_GetCartSchemaErrorKeepsSnapshot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// A line item without a key violates the contract.
		_, _ = w.Write([]byte(`{"items":[{"product_title":"Mug","quantity":1}]}`))
	}))
	t.Cleanup(ts.Close)

	c, _ := newTestClient(t, ts)

	_, err := c.GetCart(context.Background())
	require.Error(t, err)

	var schemaErr *cart.SchemaError
	assert.True(t, errors.As(err, &schemaErr))
	assert.Empty(t, c.Snapshot().Items)
}

func TestClient_AddToCartRefreshesAndPushesCount(t *testing.T) {
	remote := newFakeRemote()
	c, d := newTestClient(t, remote.server(t))

	// After a successful add, the remote reports one line of quantity 2.
	remote.setCart(map[string]any{
		"token":      "tok",
		"item_count": 2,
		"items": []any{
			map[string]any{"key": "line-1", "product_title": "Mug", "quantity": 2},
		},
	})

	result, err := c.AddToCart(context.Background(), cart.AddRequest{ID: 123, Quantity: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, result)

	// The add request went up in the remote's batch envelope.
	var sent struct {
		Items []cart.AddRequest `json:"items"`
	}
	require.NoError(t, json.Unmarshal(remote.addBodySent(), &sent))
	require.Len(t, sent.Items, 1)
	assert.Equal(t, int64(123), sent.Items[0].ID)
	assert.Equal(t, 2, sent.Items[0].Quantity)

	require.Len(t, c.Snapshot().Items, 1)

	count, visible := d.last(t)
	assert.Equal(t, 2, count)
	assert.True(t, visible)
}

func TestClient_AddToCartRejectionUsesRemoteDescription(t *testing.T) {
	remote := newFakeRemote()
	remote.addStatus = http.StatusUnprocessableEntity
	remote.addBody = `{"description":"Out of stock"}`

	c, d := newTestClient(t, remote.server(t))

	_, err := c.AddToCart(context.Background(), cart.AddRequest{ID: 123, Quantity: 1})
	require.Error(t, err)

	var rej *cart.RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "Out of stock", rej.Message)
	assert.Equal(t, http.StatusUnprocessableEntity, rej.Status)

	assert.Empty(t, c.Snapshot().Items, "rejected add must not touch the snapshot")
	assert.Zero(t, d.pushes(), "rejected add must not push counters")
}

func TestClient_AddToCartRejectionFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"message field", `{"message":"Too many requests"}`, "Too many requests"},
		{"empty body", ``, "could not add the item to your cart"},
		{"unrelated body", `{"status":422}`, "could not add the item to your cart"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote()
			remote.addStatus = http.StatusUnprocessableEntity
			remote.addBody = tt.body

			c, _ := newTestClient(t, remote.server(t))

			_, err := c.AddToCart(context.Background(), cart.AddRequest{ID: 1, Quantity: 1})
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestClient_UpdateItemTrustsResponseBody(t *testing.T) {
	remote := newFakeRemote()
	c, d := newTestClient(t, remote.server(t))

	before := remote.hits()

	snap, err := c.UpdateItem(context.Background(), "line-1", 4)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 4, snap.Items[0].Quantity)

	// The change endpoint returns the full cart; no secondary fetch.
	assert.Equal(t, before, remote.hits())

	count, visible := d.last(t)
	assert.Equal(t, 4, count)
	assert.True(t, visible)
}

func TestClient_UpdateItemToZeroHidesCount(t *testing.T) {
	remote := newFakeRemote()
	c, d := newTestClient(t, remote.server(t))

	snap, err := c.UpdateItem(context.Background(), "line-1", 0)
	require.NoError(t, err)
	assert.Empty(t, snap.Items)

	count, visible := d.last(t)
	assert.Equal(t, 0, count)
	assert.False(t, visible)
}

func TestClient_UpdateAttributesSkipsCounters(t *testing.T) {
	remote := newFakeRemote()
	c, d := newTestClient(t, remote.server(t))

	snap, err := c.UpdateAttributes(context.Background(), map[string]string{"gift_note": "Happy birthday"})
	require.NoError(t, err)
	assert.Equal(t, "Happy birthday", snap.Attributes["gift_note"])

	assert.Zero(t, d.pushes(), "attribute updates never recompute counters")
}

func TestClient_ClearCartRefreshesAndPushesZero(t *testing.T) {
	remote := newFakeRemote()
	remote.setCart(map[string]any{
		"items":      []any{map[string]any{"key": "line-1", "product_title": "Mug", "quantity": 5}},
		"item_count": 5,
	})

	c, d := newTestClient(t, remote.server(t))
	_, err := c.GetCart(context.Background())
	require.NoError(t, err)

	before := remote.hits()

	require.NoError(t, c.ClearCart(context.Background()))
	assert.Empty(t, c.Snapshot().Items)
	assert.Equal(t, before+1, remote.hits(), "clear refreshes via a full fetch")

	count, visible := d.last(t)
	assert.Equal(t, 0, count)
	assert.False(t, visible)
}
