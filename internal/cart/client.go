package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Remote cart endpoints, a fixed JSON-over-HTTP contract.
const (
	pathGetCart    = "/cart.js"
	pathAddItem    = "/cart/add.js"
	pathChangeItem = "/cart/change.js"
	pathUpdateCart = "/cart/update.js"
	pathClearCart  = "/cart/clear.js"
)

// Fixed fallback messages used when the remote rejects a call without
// a usable description.
const (
	msgAddFailed        = "could not add the item to your cart"
	msgChangeFailed     = "could not update your cart"
	msgAttributesFailed = "could not update your cart options"
	msgClearFailed      = "could not clear your cart"
)

// ErrCartUnavailable wraps transport-level failures talking to the
// remote cart.
var ErrCartUnavailable = errors.New("cart service unavailable")

// RejectionError carries the remote's own human-readable reason for
// refusing a mutation. Message is shown to the user verbatim.
type RejectionError struct {
	Message string
	Status  int
}

func (e *RejectionError) Error() string { return e.Message }

// AddRequest is a single-item add. The client wraps it in the batch
// envelope the remote expects.
type AddRequest struct {
	ID         int64             `json:"id"`
	Quantity   int               `json:"quantity"`
	Properties map[string]string `json:"properties,omitempty"`
}

// AddResult is the remote's raw add response, passed through to the
// caller untouched.
type AddResult = json.RawMessage

// Client owns the cart snapshot for one page session. It is built
// explicitly and handed to callers; there is no ambient shared
// instance. Two concurrent mutations race last-writer-wins on the
// snapshot, which is accepted for this advisory state.
type Client struct {
	BaseURL   string
	Client    *http.Client
	Log       *zap.Logger
	Presenter *Presenter

	mu       sync.Mutex
	snapshot Snapshot
}

func NewClient(baseURL string, presenter *Presenter, log *zap.Logger) *Client {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL:   baseURL,
		Client:    &http.Client{Timeout: 5 * time.Second},
		Log:       log,
		Presenter: presenter,
	}
}

// Snapshot returns a copy of the current cart state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *Client) setSnapshot(s Snapshot) {
	c.mu.Lock()
	c.snapshot = s
	c.mu.Unlock()
}

// GetCart fetches the remote cart and replaces the snapshot. On any
// failure the previous snapshot is left untouched and the error goes
// back to the caller.
func (c *Client) GetCart(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+pathGetCart, nil)
	if err != nil {
		return Snapshot{}, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		c.Log.Error("cart fetch failed", zap.Error(err))
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Snapshot{}, fmt.Errorf("%w: status=%d", ErrCartUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}

	snap, err := parseSnapshot(raw)
	if err != nil {
		c.Log.Error("cart response rejected", zap.Error(err))
		return Snapshot{}, err
	}

	c.setSnapshot(snap)
	return snap, nil
}

// AddToCart posts one item wrapped in the remote's batch envelope. On
// success the snapshot is refreshed with a follow-up GetCart (the add
// endpoint does not return the full cart) and the counters recomputed.
func (c *Client) AddToCart(ctx context.Context, add AddRequest) (AddResult, error) {
	body := map[string]any{"items": []AddRequest{add}}

	resp, err := c.post(ctx, pathAddItem, body)
	if err != nil {
		c.Log.Error("add to cart failed", zap.Error(err), zap.Int64("variant_id", add.ID))
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}

	if !success(resp.StatusCode) {
		return nil, rejection(resp.StatusCode, raw, msgAddFailed)
	}

	if _, err := c.GetCart(ctx); err != nil {
		return nil, err
	}
	c.pushCount()

	return AddResult(raw), nil
}

// UpdateItem changes one line's quantity by line key; quantity 0
// removes the line. The change endpoint already returns the full cart,
// so the response body becomes the snapshot directly with no second
// fetch.
func (c *Client) UpdateItem(ctx context.Context, lineKey string, quantity int) (Snapshot, error) {
	body := map[string]any{"id": lineKey, "quantity": quantity}

	resp, err := c.post(ctx, pathChangeItem, body)
	if err != nil {
		c.Log.Error("cart change failed", zap.Error(err), zap.String("line_key", lineKey))
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}

	if !success(resp.StatusCode) {
		return Snapshot{}, &RejectionError{Message: msgChangeFailed, Status: resp.StatusCode}
	}

	snap, err := parseSnapshot(raw)
	if err != nil {
		c.Log.Error("cart response rejected", zap.Error(err))
		return Snapshot{}, err
	}

	c.setSnapshot(snap)
	c.pushCount()
	return snap, nil
}

// UpdateAttributes replaces the cart attributes. Attributes never
// affect the item count, so the counters stay as they are.
func (c *Client) UpdateAttributes(ctx context.Context, attributes map[string]string) (Snapshot, error) {
	body := map[string]any{"attributes": attributes}

	resp, err := c.post(ctx, pathUpdateCart, body)
	if err != nil {
		c.Log.Error("cart attributes update failed", zap.Error(err))
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}

	if !success(resp.StatusCode) {
		return Snapshot{}, &RejectionError{Message: msgAttributesFailed, Status: resp.StatusCode}
	}

	snap, err := parseSnapshot(raw)
	if err != nil {
		c.Log.Error("cart response rejected", zap.Error(err))
		return Snapshot{}, err
	}

	c.setSnapshot(snap)
	return snap, nil
}

// ClearCart empties the cart, then refreshes the snapshot with a
// follow-up fetch and recomputes the counters.
func (c *Client) ClearCart(ctx context.Context) error {
	resp, err := c.post(ctx, pathClearCart, nil)
	if err != nil {
		c.Log.Error("cart clear failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &RejectionError{Message: msgClearFailed, Status: resp.StatusCode}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	if _, err := c.GetCart(ctx); err != nil {
		return err
	}
	c.pushCount()
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	return resp, nil
}

func (c *Client) pushCount() {
	if c.Presenter == nil {
		return
	}
	c.Presenter.Push(c.Snapshot())
}

func success(status int) bool {
	return status >= 200 && status < 300
}

// rejection extracts the remote's description/message from a rejected
// add, falling back to the fixed message. Only the add endpoint gets
// this treatment; the other endpoints keep their generic messages, as
// the remote contract defines.
func rejection(status int, raw []byte, fallback string) *RejectionError {
	var body struct {
		Description string `json:"description"`
		Message     string `json:"message"`
	}
	_ = json.Unmarshal(raw, &body)

	msg := body.Description
	if msg == "" {
		msg = body.Message
	}
	if msg == "" {
		msg = fallback
	}

	return &RejectionError{Message: msg, Status: status}
}
