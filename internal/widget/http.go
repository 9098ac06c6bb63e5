package widget

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Storefront/internal/cart"
	"Storefront/internal/recent"
	"Storefront/pkg/kit"
)

const (
	maxBodyBytes = 1 << 20

	recentKeyPrefix = "recently_viewed:"
)

// Server ties the widget state managers to their HTTP surface.
type Server struct {
	KV        recent.KV
	Cart      *cart.Client
	Presenter *cart.Presenter
	Toasts    *cart.Toaster
	Log       *zap.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.handleReady)

	r.Route("/recent", func(rr chi.Router) {
		rr.Post("/viewed", s.handleRecordView)
		rr.Get("/", s.handleRecentList)
		rr.Get("/fragment", s.handleRecentFragment)
	})

	mutationLimiter := kit.NewIPRateLimiter(60, 60)

	r.Route("/cart", func(rr chi.Router) {
		rr.Get("/", s.handleGetCart)
		rr.Get("/count", s.handleCount)
		rr.Get("/toast", s.handleToast)

		rr.Group(func(mr chi.Router) {
			mr.Use(mutationLimiter.Middleware)
			mr.Post("/items", s.handleAddItem)
			mr.Post("/items/change", s.handleChangeItem)
			mr.Post("/attributes", s.handleAttributes)
			mr.Post("/clear", s.handleClear)
		})
	})

	return r
}

func (s *Server) cacheFor(r *http.Request) *recent.Cache {
	id, _ := VisitorFromContext(r.Context())
	if id == "" {
		id = "anonymous"
	}
	return recent.NewCache(s.KV, recentKeyPrefix+id, s.Log)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if err := s.KV.Ping(ctx); err != nil {
		if s.Log != nil {
			s.Log.Warn("readyz failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRecordView(w http.ResponseWriter, r *http.Request) {
	p, err := decodeProduct(w, r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}
	if p.Handle == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "handle required", nil)
		return
	}

	s.cacheFor(r).Record(r.Context(), p)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecentList(w http.ResponseWriter, r *http.Request) {
	products := s.cacheFor(r).List(r.Context())
	if products == nil {
		products = []recent.Product{}
	}
	kit.WriteJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) handleRecentFragment(w http.ResponseWriter, r *http.Request) {
	opts := recent.RenderOptions{
		ExcludeHandle: r.URL.Query().Get("exclude"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			opts.Limit = limit
		}
	}

	frag, err := recent.NewRenderer(s.cacheFor(r)).Render(r.Context(), opts)
	if err != nil {
		if s.Log != nil {
			s.Log.Error("fragment render failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	// Empty history collapses the whole region; 204 is the hide signal.
	if frag.Hidden {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	kit.WriteHTML(w, http.StatusOK, frag.HTML)
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Cart.GetCart(r.Context())
	if err != nil {
		s.writeCartError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, snap)
}

type addItemReq struct {
	ID         int64             `json:"id"`
	Quantity   int               `json:"quantity"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}
	if req.ID == 0 || req.Quantity <= 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "id and quantity required", nil)
		return
	}

	result, err := s.Cart.AddToCart(r.Context(), cart.AddRequest{
		ID:         req.ID,
		Quantity:   req.Quantity,
		Properties: req.Properties,
	})
	if err != nil {
		s.Toasts.Show(userMessage(err), cart.SeverityError)
		s.writeCartError(w, r, err)
		return
	}

	s.Toasts.Show("Added to cart", cart.SeveritySuccess)
	kit.WriteRawJSON(w, http.StatusOK, result)
}

type changeItemReq struct {
	ID       string `json:"id"`
	Quantity *int   `json:"quantity"`
}

func (s *Server) handleChangeItem(w http.ResponseWriter, r *http.Request) {
	var req changeItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}
	if req.ID == "" || req.Quantity == nil || *req.Quantity < 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "id and quantity required", nil)
		return
	}

	snap, err := s.Cart.UpdateItem(r.Context(), req.ID, *req.Quantity)
	if err != nil {
		s.writeCartError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, snap)
}

type attributesReq struct {
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) handleAttributes(w http.ResponseWriter, r *http.Request) {
	var req attributesReq
	if err := decodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}
	if req.Attributes == nil {
		kit.WriteError(w, r, http.StatusBadRequest, "attributes required", nil)
		return
	}

	snap, err := s.Cart.UpdateAttributes(r.Context(), req.Attributes)
	if err != nil {
		s.writeCartError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.Cart.ClearCart(r.Context()); err != nil {
		s.writeCartError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, s.Cart.Snapshot())
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	count := s.Presenter.VisibleCount(s.Cart.Snapshot())
	kit.WriteJSON(w, http.StatusOK, map[string]any{
		"count":  count,
		"hidden": count == 0,
	})
}

func (s *Server) handleToast(w http.ResponseWriter, r *http.Request) {
	toast, ok := s.Toasts.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	kit.WriteJSON(w, http.StatusOK, toast)
}

// writeCartError maps the cart error taxonomy onto HTTP: remote
// rejections keep their user-facing text, transport failures become a
// 502.
func (s *Server) writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	var rej *cart.RejectionError
	if errors.As(err, &rej) {
		status := rej.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		kit.WriteError(w, r, status, rej.Message, nil)
		return
	}

	var schemaErr *cart.SchemaError
	if errors.As(err, &schemaErr) {
		kit.WriteError(w, r, http.StatusBadGateway, "cart service returned an unexpected response", nil)
		return
	}

	kit.WriteError(w, r, http.StatusBadGateway, "cart service unavailable", nil)
}

func userMessage(err error) string {
	var rej *cart.RejectionError
	if errors.As(err, &rej) {
		return rej.Message
	}
	return "Something went wrong. Please try again."
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (recent.Product, error) {
	var p recent.Product
	if err := decodeJSON(w, r, &p); err != nil {
		return recent.Product{}, err
	}
	return p, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after json object")
	}
	return nil
}
