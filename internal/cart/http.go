package cart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"MiniCart/internal/auth"
	"MiniCart/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	JWT *auth.TokenMaker

	// MutationLimit caps concurrent mutations to shield the catalog
	// dependency; zero picks the default.
	MutationLimit int64
}

const (
	defaultMutationLimit = 5
	maxAddBody           = 1 << 20

	tryLaterMsg = "Unable to complete the request at the moment. Please try again later."
)

func NewHandler(s *Service, deps HTTPDeps) http.Handler {
	r := chi.NewRouter()

	setupMiddleware(r, deps)
	setupMetrics(r, deps)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		if err := s.Store.Ping(ctx); err != nil {
			if s.Log != nil {
				s.Log.Warn("readyz failed", zap.Error(err))
			}
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	limit := deps.MutationLimit
	if limit <= 0 {
		limit = defaultMutationLimit
	}
	bulkhead := kit.Bulkhead(limit)

	r.Group(func(pr chi.Router) {
		pr.Use(AuthJWT(deps.JWT))

		pr.Get("/cart", getHandler(s))

		pr.Group(func(mr chi.Router) {
			mr.Use(bulkhead)
			mr.Post("/cart/add", addHandler(s))
			mr.Delete("/cart/{productId}", removeHandler(s))
			mr.Delete("/cart", clearHandler(s))
		})
	})

	return r
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	r.Use(kit.Logging(deps.Log))
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service, kit.ChiRoutePatternOrPath))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func getHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			kit.WriteError(w, r, http.StatusUnauthorized, "no user", nil)
			return
		}

		page := 1
		if q := r.URL.Query().Get("page"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil {
				kit.WriteError(w, r, http.StatusBadRequest, "bad page", nil)
				return
			}
			page = n
		}

		view, err := s.GetCart(r.Context(), u.ID, page)
		if err != nil {
			writeCartError(w, r, err)
			return
		}

		kit.WriteJSON(w, http.StatusOK, view)
	}
}

type addReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

func addHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			kit.WriteError(w, r, http.StatusUnauthorized, "no user", nil)
			return
		}

		req, err := decodeAddRequest(w, r)
		if err != nil {
			kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
			return
		}

		summary, err := s.AddItem(r.Context(), u.ID, req.ProductID, req.Qty)
		if err != nil {
			writeCartError(w, r, err)
			return
		}

		kit.WriteJSON(w, http.StatusOK, summary)
	}
}

type removeResp struct {
	TotalCents int64  `json:"total_cents"`
	Message    string `json:"message"`
}

func removeHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			kit.WriteError(w, r, http.StatusUnauthorized, "no user", nil)
			return
		}

		productID := chi.URLParam(r, "productId")

		summary, err := s.RemoveItem(r.Context(), u.ID, productID)
		if err != nil {
			writeCartError(w, r, err)
			return
		}

		kit.WriteJSON(w, http.StatusOK, removeResp{
			TotalCents: summary.TotalCents,
			Message:    "Product deleted from cart successfully",
		})
	}
}

func clearHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			kit.WriteError(w, r, http.StatusUnauthorized, "no user", nil)
			return
		}

		if err := s.ClearCart(r.Context(), u.ID); err != nil {
			writeCartError(w, r, err)
			return
		}

		kit.WriteMessage(w, http.StatusOK, "Cart deleted successfully")
	}
}

func decodeAddRequest(w http.ResponseWriter, r *http.Request) (addReq, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAddBody)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req addReq
	if err := dec.Decode(&req); err != nil {
		return addReq{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return addReq{}, errors.New("extra data after json object")
	}

	return req, nil
}

func writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrCartEmpty):
		kit.WriteError(w, r, http.StatusNotFound, "no items found in cart", nil)
	case errors.Is(err, ErrItemNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "item not in cart", nil)
	case errors.Is(err, ErrBadItem):
		kit.WriteError(w, r, http.StatusBadRequest, "bad item", nil)
	case errors.Is(err, ErrProductUnknown):
		kit.WriteError(w, r, http.StatusBadRequest, "invalid product_id", nil)
	case errors.Is(err, ErrTotalOverflow):
		kit.WriteError(w, r, http.StatusBadRequest, "total overflow", nil)
	case errors.Is(err, ErrMalformedCart):
		kit.WriteError(w, r, http.StatusInternalServerError, "corrupt cart data", nil)
	case errors.Is(err, ErrCatalogDown), errors.Is(err, ErrStoreDown):
		kit.WriteError(w, r, http.StatusServiceUnavailable, tryLaterMsg, nil)
	default:
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}
