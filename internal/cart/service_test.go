package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"MiniCart/pkg/kit"
)

func newCatalogTS(t *testing.T, prices map[string]int64) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/products/")
		if id == "boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		price, ok := prices[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(CatalogProduct{ID: id, Title: "Product " + id, PriceCents: price})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestService(t *testing.T, store Store, prices map[string]int64) *Service {
	t.Helper()

	ts := newCatalogTS(t, prices)
	s := NewService(store, NewCatalogClient(ts.URL, time.Second), zap.NewNop())
	s.Retry = kit.Retrier{Attempts: 3, BaseDelay: time.Millisecond}
	return s
}

var testPrices = map[string]int64{"p1": 1000, "p2": 500}

func TestAddItem_EmptyCart(t *testing.T) {
	store := NewMemStore()
	s := newTestService(t, store, testPrices)
	ctx := context.Background()

	summary, err := s.AddItem(ctx, "u1", "p1", 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(summary.Items) != 1 || summary.Items[0] != (Item{ProductID: "p1", Qty: 2}) {
		t.Fatalf("items=%v", summary.Items)
	}
	if summary.TotalCents != 2000 {
		t.Fatalf("total=%d", summary.TotalCents)
	}

	rec, ok, _ := store.Get(ctx, "u1")
	if !ok {
		t.Fatalf("record not persisted")
	}
	if rec.OrderList != "p1:2;" {
		t.Fatalf("order_list=%q", rec.OrderList)
	}
	if rec.TotalCents != 2000 {
		t.Fatalf("stored total=%d", rec.TotalCents)
	}
}

func TestAddItem_Idempotent(t *testing.T) {
	store := NewMemStore()
	s := newTestService(t, store, testPrices)
	ctx := context.Background()

	first, err := s.AddItem(ctx, "u1", "p1", 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := s.AddItem(ctx, "u1", "p1", 2)
	if err != nil {
		t.Fatalf("add again: %v", err)
	}

	if second.TotalCents != first.TotalCents || len(second.Items) != len(first.Items) {
		t.Fatalf("retried add changed cart: first=%v second=%v", first, second)
	}

	rec, _, _ := store.Get(ctx, "u1")
	if rec.OrderList != "p1:2;" {
		t.Fatalf("order_list=%q", rec.OrderList)
	}
}

func TestAddItem_ReplacesQuantityInPlace(t *testing.T) {
	store := NewMemStore()
	s := newTestService(t, store, testPrices)
	ctx := context.Background()

	mustAdd(t, s, "u1", "p1", 2)
	mustAdd(t, s, "u1", "p2", 1)

	summary, err := s.AddItem(ctx, "u1", "p1", 5)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if summary.Items[0] != (Item{ProductID: "p1", Qty: 5}) {
		t.Fatalf("position or qty changed: %v", summary.Items)
	}
	if summary.TotalCents != 5500 {
		t.Fatalf("total=%d", summary.TotalCents)
	}
}

func TestAddItem_BadInput(t *testing.T) {
	s := newTestService(t, NewMemStore(), testPrices)
	ctx := context.Background()

	cases := []struct {
		productID string
		qty       int
	}{
		{"", 1},
		{"a;b", 1},
		{"a:b", 1},
		{"p1", -1},
	}

	for _, tc := range cases {
		if _, err := s.AddItem(ctx, "u1", tc.productID, tc.qty); !errors.Is(err, ErrBadItem) {
			t.Fatalf("add (%q,%d): err=%v, want ErrBadItem", tc.productID, tc.qty, err)
		}
	}
}

func TestAddItem_UnknownProduct(t *testing.T) {
	s := newTestService(t, NewMemStore(), testPrices)

	if _, err := s.AddItem(context.Background(), "u1", "ghost", 1); !errors.Is(err, ErrProductUnknown) {
		t.Fatalf("err=%v, want ErrProductUnknown", err)
	}
}

func TestAddItem_AllOrNothing(t *testing.T) {
	store := NewMemStore()
	s := newTestService(t, store, testPrices)
	ctx := context.Background()

	mustAdd(t, s, "u1", "p1", 2)
	before, _, _ := store.Get(ctx, "u1")

	// "boom" makes the catalog answer 500, so repricing the whole cart
	// fails and nothing may be written.
	if _, err := s.AddItem(ctx, "u1", "boom", 1); !errors.Is(err, ErrCatalogDown) {
		t.Fatalf("err=%v, want ErrCatalogDown", err)
	}

	after, ok, _ := store.Get(ctx, "u1")
	if !ok || after != before {
		t.Fatalf("cart changed on failed mutation: before=%v after=%v", before, after)
	}
}

func TestRemoveItem(t *testing.T) {
	store := NewMemStore()
	s := newTestService(t, store, testPrices)
	ctx := context.Background()

	mustAdd(t, s, "u1", "p1", 2)
	mustAdd(t, s, "u1", "p2", 1)

	summary, err := s.RemoveItem(ctx, "u1", "p2")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(summary.Items) != 1 || summary.Items[0].ProductID != "p1" {
		t.Fatalf("items=%v", summary.Items)
	}
	if summary.TotalCents != 2000 {
		t.Fatalf("total=%d", summary.TotalCents)
	}

	rec, _, _ := store.Get(ctx, "u1")
	if rec.OrderList != "p1:2;" || rec.TotalCents != 2000 {
		t.Fatalf("record=%v", rec)
	}
}

func TestRemoveItem_NotFound(t *testing.T) {
	s := newTestService(t, NewMemStore(), testPrices)
	ctx := context.Background()

	if _, err := s.RemoveItem(ctx, "nobody", "p1"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("absent cart: err=%v, want ErrItemNotFound", err)
	}

	mustAdd(t, s, "u1", "p1", 1)
	if _, err := s.RemoveItem(ctx, "u1", "p2"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("absent item: err=%v, want ErrItemNotFound", err)
	}
}

func TestClearCart_Idempotent(t *testing.T) {
	store := NewMemStore()
	s := newTestService(t, store, testPrices)
	ctx := context.Background()

	if err := s.ClearCart(ctx, "nobody"); err != nil {
		t.Fatalf("clear absent cart: %v", err)
	}

	mustAdd(t, s, "u1", "p1", 1)
	if err := s.ClearCart(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "u1"); ok {
		t.Fatalf("record survived clear")
	}
	if err := s.ClearCart(ctx, "u1"); err != nil {
		t.Fatalf("clear again: %v", err)
	}
}

func TestGetCart(t *testing.T) {
	s := newTestService(t, NewMemStore(), testPrices)
	ctx := context.Background()

	if _, err := s.GetCart(ctx, "nobody", 1); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("err=%v, want ErrCartEmpty", err)
	}

	mustAdd(t, s, "u1", "p1", 2)
	mustAdd(t, s, "u1", "p2", 1)

	view, err := s.GetCart(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Items) != 2 || view.TotalPages != 1 || view.TotalCents != 2500 {
		t.Fatalf("view=%v", view)
	}

	// Out-of-range pages saturate to an empty slice with the real count.
	view, err = s.GetCart(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("get page 5: %v", err)
	}
	if len(view.Items) != 0 || view.TotalPages != 1 {
		t.Fatalf("page 5 view=%v", view)
	}
}

func TestGetCart_CorruptRecord(t *testing.T) {
	store := NewMemStore()
	s := newTestService(t, store, testPrices)
	ctx := context.Background()

	_ = store.Put(ctx, Record{UserID: "u1", OrderList: "p1-2-garbage", TotalCents: 0})

	if _, err := s.GetCart(ctx, "u1", 1); !errors.Is(err, ErrMalformedCart) {
		t.Fatalf("err=%v, want ErrMalformedCart", err)
	}
}

type failStore struct {
	gets, puts, dels int
}

func (f *failStore) Get(ctx context.Context, userID string) (Record, bool, error) {
	f.gets++
	return Record{}, false, errors.New("store down")
}

func (f *failStore) Put(ctx context.Context, rec Record) error {
	f.puts++
	return errors.New("store down")
}

func (f *failStore) Delete(ctx context.Context, userID string) error {
	f.dels++
	return errors.New("store down")
}

func (f *failStore) Ping(ctx context.Context) error { return errors.New("store down") }

type corruptStore struct {
	MemStore
	gets int
}

func (c *corruptStore) Get(ctx context.Context, userID string) (Record, bool, error) {
	c.gets++
	return Record{}, false, kit.Permanent(fmt.Errorf("%w: unmarshal cart record failed", ErrMalformedCart))
}

func TestGetCart_CorruptStoreValueNotRetried(t *testing.T) {
	cs := &corruptStore{}
	s := newTestService(t, cs, testPrices)

	_, err := s.GetCart(context.Background(), "u1", 1)
	if !errors.Is(err, ErrMalformedCart) {
		t.Fatalf("err=%v, want ErrMalformedCart", err)
	}
	if errors.Is(err, ErrStoreDown) {
		t.Fatalf("corruption misreported as store outage: %v", err)
	}
	if cs.gets != 1 {
		t.Fatalf("gets=%d, corruption must not be retried", cs.gets)
	}
}

func TestStoreDown_BoundedRetry(t *testing.T) {
	fs := &failStore{}
	s := newTestService(t, fs, testPrices)
	ctx := context.Background()

	if _, err := s.GetCart(ctx, "u1", 1); !errors.Is(err, ErrStoreDown) {
		t.Fatalf("err=%v, want ErrStoreDown", err)
	}
	if fs.gets != 3 {
		t.Fatalf("gets=%d, want 3 attempts", fs.gets)
	}

	if err := s.ClearCart(ctx, "u1"); !errors.Is(err, ErrStoreDown) {
		t.Fatalf("clear err=%v, want ErrStoreDown", err)
	}
	if fs.dels != 3 {
		t.Fatalf("dels=%d, want 3 attempts", fs.dels)
	}
}

func mustAdd(t *testing.T, s *Service, userID, productID string, qty int) {
	t.Helper()
	if _, err := s.AddItem(context.Background(), userID, productID, qty); err != nil {
		t.Fatalf("add %s x%d: %v", productID, qty, err)
	}
}
