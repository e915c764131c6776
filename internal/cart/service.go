package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"MiniCart/pkg/kit"
)

var (
	ErrCartEmpty      = errors.New("no items found in cart")
	ErrItemNotFound   = errors.New("item not in cart")
	ErrBadItem        = errors.New("bad item")
	ErrProductUnknown = errors.New("invalid product_id")
	ErrCatalogDown    = errors.New("catalog unavailable")
	ErrStoreDown      = errors.New("cart store unavailable")
	ErrTotalOverflow  = errors.New("total overflow")
)

const (
	storeRetryAttempts = 3
	storeRetryBase     = 50 * time.Millisecond
)

// Service owns the cart transitions: load, decode, mutate in memory,
// reprice every line item against the catalog, encode, persist. The
// cached total is never updated without the item list that produced it.
type Service struct {
	Store    Store
	Catalog  *CatalogClient
	Log      *zap.Logger
	PageSize int
	Retry    kit.Retrier
}

func NewService(store Store, catalog *CatalogClient, log *zap.Logger) *Service {
	return &Service{
		Store:    store,
		Catalog:  catalog,
		Log:      log,
		PageSize: DefaultPageSize,
		Retry:    kit.Retrier{Attempts: storeRetryAttempts, BaseDelay: storeRetryBase},
	}
}

type CartPage struct {
	Items      []Item `json:"items"`
	TotalPages int    `json:"total_pages"`
	TotalCents int64  `json:"total_cents"`
}

type Summary struct {
	UserID     string `json:"user_id"`
	Items      []Item `json:"items"`
	TotalCents int64  `json:"total_cents"`
}

// GetCart reads the cached total as stored; reads never touch the
// catalog, only mutations pay the repricing cost.
func (s *Service) GetCart(ctx context.Context, userID string, page int) (CartPage, error) {
	rec, ok, err := s.loadRecord(ctx, userID)
	if err != nil {
		return CartPage{}, err
	}
	if !ok {
		return CartPage{}, ErrCartEmpty
	}

	items, err := s.decodeRecord(rec)
	if err != nil {
		return CartPage{}, err
	}

	pageItems, totalPages := Paginate(items, s.PageSize, page)
	return CartPage{
		Items:      pageItems,
		TotalPages: totalPages,
		TotalCents: rec.TotalCents,
	}, nil
}

// AddItem appends the product or replaces its quantity in place. The
// replacement semantics make retried adds idempotent.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (Summary, error) {
	productID = strings.TrimSpace(productID)
	if !ValidProductID(productID) || qty < 0 {
		return Summary{}, ErrBadItem
	}

	rec, ok, err := s.loadRecord(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	if !ok {
		rec = Record{UserID: userID, OrderList: itemSep}
	}

	items, err := s.decodeRecord(rec)
	if err != nil {
		return Summary{}, err
	}

	found := false
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Qty = qty
			found = true
			break
		}
	}
	if !found {
		items = append(items, Item{ProductID: productID, Qty: qty})
	}

	return s.persist(ctx, userID, items)
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (Summary, error) {
	rec, ok, err := s.loadRecord(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	if !ok {
		return Summary{}, ErrItemNotFound
	}

	items, err := s.decodeRecord(rec)
	if err != nil {
		return Summary{}, err
	}

	kept := items[:0]
	found := false
	for _, it := range items {
		if it.ProductID == productID {
			found = true
			continue
		}
		kept = append(kept, it)
	}
	if !found {
		return Summary{}, ErrItemNotFound
	}

	return s.persist(ctx, userID, kept)
}

// ClearCart deletes the whole record. Deleting an absent cart is fine.
func (s *Service) ClearCart(ctx context.Context, userID string) error {
	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		return s.Store.Delete(ctx, userID)
	})
	if err != nil {
		s.logError("cart delete failed", userID, err)
		return fmt.Errorf("%w: %v", ErrStoreDown, err)
	}
	return nil
}

// persist reprices the full item list and writes list and total in one
// store call. Any pricing failure aborts before anything is written.
func (s *Service) persist(ctx context.Context, userID string, items []Item) (Summary, error) {
	total, err := s.priceItems(ctx, items)
	if err != nil {
		return Summary{}, err
	}

	encoded, err := EncodeItems(items)
	if err != nil {
		return Summary{}, err
	}

	rec := Record{UserID: userID, OrderList: encoded, TotalCents: total}
	err = s.Retry.Do(ctx, func(ctx context.Context) error {
		return s.Store.Put(ctx, rec)
	})
	if err != nil {
		s.logError("cart put failed", userID, err)
		return Summary{}, fmt.Errorf("%w: %v", ErrStoreDown, err)
	}

	return Summary{UserID: userID, Items: items, TotalCents: total}, nil
}

// priceItems fans out one catalog lookup per line item. The lookups run
// concurrently but settle as a group: one failure cancels the rest and
// no partial total ever escapes.
func (s *Service) priceItems(ctx context.Context, items []Item) (int64, error) {
	lines := make([]int64, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i, it := range items {
		g.Go(func() error {
			price, err := s.Catalog.UnitPriceCents(gctx, it.ProductID)
			if err != nil {
				return s.mapCatalogErr(it.ProductID, err)
			}

			line := price * int64(it.Qty)
			if it.Qty > 0 && (line < 0 || line/int64(it.Qty) != price) {
				return ErrTotalOverflow
			}
			lines[i] = line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, line := range lines {
		if total > math.MaxInt64-line {
			return 0, ErrTotalOverflow
		}
		total += line
	}
	return total, nil
}

func (s *Service) mapCatalogErr(productID string, err error) error {
	switch {
	case errors.Is(err, ErrCatalogNotFound):
		return ErrProductUnknown
	case errors.Is(err, ErrCatalogUnavailable):
		return ErrCatalogDown
	default:
		if s.Log != nil {
			s.Log.Warn("catalog error", zap.Error(err), zap.String("product_id", productID))
		}
		return ErrCatalogDown
	}
}

func (s *Service) loadRecord(ctx context.Context, userID string) (Record, bool, error) {
	var (
		rec Record
		ok  bool
	)

	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		rec, ok, err = s.Store.Get(ctx, userID)
		return err
	})
	if errors.Is(err, ErrMalformedCart) {
		s.logError("corrupt cart record", userID, err)
		return Record{}, false, err
	}
	if err != nil {
		s.logError("cart get failed", userID, err)
		return Record{}, false, fmt.Errorf("%w: %v", ErrStoreDown, err)
	}
	return rec, ok, nil
}

// decodeRecord surfaces corrupt persisted data; it is never silently
// repaired.
func (s *Service) decodeRecord(rec Record) ([]Item, error) {
	items, err := DecodeItems(rec.OrderList)
	if err != nil {
		s.logError("corrupt cart record", rec.UserID, err)
		return nil, err
	}
	return items, nil
}

func (s *Service) logError(msg, userID string, err error) {
	if s.Log != nil {
		s.Log.Error(msg, zap.Error(err), zap.String("user_id", userID))
	}
}
