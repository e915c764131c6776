package cart

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Line items are persisted as a single delimited string: one item is
// "productID:quantity", items are joined with ";" and the encoded form
// always carries a trailing ";". The empty cart encodes to ";".
const (
	itemSep  = ";"
	fieldSep = ":"
)

var ErrMalformedCart = errors.New("malformed cart data")

type Item struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// ValidProductID reports whether id can be encoded. Ids containing the
// delimiters are rejected outright rather than escaped.
func ValidProductID(id string) bool {
	if id == "" {
		return false
	}
	return !strings.ContainsAny(id, itemSep+fieldSep)
}

func DecodeItems(raw string) ([]Item, error) {
	raw = strings.TrimSuffix(raw, itemSep)
	if raw == "" {
		return []Item{}, nil
	}

	segments := strings.Split(raw, itemSep)
	items := make([]Item, 0, len(segments))
	seen := make(map[string]struct{}, len(segments))

	for _, seg := range segments {
		parts := strings.Split(seg, fieldSep)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: segment %q", ErrMalformedCart, seg)
		}
		if parts[0] == "" {
			return nil, fmt.Errorf("%w: empty product id", ErrMalformedCart)
		}

		qty, err := strconv.Atoi(parts[1])
		if err != nil || qty < 0 {
			return nil, fmt.Errorf("%w: bad quantity %q", ErrMalformedCart, parts[1])
		}

		if _, dup := seen[parts[0]]; dup {
			return nil, fmt.Errorf("%w: duplicate product id %q", ErrMalformedCart, parts[0])
		}
		seen[parts[0]] = struct{}{}

		items = append(items, Item{ProductID: parts[0], Qty: qty})
	}

	return items, nil
}

func EncodeItems(items []Item) (string, error) {
	var b strings.Builder

	for _, it := range items {
		if !ValidProductID(it.ProductID) {
			return "", fmt.Errorf("%w: product id %q", ErrMalformedCart, it.ProductID)
		}
		if it.Qty < 0 {
			return "", fmt.Errorf("%w: negative quantity", ErrMalformedCart)
		}

		b.WriteString(it.ProductID)
		b.WriteString(fieldSep)
		b.WriteString(strconv.Itoa(it.Qty))
		b.WriteString(itemSep)
	}

	if b.Len() == 0 {
		return itemSep, nil
	}
	return b.String(), nil
}
