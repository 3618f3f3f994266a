package guestcart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"storefront-core/internal/domain"
)

// EncodeLines renders lines in the persisted guest format: an array of
// single-key objects mapping product id to quantity, in cart order.
func EncodeLines(lines []domain.CartLine) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, l := range lines {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(l.ProductID)
		if err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d}", l.Quantity)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// DecodeLines parses the persisted guest format. Entries with a non-positive
// quantity are dropped and the first occurrence of a product wins.
func DecodeLines(raw []byte) ([]domain.CartLine, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return []domain.CartLine{}, nil
	}
	var entries []map[string]json.Number
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode guest cart: %w", err)
	}
	lines := make([]domain.CartLine, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		keys := make([]string, 0, len(entry))
		for k := range entry {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, id := range keys {
			qty, err := entry[id].Int64()
			if err != nil {
				return nil, fmt.Errorf("decode guest cart: quantity for %q: %w", id, err)
			}
			if id == "" || qty < 1 {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			lines = append(lines, domain.CartLine{ProductID: id, Quantity: int(qty)})
		}
	}
	return lines, nil
}
