package domain

// CartMode identifies which backing store holds the cart.
type CartMode string

const (
	// CartModeLocal is the guest cart persisted on behalf of an anonymous shopper.
	CartModeLocal CartMode = "local"
	// CartModeRemote is the authenticated cart owned by the order service.
	CartModeRemote CartMode = "remote"
)

type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CountItems is the badge count: the sum of line quantities.
func CountItems(lines []CartLine) int {
	total := 0
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}

func IndexOfLine(lines []CartLine, productID string) int {
	for i, l := range lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// CloneLines returns a copy that callers may mutate freely.
func CloneLines(lines []CartLine) []CartLine {
	if lines == nil {
		return nil
	}
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}
