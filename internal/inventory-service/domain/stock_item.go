package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrProductNotFound     = errors.New("product not found")
	ErrReservationNotFound = errors.New("reservation not found")
)

type Product struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type StockItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Reservation struct {
	ID       string
	OrderID  string
	Items    []StockItem
	Released bool
}

// ParseCatalog reads "id:price:stock" entries separated by commas.
func ParseCatalog(raw string) ([]Product, error) {
	var out []Product
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("catalog entry %q: want id:price:stock", entry)
		}
		price, err := decimal.NewFromString(parts[1])
		if err != nil || price.IsNegative() {
			return nil, fmt.Errorf("catalog entry %q: invalid price", entry)
		}
		stock, err := strconv.Atoi(parts[2])
		if err != nil || stock < 0 {
			return nil, fmt.Errorf("catalog entry %q: invalid stock", entry)
		}
		out = append(out, Product{ID: parts[0], Price: price, Stock: stock})
	}
	return out, nil
}
