// Package inventory calls the inventory service through its circuit breaker.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/ports"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/breaker"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/httpjson"
)

type reserveItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type reserveRequest struct {
	OrderID        string        `json:"order_id"`
	Items          []reserveItem `json:"items"`
	IdempotencyKey string        `json:"idempotency_key"`
}

type reserveResponse struct {
	ReservationID string `json:"reservation_id"`
}

type releaseRequest struct {
	ReservationID string `json:"reservation_id"`
}

type productResponse struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// Client implements ports.InventoryClient and ports.PriceLookup.
type Client struct {
	http    *httpjson.Client
	breaker *breaker.Breaker
}

var (
	_ ports.InventoryClient = (*Client)(nil)
	_ ports.PriceLookup     = (*Client)(nil)
)

func NewClient(hc *httpjson.Client, b *breaker.Breaker) *Client {
	return &Client{http: hc, breaker: b}
}

// Reserve asks for all items at once; the order id is the idempotency key.
func (c *Client) Reserve(ctx context.Context, orderID string, items []ports.StockItem) (string, error) {
	req := reserveRequest{
		OrderID:        orderID,
		Items:          make([]reserveItem, len(items)),
		IdempotencyKey: orderID,
	}
	for i, it := range items {
		req.Items[i] = reserveItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	res, err := breaker.Do(ctx, c.breaker, func(ctx context.Context) (reserveResponse, error) {
		var out reserveResponse
		err := c.http.Post(ctx, "/reserve", orderID, req, &out)
		return out, err
	})
	if err != nil {
		if hasStatus(err, http.StatusConflict) {
			return "", fmt.Errorf("inventory: reserve for order %s: %w: %w", orderID, ports.ErrInsufficientStock, err)
		}
		return "", fmt.Errorf("inventory: reserve for order %s: %w", orderID, err)
	}
	if res.ReservationID == "" {
		return "", fmt.Errorf("inventory: reserve for order %s: empty reservation id", orderID)
	}
	return res.ReservationID, nil
}

// Release returns reserved stock. A 404 means the reservation is already
// gone, which is the outcome release wants.
func (c *Client) Release(ctx context.Context, reservationID string) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.http.Post(ctx, "/release", reservationID, releaseRequest{ReservationID: reservationID}, nil)
	})
	if err != nil && !hasStatus(err, http.StatusNotFound) {
		return fmt.Errorf("inventory: release %s: %w", reservationID, err)
	}
	return nil
}

// Price returns the catalogue unit price of productID.
func (c *Client) Price(ctx context.Context, productID string) (decimal.Decimal, error) {
	res, err := breaker.Do(ctx, c.breaker, func(ctx context.Context) (productResponse, error) {
		var out productResponse
		err := c.http.Get(ctx, "/products/"+url.PathEscape(productID), &out)
		return out, err
	})
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return decimal.Zero, fmt.Errorf("inventory: product %s: %w", productID, ports.ErrProductNotFound)
		}
		return decimal.Zero, fmt.Errorf("inventory: price of %s: %w", productID, err)
	}
	return res.Price, nil
}

func hasStatus(err error, code int) bool {
	var se *httpjson.StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
