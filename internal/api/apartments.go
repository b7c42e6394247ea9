package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pribylovaa/upravdom-client/internal/models"
)

// ListApartments — GET /apartments.
func (c *Client) ListApartments(ctx context.Context) ([]models.Apartment, error) {
	const op = "api.ListApartments"

	var out []models.Apartment
	if err := c.doer.DoJSON(ctx, http.MethodGet, "/apartments", nil, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// Apartment — GET /apartments/{id}: квартира с историей операций.
func (c *Client) Apartment(ctx context.Context, id int64) (*models.ApartmentDetails, error) {
	const op = "api.Apartment"

	var out models.ApartmentDetails
	if err := c.doer.DoJSON(ctx, http.MethodGet, "/apartments/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}
