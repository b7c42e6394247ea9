package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pribylovaa/upravdom-client/internal/models"
)

// ListCategories — GET /categories.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	const op = "api.ListCategories"

	var out []models.Category
	if err := c.doer.DoJSON(ctx, http.MethodGet, "/categories", nil, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// ExpenseCategories — категории, доступные для общих сборов (без кошелька).
func (c *Client) ExpenseCategories(ctx context.Context) ([]models.Category, error) {
	all, err := c.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Category, 0, len(all))
	for _, cat := range all {
		if !cat.IsWallet() {
			out = append(out, cat)
		}
	}

	return out, nil
}

// CreateCategory — POST /categories.
func (c *Client) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	const op = "api.CreateCategory"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "Введите название категории")
	}

	var out models.Category
	if err := c.doer.DoJSON(ctx, http.MethodPost, "/categories", models.CreateCategoryRequest{Name: name}, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// DeleteCategory — DELETE /categories/{id}. Бэкенд отказывает, если по
// категории уже были операции.
func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	const op = "api.DeleteCategory"

	if err := c.doer.DoJSON(ctx, http.MethodDelete, "/categories/"+strconv.FormatInt(id, 10), nil, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
