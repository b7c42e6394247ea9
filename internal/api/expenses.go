package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/pribylovaa/upravdom-client/internal/models"
)

// ListGlobalExpenses — GET /global-expenses.
func (c *Client) ListGlobalExpenses(ctx context.Context) ([]models.GlobalExpense, error) {
	const op = "api.ListGlobalExpenses"

	var out []models.GlobalExpense
	if err := c.doer.DoJSON(ctx, http.MethodGet, "/global-expenses", nil, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// CreateGlobalExpense — POST /global-expenses: распределить сумму между
// выбранными квартирами. Пустое описание заменяется на DefaultExpenseDescription.
func (c *Client) CreateGlobalExpense(ctx context.Context, req models.CreateGlobalExpenseRequest) (*models.GlobalExpense, error) {
	const op = "api.CreateGlobalExpense"

	if math.IsNaN(req.TotalAmount) || math.IsInf(req.TotalAmount, 0) || req.TotalAmount <= 0 {
		return nil, invalid("totalAmount", "Введите корректную сумму")
	}
	if len(req.ParticipatingApartmentIDs) == 0 {
		return nil, invalid("participatingApartmentIds", "Выберите хотя бы одну квартиру")
	}
	if req.CategoryID == models.WalletCategoryID {
		return nil, invalid("categoryId", "Категория кошелька недоступна для общих сборов")
	}

	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		req.Description = models.DefaultExpenseDescription
	}

	var out models.GlobalExpense
	if err := c.doer.DoJSON(ctx, http.MethodPost, "/global-expenses", req, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// ShareAmount — доля одной квартиры, округлённая вверх до целого.
// Для неположительной суммы или пустого списка квартир возвращает 0.
func ShareAmount(total float64, apartments int) float64 {
	if !(total > 0) || apartments <= 0 {
		return 0
	}

	return math.Ceil(total / float64(apartments))
}
