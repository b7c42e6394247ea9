package models

// WalletCategoryID — служебная категория "Кошелёк" (пополнения баланса).
// Для общих сборов она не предлагается.
const WalletCategoryID int64 = 1

// Category — категория операций и сборов.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// IsWallet — служебная категория кошелька.
func (c Category) IsWallet() bool { return c.ID == WalletCategoryID }

// CreateCategoryRequest — тело POST /categories.
type CreateCategoryRequest struct {
	Name string `json:"name"`
}
