package models

import "time"

// BalanceState — знак баланса кошелька квартиры.
type BalanceState int

const (
	BalanceZero BalanceState = iota
	BalanceDebt
	BalanceCredit
)

// Apartment — квартира со сводным балансом (GET /apartments).
type Apartment struct {
	ID      int64   `json:"id"`
	Number  int     `json:"number"`
	Balance float64 `json:"balance"`
}

// BalanceState: отрицательный баланс означает долг, положительный переплату.
func (a Apartment) BalanceState() BalanceState {
	switch {
	case a.Balance < 0:
		return BalanceDebt
	case a.Balance > 0:
		return BalanceCredit
	default:
		return BalanceZero
	}
}

// ApartmentDetails — квартира с историей операций (GET /apartments/{id}).
type ApartmentDetails struct {
	Apartment
	Transactions []Transaction `json:"transactions"`
}

// CategoryRef — вложенная ссылка на категорию в операциях и сборах.
type CategoryRef struct {
	Name string `json:"name"`
}

// Transaction — операция по кошельку квартиры: платёж (+) или начисление (−).
type Transaction struct {
	ID          int64        `json:"id"`
	Amount      float64      `json:"amount"`
	Date        time.Time    `json:"date"`
	Description string       `json:"description"`
	Category    *CategoryRef `json:"category,omitempty"`
}

// Title — описание операции или подпись по умолчанию.
func (t Transaction) Title() string {
	if t.Description == "" {
		return "Операция"
	}

	return t.Description
}

// IsIncome — пополнение кошелька.
func (t Transaction) IsIncome() bool { return t.Amount > 0 }
