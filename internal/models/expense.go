package models

import "time"

// DefaultExpenseDescription подставляется, если описание сбора не задано.
const DefaultExpenseDescription = "Общий сбор"

// Participant — квартира-участник общего сбора и статус её оплаты.
type Participant struct {
	ID     int64 `json:"id"`
	Number int   `json:"number"`
	IsPaid bool  `json:"isPaid"`
}

// GlobalExpense — общий расход дома, распределённый по квартирам.
type GlobalExpense struct {
	ID              int64         `json:"id"`
	Description     string        `json:"description"`
	TotalAmount     float64       `json:"totalAmount"`
	Date            time.Time     `json:"date"`
	Category        *CategoryRef  `json:"category,omitempty"`
	CollectedAmount float64       `json:"collectedAmount"`
	Progress        float64       `json:"progress"`
	Participants    []Participant `json:"participants"`
}

// Title — описание сбора или подпись по умолчанию.
func (e GlobalExpense) Title() string {
	if e.Description == "" {
		return DefaultExpenseDescription
	}

	return e.Description
}

// ProgressPercent — доля собранной суммы в процентах, ограниченная [0, 100].
func (e GlobalExpense) ProgressPercent() float64 {
	p := e.Progress * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// PaidCount — число участников, закрывших свою долю.
func (e GlobalExpense) PaidCount() int {
	n := 0
	for _, p := range e.Participants {
		if p.IsPaid {
			n++
		}
	}

	return n
}

// CreateGlobalExpenseRequest — тело POST /global-expenses.
type CreateGlobalExpenseRequest struct {
	TotalAmount               float64 `json:"totalAmount"`
	Description               string  `json:"description"`
	CategoryID                int64   `json:"categoryId"`
	ParticipatingApartmentIDs []int64 `json:"participatingApartmentIds"`
}
