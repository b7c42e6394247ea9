package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApartment_BalanceState(t *testing.T) {
	t.Parallel()

	require.Equal(t, BalanceDebt, Apartment{Balance: -1500}.BalanceState())
	require.Equal(t, BalanceCredit, Apartment{Balance: 200}.BalanceState())
	require.Equal(t, BalanceZero, Apartment{}.BalanceState())
}

func TestApartmentDetails_DecodesBackendPayload(t *testing.T) {
	t.Parallel()

	raw := `{"id":3,"number":15,"balance":-2500,"transactions":[
		{"id":1,"amount":-2500,"date":"2025-03-01T10:00:00.000Z","description":"","category":{"name":"Лифт"}},
		{"id":2,"amount":5000,"date":"2025-02-01T10:00:00.000Z","description":"Пополнение"}
	]}`

	var d ApartmentDetails
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	require.Equal(t, 15, d.Number)
	require.Len(t, d.Transactions, 2)
	require.Equal(t, "Операция", d.Transactions[0].Title())
	require.Equal(t, "Лифт", d.Transactions[0].Category.Name)
	require.False(t, d.Transactions[0].IsIncome())
	require.True(t, d.Transactions[1].IsIncome())
	require.Nil(t, d.Transactions[1].Category)
}

func TestGlobalExpense_ProgressAndPaid(t *testing.T) {
	t.Parallel()

	e := GlobalExpense{
		Progress: 1.4,
		Participants: []Participant{
			{ID: 1, Number: 1, IsPaid: true},
			{ID: 2, Number: 2},
			{ID: 3, Number: 3, IsPaid: true},
		},
	}
	require.Equal(t, float64(100), e.ProgressPercent())
	require.Equal(t, 2, e.PaidCount())
	require.Equal(t, DefaultExpenseDescription, e.Title())

	e.Progress = 0.25
	require.InDelta(t, 25.0, e.ProgressPercent(), 1e-9)

	e.Progress = -1
	require.Equal(t, float64(0), e.ProgressPercent())
}

func TestResidentRequest_OmitsEmptyPassword(t *testing.T) {
	t.Parallel()

	apt := int64(4)
	b, err := json.Marshal(ResidentRequest{Phone: "+7701", ApartmentID: &apt})
	require.NoError(t, err)
	require.JSONEq(t, `{"phone":"+7701","apartmentId":4}`, string(b))
}

func TestResidentRequest_OmitsMissingApartment(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(ResidentRequest{Phone: "+7701", FullName: "Анна"})
	require.NoError(t, err)
	require.JSONEq(t, `{"phone":"+7701","fullName":"Анна"}`, string(b))
}

func TestCategory_IsWallet(t *testing.T) {
	t.Parallel()

	require.True(t, Category{ID: WalletCategoryID, Name: "Кошелёк"}.IsWallet())
	require.False(t, Category{ID: 2, Name: "Лифт"}.IsWallet())
}
