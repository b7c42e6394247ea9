package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pribylovaa/upravdom-client/internal/models"
)

// Цвета баланса как на экранах мобильного клиента.
const (
	colorDebt   = lipgloss.Color("#E74C3C")
	colorCredit = lipgloss.Color("#27AE60")
	colorMuted  = lipgloss.Color("#7F8C8D")
	colorAccent = lipgloss.Color("#3498DB")
)

const currency = "₸"

// view форматирует вывод. Без терминала стили не добавляют escape-кодов.
type view struct {
	debt   lipgloss.Style
	credit lipgloss.Style
	muted  lipgloss.Style
	title  lipgloss.Style
}

func newView(w io.Writer) *view {
	r := lipgloss.NewRenderer(w)

	return &view{
		debt:   r.NewStyle().Foreground(colorDebt),
		credit: r.NewStyle().Foreground(colorCredit),
		muted:  r.NewStyle().Foreground(colorMuted),
		title:  r.NewStyle().Bold(true).Foreground(colorAccent),
	}
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + currency
}

func (v *view) balance(a models.Apartment) string {
	s := money(a.Balance)
	switch a.BalanceState() {
	case models.BalanceDebt:
		return v.debt.Render(s)
	case models.BalanceCredit:
		return v.credit.Render(s)
	default:
		return v.muted.Render(s)
	}
}

func (v *view) amount(t models.Transaction) string {
	if t.IsIncome() {
		return v.credit.Render("+" + money(t.Amount))
	}

	return v.debt.Render(money(t.Amount))
}

// progressBar рисует полосу из width ячеек.
func progressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}

	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func (v *view) expense(e models.GlobalExpense) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", v.title.Render(e.Title()), v.muted.Render(e.Date.Local().Format("02.01.2006")))
	if e.Category != nil && e.Category.Name != "" {
		fmt.Fprintf(&b, "  Категория: %s\n", e.Category.Name)
	}
	fmt.Fprintf(&b, "  Собрано %s из %s\n", money(e.CollectedAmount), money(e.TotalAmount))
	fmt.Fprintf(&b, "  %s %.0f%%  оплатили %d из %d\n",
		progressBar(e.ProgressPercent(), 20), e.ProgressPercent(), e.PaidCount(), len(e.Participants))

	return b.String()
}

func apartmentLabel(u models.User) string {
	if u.Apartment == nil {
		return "—"
	}

	return "кв. " + strconv.Itoa(u.Apartment.Number)
}

func userRole(u models.User) string {
	if u.IsAdmin() {
		return "Управдом"
	}

	return "Сосед"
}
