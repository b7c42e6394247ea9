package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/pribylovaa/upravdom-client/internal/api"
	"github.com/pribylovaa/upravdom-client/internal/models"
	"github.com/pribylovaa/upravdom-client/internal/session"
)

var commandOrder = []string{
	"login", "logout", "whoami", "passwd",
	"apartments", "apartment",
	"expenses", "expense-add",
	"categories", "category-add", "category-rm",
	"residents", "resident-add", "resident-edit", "resident-rm",
}

var commands = map[string]command{
	"login":         {summary: "войти по телефону и паролю", anonymous: true, run: cmdLogin},
	"logout":        {summary: "выйти из аккаунта", anonymous: true, run: cmdLogout},
	"whoami":        {summary: "показать текущего пользователя", run: cmdWhoami},
	"passwd":        {summary: "сменить пароль", fallback: "Не удалось сменить пароль", run: cmdPasswd},
	"apartments":    {summary: "квартиры и балансы", fallback: "Не удалось загрузить данные с сервера", run: cmdApartments},
	"apartment":     {summary: "история операций квартиры: apartment <id>", fallback: "Не удалось загрузить данные", run: cmdApartment},
	"expenses":      {summary: "общие сборы", fallback: "Не удалось загрузить данные", run: cmdExpenses},
	"expense-add":   {summary: "распределить сумму между квартирами", admin: true, fallback: "Не удалось создать сбор", run: cmdExpenseAdd},
	"categories":    {summary: "категории операций", fallback: "Не удалось загрузить категории", run: cmdCategories},
	"category-add":  {summary: "добавить категорию: category-add <название>", admin: true, fallback: "Не удалось добавить категорию", run: cmdCategoryAdd},
	"category-rm":   {summary: "удалить категорию: category-rm <id>", admin: true, run: cmdCategoryRm},
	"residents":     {summary: "список жильцов", admin: true, fallback: "Не удалось загрузить список жильцов", run: cmdResidents},
	"resident-add":  {summary: "зарегистрировать жильца", admin: true, fallback: "Не удалось сохранить данные", run: cmdResidentAdd},
	"resident-edit": {summary: "изменить данные жильца: resident-edit <id>", admin: true, fallback: "Не удалось сохранить данные", run: cmdResidentEdit},
	"resident-rm":   {summary: "удалить жильца: resident-rm <id>", admin: true, fallback: "Не удалось удалить", run: cmdResidentRm},
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, usagef("ожидается один аргумент <id>")
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, usagef("некорректный id %q", args[0])
	}

	return id, nil
}

// ---- сессия ----

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := a.flags("login")
	phone := fs.String("phone", "", "номер телефона")
	if err := a.parse(fs, args); err != nil {
		return err
	}

	var err error
	if *phone == "" {
		if *phone, err = a.prompt("Телефон: "); err != nil {
			return err
		}
	}

	password, err := a.secret("Пароль: ")
	if err != nil {
		return err
	}

	if err := a.sess.Login(ctx, *phone, password); err != nil {
		return &userError{msg: session.LoginMessage(err)}
	}

	id := a.sess.Identity()
	fmt.Fprintf(a.out, "Вы вошли как %s (%s)\n", id.DisplayName(), id.DisplayRole())
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.sess.Logout(ctx); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Вы вышли из аккаунта")
	return nil
}

func cmdWhoami(_ context.Context, a *app, _ []string) error {
	id := a.sess.Identity()

	fmt.Fprintln(a.out, a.view.title.Render(id.DisplayName()))
	fmt.Fprintf(a.out, "Телефон: %s\n", id.Phone)
	fmt.Fprintf(a.out, "Роль:    %s\n", id.DisplayRole())
	if id.ApartmentID != nil {
		fmt.Fprintf(a.out, "Квартира: #%d\n", *id.ApartmentID)
	}

	return nil
}

func cmdPasswd(ctx context.Context, a *app, _ []string) error {
	oldPassword, err := a.secret("Текущий пароль: ")
	if err != nil {
		return err
	}
	newPassword, err := a.secret("Новый пароль: ")
	if err != nil {
		return err
	}
	confirm, err := a.secret("Повторите новый пароль: ")
	if err != nil {
		return err
	}
	if newPassword != confirm {
		return &userError{msg: "Пароли не совпадают"}
	}

	if err := a.api.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Пароль изменён")
	return nil
}

// ---- квартиры ----

func cmdApartments(ctx context.Context, a *app, _ []string) error {
	list, err := a.api.ListApartments(ctx)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Fprintln(a.out, a.view.muted.Render("Квартир пока нет"))
		return nil
	}

	for _, apt := range list {
		fmt.Fprintf(a.out, "%-4d кв. %-5d %s\n", apt.ID, apt.Number, a.view.balance(apt))
	}

	return nil
}

func cmdApartment(ctx context.Context, a *app, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	d, err := a.api.Apartment(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s  баланс %s\n", a.view.title.Render("кв. "+strconv.Itoa(d.Number)), a.view.balance(d.Apartment))

	if len(d.Transactions) == 0 {
		fmt.Fprintln(a.out, a.view.muted.Render("Операций пока нет"))
		return nil
	}

	txs := append([]models.Transaction(nil), d.Transactions...)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.After(txs[j].Date) })

	for _, tx := range txs {
		line := fmt.Sprintf("%s  %-30s %s", tx.Date.Local().Format("02.01.2006"), tx.Title(), a.view.amount(tx))
		if tx.Category != nil && tx.Category.Name != "" {
			line += "  " + a.view.muted.Render(tx.Category.Name)
		}
		fmt.Fprintln(a.out, line)
	}

	return nil
}

// ---- общие сборы ----

func cmdExpenses(ctx context.Context, a *app, _ []string) error {
	list, err := a.api.ListGlobalExpenses(ctx)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Fprintln(a.out, a.view.muted.Render("Общих сборов пока нет"))
		return nil
	}

	for _, e := range list {
		fmt.Fprint(a.out, a.view.expense(e))
	}

	return nil
}

func cmdExpenseAdd(ctx context.Context, a *app, args []string) error {
	fs := a.flags("expense-add")
	amount := fs.Float64("amount", 0, "общая сумма")
	description := fs.String("description", "", "описание (по умолчанию «"+models.DefaultExpenseDescription+"»)")
	category := fs.Int64("category", 0, "id категории")
	apartments := fs.Int64Slice("apartments", nil, "id квартир через запятую")
	all := fs.Bool("all", false, "все квартиры дома")
	if err := a.parse(fs, args); err != nil {
		return err
	}

	ids := *apartments
	if *all {
		list, err := a.api.ListApartments(ctx)
		if err != nil {
			return err
		}
		ids = nil
		for _, apt := range list {
			ids = append(ids, apt.ID)
		}
	}

	req := models.CreateGlobalExpenseRequest{
		TotalAmount:               *amount,
		Description:               *description,
		CategoryID:                *category,
		ParticipatingApartmentIDs: ids,
	}

	e, err := a.api.CreateGlobalExpense(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Сумма успешно распределена. %s: по %s с квартиры (%d кв.)\n",
		e.Title(), money(api.ShareAmount(req.TotalAmount, len(ids))), len(ids))
	return nil
}

// ---- категории ----

func cmdCategories(ctx context.Context, a *app, _ []string) error {
	list, err := a.api.ListCategories(ctx)
	if err != nil {
		return err
	}

	for _, c := range list {
		name := c.Name
		if c.IsWallet() {
			name += " " + a.view.muted.Render("(служебная)")
		}
		fmt.Fprintf(a.out, "%-4d %s\n", c.ID, name)
	}

	return nil
}

func cmdCategoryAdd(ctx context.Context, a *app, args []string) error {
	c, err := a.api.CreateCategory(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Категория «%s» добавлена (id %d)\n", c.Name, c.ID)
	return nil
}

func cmdCategoryRm(ctx context.Context, a *app, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	if id == models.WalletCategoryID {
		return &userError{msg: "Служебную категорию удалить нельзя"}
	}

	if err := a.api.DeleteCategory(ctx, id); err != nil {
		a.log.Debug("category_delete_failed", slog.String("err", err.Error()))
		return &userError{msg: "Нельзя удалить категорию, по которой уже были платежи!"}
	}

	fmt.Fprintln(a.out, "Категория удалена")
	return nil
}

// ---- жильцы ----

func cmdResidents(ctx context.Context, a *app, _ []string) error {
	users, err := a.api.ListUsers(ctx)
	if err != nil {
		return err
	}

	for _, u := range users {
		name := u.FullName
		if name == "" {
			name = a.view.muted.Render("без имени")
		}
		fmt.Fprintf(a.out, "%-4d %-14s %-8s %-9s %s\n", u.ID, u.Phone, apartmentLabel(u), userRole(u), name)
	}

	return nil
}

// residentFlags — общие флаги формы жильца.
type residentFlags struct {
	fs        *pflag.FlagSet
	phone     *string
	name      *string
	apartment *int64
	password  *string
}

func newResidentFlags(a *app, name string) *residentFlags {
	fs := a.flags(name)

	return &residentFlags{
		fs:        fs,
		phone:     fs.String("phone", "", "телефон"),
		name:      fs.String("name", "", "ФИО"),
		apartment: fs.Int64("apartment", 0, "id квартиры"),
		password:  fs.String("password", "", "пароль (если не задан, будет запрошен)"),
	}
}

func cmdResidentAdd(ctx context.Context, a *app, args []string) error {
	rf := newResidentFlags(a, "resident-add")
	if err := a.parse(rf.fs, args); err != nil {
		return err
	}

	form := api.ResidentForm{
		Phone:       *rf.phone,
		FullName:    *rf.name,
		ApartmentID: *rf.apartment,
		Password:    *rf.password,
	}
	if form.Password == "" {
		var err error
		if form.Password, err = a.secret("Пароль жильца: "); err != nil {
			return err
		}
	}

	u, err := a.api.RegisterNeighbor(ctx, form)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Новый жилец успешно зарегистрирован! id %d, %s\n", u.ID, apartmentLabel(*u))
	return nil
}

// findUser ищет жильца в списке управдома.
func findUser(ctx context.Context, a *app, id int64) (*models.User, error) {
	users, err := a.api.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}

	return nil, &userError{msg: "Жилец не найден"}
}

// cmdResidentEdit отправляет форму целиком: поля, не заданные флагами,
// берутся из текущих данных жильца. Пароль меняется, только если задан.
func cmdResidentEdit(ctx context.Context, a *app, args []string) error {
	rf := newResidentFlags(a, "resident-edit")
	if err := a.parse(rf.fs, args); err != nil {
		return err
	}

	id, err := parseID(rf.fs.Args())
	if err != nil {
		return err
	}

	u, err := findUser(ctx, a, id)
	if err != nil {
		return err
	}

	form := api.ResidentForm{Phone: u.Phone, FullName: u.FullName}
	if u.ApartmentID != nil {
		form.ApartmentID = *u.ApartmentID
	}
	if rf.fs.Changed("phone") {
		form.Phone = *rf.phone
	}
	if rf.fs.Changed("name") {
		form.FullName = *rf.name
	}
	if rf.fs.Changed("apartment") {
		form.ApartmentID = *rf.apartment
	}
	if rf.fs.Changed("password") {
		form.Password = *rf.password
		if form.Password == "" {
			return usagef("--password не может быть пустым")
		}
	}

	if _, err := a.api.UpdateUser(ctx, id, form); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Данные жильца обновлены!")
	return nil
}

func cmdResidentRm(ctx context.Context, a *app, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	if self := a.sess.Identity(); self != nil && self.ID == id {
		return &userError{msg: "Нельзя удалить самого себя"}
	}

	u, err := findUser(ctx, a, id)
	if err != nil {
		return err
	}
	if u.IsAdmin() {
		return &userError{msg: "Нельзя удалить управдома"}
	}

	if err := a.api.DeleteUser(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Аккаунт %s удалён\n", u.Phone)
	return nil
}
