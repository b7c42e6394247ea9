package backendtest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/upravdom-client/internal/models"
)

type ctxKey struct{}

// ---- middleware ----

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: append([]string(nil), r.Header.Values("Authorization")...),
			RequestID:     r.Header.Get("X-Request-Id"),
			Body:          body,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := r.Method + " " + r.URL.Path

		s.mu.Lock()
		queue := s.failNext[k]
		var f *failure
		if len(queue) > 0 {
			f = &queue[0]
			s.failNext[k] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			writeError(w, f.status, f.message)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		reject := s.rejectAccess
		s.mu.Unlock()

		uid, ok := s.userIDFromAccess(bearer(r))
		if reject || !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		acc := s.accountByID(uid)
		if acc == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, acc)))
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !current(r).identity.IsAdmin() {
			writeError(w, http.StatusForbidden, "Forbidden resource")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func current(r *http.Request) *account {
	acc, _ := r.Context().Value(ctxKey{}).(*account)
	return acc
}

func (s *Server) accountByID(id int64) *account {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acc := range s.accounts {
		if acc.identity.ID == id {
			return acc
		}
	}

	return nil
}

func decode(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// ---- auth ----

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	s.mu.Lock()
	acc := s.accounts[req.Phone]
	s.mu.Unlock()

	if acc == nil || bcrypt.CompareHashAndPassword(acc.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Неверный телефон или пароль")
		return
	}

	s.mu.Lock()
	pair := s.issueLocked(acc.identity.ID, time.Now().Add(s.accessTTL))
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, pair)
}

func (s *Server) refreshTokens(w http.ResponseWriter, r *http.Request) {
	rt := bearer(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	uid, ok := s.refresh[rt]
	if rt == "" || !ok {
		writeError(w, http.StatusUnauthorized, "Access Denied")
		return
	}

	// Ротация: старый refresh-токен больше не действует.
	delete(s.refresh, rt)
	writeJSON(w, http.StatusCreated, s.issueLocked(uid, time.Now().Add(s.accessTTL)))
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, current(r).identity)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	acc := current(r)
	if bcrypt.CompareHashAndPassword(acc.hash, []byte(req.OldPasswordPlain)) != nil {
		writeError(w, http.StatusBadRequest, "Старый пароль неверен")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPasswordPlain), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.mu.Lock()
	acc.hash = hash
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// ---- apartments ----

func (s *Server) listApartments(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]models.Apartment, 0, len(s.apartments))
	for _, a := range s.apartments {
		out = append(out, a.Apartment)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getApartment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Validation failed (numeric string is expected)")
		return
	}

	s.mu.Lock()
	a, found := s.apartments[id]
	var out models.ApartmentDetails
	if found {
		out = *a
		out.Transactions = append([]models.Transaction(nil), a.Transactions...)
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "Квартира не найдена")
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// ---- expenses ----

func (s *Server) listExpenses(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := append([]models.GlobalExpense{}, s.expenses...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGlobalExpenseRequest
	if !decode(r, &req) || req.TotalAmount <= 0 || len(req.ParticipatingApartmentIDs) == 0 {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	share := math.Ceil(req.TotalAmount / float64(len(req.ParticipatingApartmentIDs)))
	s.nextID++
	exp := models.GlobalExpense{
		ID:          s.nextID,
		TotalAmount: req.TotalAmount,
		Description: req.Description,
		Date:        time.Now().UTC(),
	}

	for _, aid := range req.ParticipatingApartmentIDs {
		a, ok := s.apartments[aid]
		if !ok {
			writeError(w, http.StatusNotFound, "Квартира не найдена")
			return
		}
		exp.Participants = append(exp.Participants, models.Participant{ID: a.ID, Number: a.Number})
	}

	for _, aid := range req.ParticipatingApartmentIDs {
		a := s.apartments[aid]
		a.Balance -= share
		s.nextID++
		a.Transactions = append(a.Transactions, models.Transaction{
			ID:          s.nextID,
			Amount:      -share,
			Date:        exp.Date,
			Description: req.Description,
		})
	}

	s.expenses = append(s.expenses, exp)
	writeJSON(w, http.StatusCreated, exp)
}

// ---- categories ----

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]models.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCategoryRequest
	if !decode(r, &req) || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	c := models.Category{ID: s.nextID, Name: req.Name}
	s.categories[c.ID] = c
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.categories[id]; !found {
		writeError(w, http.StatusNotFound, "Категория не найдена")
		return
	}

	delete(s.categories, id)
	w.WriteHeader(http.StatusNoContent)
}

// ---- users ----

func (s *Server) listUsers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]models.User, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, s.userLocked(acc))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) userLocked(acc *account) models.User {
	u := models.User{
		ID:          acc.identity.ID,
		Phone:       acc.identity.Phone,
		Role:        acc.identity.Role,
		ApartmentID: acc.identity.ApartmentID,
	}
	if acc.identity.FullName != nil {
		u.FullName = *acc.identity.FullName
	}

	if u.ApartmentID != nil {
		if a, ok := s.apartments[*u.ApartmentID]; ok {
			u.Apartment = &models.ApartmentRef{Number: a.Number}
		}
	}

	return u
}

func (s *Server) registerNeighbor(w http.ResponseWriter, r *http.Request) {
	var req models.ResidentRequest
	if !decode(r, &req) || req.Phone == "" || req.PasswordPlain == "" {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PasswordPlain), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[req.Phone]; exists {
		writeError(w, http.StatusConflict, "Пользователь с таким телефоном уже существует")
		return
	}

	s.nextID++
	acc := &account{
		identity: models.Identity{
			ID:          s.nextID,
			Phone:       req.Phone,
			Role:        models.RoleUser,
			ApartmentID: req.ApartmentID,
			FullName:    optional(req.FullName),
		},
		hash: hash,
	}
	s.accounts[req.Phone] = acc

	writeJSON(w, http.StatusCreated, s.userLocked(acc))
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	var req models.ResidentRequest
	if !ok || !decode(r, &req) {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	var hash []byte
	if req.PasswordPlain != "" {
		var err error
		if hash, err = bcrypt.GenerateFromPassword([]byte(req.PasswordPlain), bcrypt.MinCost); err != nil {
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var acc *account
	for _, a := range s.accounts {
		if a.identity.ID == id {
			acc = a
		}
	}
	if acc == nil {
		writeError(w, http.StatusNotFound, "Пользователь не найден")
		return
	}

	if req.Phone != "" && req.Phone != acc.identity.Phone {
		delete(s.accounts, acc.identity.Phone)
		acc.identity.Phone = req.Phone
		s.accounts[req.Phone] = acc
	}
	if req.FullName != "" {
		acc.identity.FullName = optional(req.FullName)
	}
	acc.identity.ApartmentID = req.ApartmentID
	if hash != nil {
		acc.hash = hash
	}

	writeJSON(w, http.StatusOK, s.userLocked(acc))
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for phone, acc := range s.accounts {
		if acc.identity.ID == id {
			delete(s.accounts, phone)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	writeError(w, http.StatusNotFound, "Пользователь не найден")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
