// backendtest — поддельный REST-бэкенда "управдома" для тестов клиента.
//
// Сервер выдаёт настоящие JWT (HS256) с управляемым сроком жизни, ротирует
// refresh-токены при каждом обновлении и записывает каждый входящий вызов,
// чтобы тесты могли проверять заголовки и число обращений к эндпойнтам.
// Бизнес-логика (балансы, распределение сборов) упрощена до минимума,
// достаточного для проверки клиентских запросов.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/upravdom-client/internal/models"
)

// Call — запись о входящем запросе.
type Call struct {
	Method        string
	Path          string
	Authorization []string
	RequestID     string
	Body          []byte
}

type account struct {
	identity models.Identity
	hash     []byte
}

type failure struct {
	status  int
	message string
}

// Server — поддельный бэкенд поверх httptest.Server.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	secret    []byte
	accessTTL time.Duration

	accounts map[string]*account // phone -> account
	refresh  map[string]int64    // действующие refresh-токены -> user id
	calls    []Call
	failNext map[string][]failure // "METHOD /path" -> очередь ответов-ошибок

	rejectAccess bool

	apartments map[int64]*models.ApartmentDetails
	categories map[int64]models.Category
	expenses   []models.GlobalExpense
	nextID     int64
}

// New запускает сервер; он закрывается в t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		secret:     []byte("backendtest-secret"),
		accessTTL:  15 * time.Minute,
		accounts:   make(map[string]*account),
		refresh:    make(map[string]int64),
		failNext:   make(map[string][]failure),
		apartments: make(map[int64]*models.ApartmentDetails),
		categories: map[int64]models.Category{
			models.WalletCategoryID: {ID: models.WalletCategoryID, Name: "Кошелёк"},
		},
		nextID: 100,
	}

	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record, s.injectFailures)

	r.Post("/auth/login", s.login)
	r.Post("/auth/refresh", s.refreshTokens)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAccess)

		r.Get("/auth/profile", s.profile)
		r.Patch("/users/change-password", s.changePassword)

		r.Get("/apartments", s.listApartments)
		r.Get("/apartments/{id}", s.getApartment)

		r.Get("/global-expenses", s.listExpenses)
		r.With(s.adminOnly).Post("/global-expenses", s.createExpense)

		r.Get("/categories", s.listCategories)
		r.With(s.adminOnly).Post("/categories", s.createCategory)
		r.With(s.adminOnly).Delete("/categories/{id}", s.deleteCategory)

		r.With(s.adminOnly).Get("/users", s.listUsers)
		r.With(s.adminOnly).Post("/users/register-neighbor", s.registerNeighbor)
		r.With(s.adminOnly).Patch("/users/{id}", s.updateUser)
		r.With(s.adminOnly).Delete("/users/{id}", s.deleteUser)
	})

	return r
}

// ---- управление сценарием ----

// AddUser регистрирует учётную запись.
func (s *Server) AddUser(id models.Identity, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[id.Phone] = &account{identity: id, hash: hash}
}

// AddApartment добавляет квартиру.
func (s *Server) AddApartment(a models.Apartment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apartments[a.ID] = &models.ApartmentDetails{Apartment: a}
}

// AddCategory добавляет категорию.
func (s *Server) AddCategory(c models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
}

// IssuePair выдаёт действующую пару токенов пользователю.
func (s *Server) IssuePair(userID int64) models.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(userID, time.Now().Add(s.accessTTL))
}

// ExpiredAccess выдаёт access-токен с истёкшим сроком.
func (s *Server) ExpiredAccess(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signLocked(userID, time.Now().Add(-time.Minute))
}

// RevokeRefresh отзывает refresh-токен.
func (s *Server) RevokeRefresh(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, token)
}

// RejectAccess заставляет защищённые эндпойнты отвечать 401 на любой токен.
func (s *Server) RejectAccess(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectAccess = v
}

// FailNext ставит в очередь ответ-ошибку для следующего вызова method path.
func (s *Server) FailNext(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := method + " " + path
	s.failNext[k] = append(s.failNext[k], failure{status: status, message: message})
}

// Calls возвращает копию журнала вызовов.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo возвращает вызовы конкретного эндпойнта.
func (s *Server) CallsTo(method, path string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}

	return out
}

// Expenses возвращает созданные сборы.
func (s *Server) Expenses() []models.GlobalExpense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.GlobalExpense(nil), s.expenses...)
}

// ---- токены ----

type claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

func (s *Server) signLocked(userID int64, exp time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		panic(err)
	}

	return signed
}

func (s *Server) issueLocked(userID int64, exp time.Time) models.TokenPair {
	rt := uuid.NewString()
	s.refresh[rt] = userID
	return models.TokenPair{AccessToken: s.signLocked(userID, exp), RefreshToken: rt}
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}

	return strings.TrimSpace(auth[len(prefix):])
}

func (s *Server) userIDFromAccess(tokenStr string) (int64, bool) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(tokenStr, c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, false
	}

	return c.UserID, true
}

// ---- ответы ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError пишет ошибку в формате NestJS.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    message,
		"error":      http.StatusText(status),
	})
}
