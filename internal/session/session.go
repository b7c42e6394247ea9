// session хранит состояние сессии клиента: текущий профиль (или его
// отсутствие) и признак первичной загрузки при старте процесса.
//
// Хранилище токенов и бэкенд доступны через интерфейсы, объявленные здесь
// же на стороне потребителя, поэтому session не зависит от транспорта.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	apierrors "github.com/pribylovaa/upravdom-client/internal/errors"
	"github.com/pribylovaa/upravdom-client/internal/models"
	"github.com/pribylovaa/upravdom-client/internal/tokenstore"
	logctx "github.com/pribylovaa/upravdom-client/pkg/log"
	"github.com/pribylovaa/upravdom-client/pkg/redact"
)

var (
	// ErrAlreadyBootstrapped — Bootstrap вызывается один раз за время жизни процесса.
	ErrAlreadyBootstrapped = errors.New("session already bootstrapped")
	// ErrEmptyCredentials — телефон или пароль не заполнены.
	ErrEmptyCredentials = errors.New("phone and password are required")
)

//go:generate mockgen -source=session.go -destination=mocks/mock_session.go -package=mocks

// AuthAPI — операции бэкенда, нужные сессии.
type AuthAPI interface {
	// Login обменивает телефон и пароль на пару токенов, не запуская обновление.
	Login(ctx context.Context, phone, password string) (models.TokenPair, error)
	// Profile возвращает профиль владельца текущего access-токена.
	Profile(ctx context.Context) (*models.Identity, error)
}

// Status — состояние сессии.
type Status int

const (
	StatusBootstrapping Status = iota
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusBootstrapping:
		return "bootstrapping"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State — снимок состояния сессии.
type State struct {
	Identity         *models.Identity
	LoadingBootstrap bool
}

// Status выводит состояние из снимка.
func (s State) Status() Status {
	switch {
	case s.LoadingBootstrap:
		return StatusBootstrapping
	case s.Identity != nil:
		return StatusAuthenticated
	default:
		return StatusAnonymous
	}
}

// Route — экран, который разрешено показывать в текущем состоянии.
type Route string

const (
	RouteSplash Route = "splash"
	RouteLogin  Route = "login"
	RouteMain   Route = "main"
)

// Session — потокобезопасное хранилище состояния сессии с подписчиками.
type Session struct {
	tokens tokenstore.Store
	auth   AuthAPI
	log    *slog.Logger

	mu           sync.Mutex
	state        State
	bootstrapped bool
	nextSub      int
	subs         map[int]func(State)
}

// New создаёт сессию в состоянии первичной загрузки.
func New(tokens tokenstore.Store, auth AuthAPI, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}

	return &Session{
		tokens: tokens,
		auth:   auth,
		log:    log,
		state:  State{LoadingBootstrap: true},
		subs:   make(map[int]func(State)),
	}
}

// State возвращает текущий снимок.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity — текущий профиль или nil.
func (s *Session) Identity() *models.Identity { return s.State().Identity }

// Route — экран для текущего состояния.
func (s *Session) Route() Route {
	switch s.State().Status() {
	case StatusBootstrapping:
		return RouteSplash
	case StatusAuthenticated:
		return RouteMain
	default:
		return RouteLogin
	}
}

// Subscribe регистрирует наблюдателя. Он вызывается синхронно после каждого
// изменения состояния, вне блокировки. Возвращает функцию отписки.
func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}
}

// update применяет мутацию и уведомляет подписчиков.
func (s *Session) update(mutate func(*State)) {
	s.mu.Lock()
	mutate(&s.state)
	st := s.state
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// SetIdentity напрямую задаёт профиль (nil для анонимной сессии).
// Хранилище токенов не трогает.
func (s *Session) SetIdentity(id *models.Identity) {
	s.update(func(st *State) { st.Identity = id })
}

// Bootstrap определяет начальное состояние по сохранённым токенам.
//
//   - нет access-токена: анонимная сессия, бэкенд не вызывается;
//   - профиль получен: сессия аутентифицирована;
//   - 401 (в том числе после неудачного обновления): токены удаляются,
//     сессия анонимна, ошибка не возвращается;
//   - прочие ошибки: сессия анонимна, токены остаются, ошибка возвращается.
//
// В любом случае LoadingBootstrap становится false. Повторный вызов
// возвращает ErrAlreadyBootstrapped.
func (s *Session) Bootstrap(ctx context.Context) error {
	const op = "session.Bootstrap"

	s.mu.Lock()
	if s.bootstrapped {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrAlreadyBootstrapped)
	}
	s.bootstrapped = true
	s.mu.Unlock()

	log := s.logger(ctx)

	id, err := s.fetchIdentity(ctx)
	if errors.Is(err, apierrors.ErrUnauthorized) {
		log.Info("bootstrap_unauthorized")
		err = nil
	}
	if err != nil {
		log.Warn("bootstrap_profile_failed", slog.String("err", err.Error()))
		err = fmt.Errorf("%s: %w", op, err)
	}

	s.update(func(st *State) {
		st.Identity = id
		st.LoadingBootstrap = false
	})

	log.Info("bootstrap_done", slog.String("status", s.State().Status().String()))

	return err
}

// ReloadIdentity повторяет загрузку профиля (например, после входа).
//
//   - нет access-токена: сессия анонимна;
//   - 401: токены удаляются, сессия анонимна, ошибка возвращается;
//   - прочие ошибки: состояние не меняется, ошибка возвращается.
//
// LoadingBootstrap не меняется.
func (s *Session) ReloadIdentity(ctx context.Context) error {
	const op = "session.ReloadIdentity"

	log := s.logger(ctx)

	id, err := s.fetchIdentity(ctx)
	switch {
	case err == nil:
		s.SetIdentity(id)
		return nil
	case errors.Is(err, apierrors.ErrUnauthorized):
		s.SetIdentity(nil)
		log.Info("reload_identity_unauthorized")
	default:
		log.Warn("reload_identity_failed", slog.String("err", err.Error()))
	}

	return fmt.Errorf("%s: %w", op, err)
}

// fetchIdentity читает access-токен и загружает профиль.
// Без токена возвращает (nil, nil). На 401 удаляет обе записи токенов.
func (s *Session) fetchIdentity(ctx context.Context) (*models.Identity, error) {
	_, ok, err := s.tokens.Get(ctx, tokenstore.KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}
	if !ok {
		return nil, nil
	}

	id, err := s.auth.Profile(ctx)
	if err == nil {
		return id, nil
	}

	if errors.Is(err, apierrors.ErrUnauthorized) {
		if cerr := tokenstore.Clear(ctx, s.tokens); cerr != nil {
			s.logger(ctx).Error("clear_tokens_failed", slog.String("err", cerr.Error()))
		}
	}

	return nil, err
}

// Login — вход по телефону и паролю.
//
// Поля проверяются локально до обращения к бэкенду. При ошибке входа токены
// и профиль не меняются, сообщение бэкенда доступно через
// apierrors.UserMessage.
func (s *Session) Login(ctx context.Context, phone, password string) error {
	const op = "session.Login"

	phone = strings.TrimSpace(phone)
	if phone == "" || password == "" {
		return fmt.Errorf("%s: %w", op, ErrEmptyCredentials)
	}

	log := s.logger(ctx).With(slog.String("phone", redact.Phone(phone)))

	pair, err := s.auth.Login(ctx, phone, password)
	if err != nil {
		log.Info("login_failed", slog.String("err", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tokenstore.SavePair(ctx, s.tokens, pair); err != nil {
		log.Error("login_save_tokens_failed", slog.String("err", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.ReloadIdentity(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("login_ok")
	return nil
}

// Logout удаляет токены и сбрасывает профиль. Профиль сбрасывается, даже
// если хранилище вернуло ошибку.
func (s *Session) Logout(ctx context.Context) error {
	const op = "session.Logout"

	err := tokenstore.Clear(ctx, s.tokens)
	s.SetIdentity(nil)

	if err != nil {
		s.logger(ctx).Error("logout_clear_failed", slog.String("err", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Сообщения об ошибках входа для пользователя.
const (
	MsgFillAllFields = "Пожалуйста, заполните все поля"
	MsgLoginFailed   = "Что-то пошло не так при входе"
)

// LoginMessage — текст ошибки входа для показа пользователю.
func LoginMessage(err error) string {
	if errors.Is(err, ErrEmptyCredentials) {
		return MsgFillAllFields
	}

	return apierrors.UserMessage(err, MsgLoginFailed)
}

func (s *Session) logger(ctx context.Context) *slog.Logger {
	if l := logctx.From(ctx); l != slog.Default() {
		return l
	}

	return s.log
}
