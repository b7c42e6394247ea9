package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/pribylovaa/upravdom-client/internal/api"
	apierrors "github.com/pribylovaa/upravdom-client/internal/errors"
	"github.com/pribylovaa/upravdom-client/internal/session"
)

// command — подкоманда CLI.
type command struct {
	summary string
	// anonymous — команда доступна без входа.
	anonymous bool
	// admin — команда доступна только управдому.
	admin bool
	// fallback — сообщение, если бэкенд не прислал своего.
	fallback string
	run      func(ctx context.Context, a *app, args []string) error
}

// errUsage — неверные аргументы команды (код выхода 2).
type errUsage struct{ msg string }

func (e *errUsage) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &errUsage{msg: fmt.Sprintf(format, args...)}
}

// userError — отказ, сформулированный для пользователя.
type userError struct{ msg string }

func (e *userError) Error() string       { return e.msg }
func (e *userError) UserMessage() string { return e.msg }

type app struct {
	sess *session.Session
	api  *api.Client
	log  *slog.Logger

	in     io.Reader
	lines  *bufio.Reader
	out    io.Writer
	errOut io.Writer
	view   *view
}

func newApp(sess *session.Session, client *api.Client, in io.Reader, out, errOut io.Writer, log *slog.Logger) *app {
	return &app{
		sess:   sess,
		api:    client,
		log:    log,
		in:     in,
		lines:  bufio.NewReader(in),
		out:    out,
		errOut: errOut,
		view:   newView(out),
	}
}

// exec восстанавливает сессию, проверяет доступ и выполняет команду.
func (a *app) exec(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(a.errOut, "укажите команду; список: upravdom --help")
		return 2
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(a.errOut, "неизвестная команда %q; список: upravdom --help\n", name)
		return 2
	}

	if err := a.sess.Bootstrap(ctx); err != nil {
		a.log.Warn("bootstrap_failed", slog.String("err", err.Error()))
		if !cmd.anonymous {
			a.report(err, "Не удалось связаться с сервером")
			return 1
		}
	}

	if !cmd.anonymous && a.sess.Route() != session.RouteMain {
		fmt.Fprintln(a.errOut, "Требуется вход: upravdom login --phone <телефон>")
		return 1
	}
	if cmd.admin && !a.sess.Identity().IsAdmin() {
		fmt.Fprintln(a.errOut, "Ошибка: команда доступна только управдому")
		return 1
	}

	err := cmd.run(ctx, a, args[1:])
	var ue *errUsage
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue):
		fmt.Fprintf(a.errOut, "%s: %s\n", name, ue.msg)
		return 2
	default:
		a.log.Debug("command_failed", slog.String("command", name), slog.String("err", err.Error()))
		a.report(err, cmd.fallback)
		return 1
	}
}

func (a *app) report(err error, fallback string) {
	if fallback == "" {
		fallback = "Что-то пошло не так"
	}
	if apierrors.KindOf(err) == apierrors.KindTransient && apierrors.UserMessage(err, "") == "" {
		fallback = "Не удалось связаться с сервером"
	}

	fmt.Fprintln(a.errOut, "Ошибка:", apierrors.UserMessage(err, fallback))
}

// flags создаёт набор флагов подкоманды.
func (a *app) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func (a *app) parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}

	return nil
}

// prompt читает строку ввода.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.errOut, label)

	line, err := a.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// secret читает пароль: с терминала без эха, иначе строкой из stdin.
func (a *app) secret(label string) (string, error) {
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.errOut, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := a.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}
