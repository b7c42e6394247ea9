// upravdom — терминальный клиент бэкенда управления финансами дома.
//
// Каждый запуск выполняет одну команду: восстанавливает сессию из
// хранилища токенов, проверяет права и обращается к бэкенду.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/pribylovaa/upravdom-client/internal/clients"
	"github.com/pribylovaa/upravdom-client/internal/config"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flagSet := pflag.NewFlagSet("upravdom", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(stderr)

	configPath := flagSet.String("config", "", "path to config file")
	envFile := flagSet.String("env-file", ".env", "dotenv file loaded before config (empty to skip)")
	logOutput := flagSet.String("log-output", "", "write log records to this file instead of stderr")
	help := flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(stdout, flagSet)
			return 0
		}
		return 2
	}
	if *help {
		printUsage(stdout, flagSet)
		return 0
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(stderr, "env file: %v\n", err)
			return 2
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}

	logWriter := stderr
	if *logOutput != "" {
		f, err := os.OpenFile(*logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fmt.Fprintf(stderr, "log output: %v\n", err)
			return 2
		}
		defer f.Close()
		logWriter = f
	}

	log := setupLogger(cfg.Env, logWriter)
	slog.SetDefault(log)

	cl, err := clients.New(ctx, *cfg, log)
	if err != nil {
		log.Error("clients_init_failed", slog.String("err", err.Error()))
		fmt.Fprintln(stderr, "Не удалось инициализировать клиент:", err)
		return 1
	}

	defer func() {
		if err := cl.WriteMetrics(cfg.Metrics.Textfile); err != nil {
			log.Warn("metrics_write_failed", slog.String("err", err.Error()))
		}
		if err := cl.Close(); err != nil {
			log.Warn("clients_close_failed", slog.String("err", err.Error()))
		}
	}()

	a := newApp(cl.Session, cl.API, stdin, stdout, stderr, log)
	return a.exec(ctx, flagSet.Args())
}

func setupLogger(env string, w io.Writer) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		log = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: upravdom [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	fmt.Fprint(w, flagSet.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		cmd := commands[name]
		fmt.Fprintf(w, "  %-14s %s\n", name, cmd.summary)
	}
}
