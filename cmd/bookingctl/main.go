// Package main запускает консольный клиент бронирования автошкол.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/autoecole-booking/internal/config"
	"github.com/mmeshcher/autoecole-booking/internal/gateway"
	"github.com/mmeshcher/autoecole-booking/internal/logger"
	"github.com/mmeshcher/autoecole-booking/internal/repository"
	"github.com/mmeshcher/autoecole-booking/internal/service"
	"github.com/mmeshcher/autoecole-booking/internal/session"
)

const sessionTTL = 30 * 24 * time.Hour

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}

	log, err := logger.New(cfg.Env, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		return 2
	}
	defer log.Sync()

	sugar := log.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log, os.Stdout)
	if err != nil {
		sugar.Errorw("client initialization error", "error", err.Error())
		return 1
	}
	defer a.close()

	if err := a.run(ctx, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// app связывает сессию, сервисы и журнал для команд клиента.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer

	holder   *session.Holder
	auth     *service.AuthService
	schools  *service.SchoolService
	bookings *service.BookingService
	invoices *service.InvoiceService

	journal *repository.PostgresJournal
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, out io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: log, out: out}

	store, err := a.sessionStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	a.holder = session.NewHolder(store, log)
	if err := a.holder.Init(ctx); err != nil {
		log.Warn("stored session ignored", zap.Error(err))
	}

	client := gateway.NewClient(cfg.APIBaseURL,
		gateway.WithTokenSource(a.holder),
		gateway.WithTimeout(cfg.RequestTimeout),
		gateway.WithLogger(log),
	)
	a.auth = service.NewAuthService(client, a.holder)
	a.schools = service.NewSchoolService(client)
	a.bookings = service.NewBookingService(client)
	a.invoices = service.NewInvoiceService(client)

	if cfg.DatabaseURI != "" {
		j, err := repository.NewPostgresJournal(ctx, cfg.DatabaseURI)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open flow journal: %w", err)
		}
		a.journal = j
		a.closers = append(a.closers, j.Close)
	}

	return a, nil
}

// sessionStore выбирает хранилище сессии: Redis, если задан REDIS_URL, иначе файл.
func (a *app) sessionStore(ctx context.Context) (session.Store, error) {
	if a.cfg.RedisURL != "" {
		client, err := session.NewRedisClient(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return session.NewRedisStore(client, os.Getenv("USER"), sessionTTL), nil
	}

	path := a.cfg.SessionFile
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve session directory: %w", err)
		}
		path = filepath.Join(dir, "autoecole", "session.json")
	}
	return session.NewFileStore(path), nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource", zap.Error(err))
		}
	}
	a.closers = nil
}
