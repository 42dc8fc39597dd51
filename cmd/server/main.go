// Command libris-server starts the libris HTTP API and its gRPC health listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/and161185/libris/internal/config"
	"github.com/and161185/libris/internal/limiter"
	"github.com/and161185/libris/internal/migrate"
	"github.com/and161185/libris/internal/repository"
	"github.com/and161185/libris/internal/repository/memory"
	"github.com/and161185/libris/internal/repository/postgres"
	grpcserver "github.com/and161185/libris/internal/server/grpc"
	"github.com/and161185/libris/internal/server/httpapi"
	"github.com/and161185/libris/internal/service"
	"github.com/and161185/libris/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// Login limiter: 5 failures within 15 minutes block the (username, ip) pair for 15 minutes.
const (
	loginWindow   = 15 * time.Minute
	loginMaxFails = 5
	loginBlockFor = 15 * time.Minute
)

const shutdownTimeout = 5 * time.Second

type backend struct {
	users    repository.UserRepository
	catalog  repository.CatalogRepository
	ledger   repository.LedgerRepository
	reviews  repository.ReviewRepository
	profiles repository.ProfileRepository
	contacts repository.ContactRepository
	visits   repository.VisitRepository
	lim      limiter.Limiter
	ready    grpcserver.Pinger
	close    func()
}

// main loads configuration and hands over to run; a run error exits with 1.
func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	cfg, err := config.FromOS()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	err = run(cfg, logger)
	if err != nil {
		logger.Error("server stopped", zap.Error(err))
	} else {
		logger.Info("shutdown complete")
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run prepares storage and serves until SIGINT/SIGTERM or a listener fails.
// Every resource it opens is released before it returns.
func run(cfg *config.Config, logger *zap.Logger) error {
	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer be.close()

	var images service.ObjectStore
	if cfg.ImagesEnabled() {
		s3i, err := storage.NewS3Images(ctx, storage.Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		images = s3i
	} else {
		logger.Warn("s3 bucket not set; cover and photo uploads are disabled")
	}

	// Services
	authSvc := service.NewAuthService(be.users, []byte(cfg.JWTKey), cfg.AccessTTL, be.lim, cfg.AdminUsers)
	ledgerSvc, err := service.NewLedgerService(be.ledger,
		service.WithLoanPeriod(cfg.LoanPeriod),
		service.WithBorrowQuota(cfg.BorrowQuota),
	)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	// The visit log flushes after HTTP has drained and before storage closes.
	var visits *service.VisitLog
	if cfg.VisitLog {
		visits = service.NewVisitLog(be.visits, logger, 0)
		vctx, cancelVisits := context.WithCancel(context.Background())
		flushed := make(chan struct{})
		go func() {
			visits.Run(vctx, cfg.VisitFlush)
			close(flushed)
		}()
		defer func() {
			cancelVisits()
			<-flushed
		}()
	}

	var ipLimiter *limiter.IPRateLimiter
	if cfg.Rate > 0 {
		ipLimiter = limiter.NewIPRateLimiter(rate.Limit(cfg.Rate), cfg.Burst)
	}

	httpSrv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Auth:          authSvc,
			Catalog:       service.NewCatalogService(be.catalog, images),
			Ledger:        ledgerSvc,
			Reviews:       service.NewReviewService(be.reviews, be.catalog),
			Profiles:      service.NewProfileService(be.profiles, images),
			Contact:       service.NewContactService(be.contacts),
			Visits:        visits,
			Log:           logger,
			RateLimiter:   ipLimiter,
			Ready:         be.ready,
			ImageMaxBytes: cfg.ImageMaxMB << 20,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Health listener is set up first so a bad address fails before HTTP starts.
	var (
		grpcSrv *grpc.Server
		grpcLis net.Listener
	)
	if cfg.GRPCAddr != "" {
		var opts []grpc.ServerOption
		if cfg.TLS() {
			creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				return fmt.Errorf("load TLS cert/key: %w", err)
			}
			opts = append(opts, grpc.Creds(creds))
		}
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		hs := grpcserver.NewHealth(be.ready, logger)
		go hs.Watch(ctx, grpcserver.DefaultCheckInterval)
		grpcSrv = grpcserver.NewServer(logger, hs, cfg.Dev, opts...)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Addr), zap.Bool("tls", cfg.TLS()))
		var err error
		if cfg.TLS() {
			err = httpSrv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if grpcSrv != nil {
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
			errCh <- grpcSrv.Serve(grpcLis)
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdown(logger, httpSrv, grpcSrv)
		return nil
	case err := <-errCh:
		shutdown(logger, httpSrv, grpcSrv)
		return err
	}
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// openBackend prepares the configured storage. Postgres is migrated first.
func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	if cfg.Storage == config.StorageMemory {
		st := memory.New()
		return &backend{
			users: st, catalog: st, ledger: st, reviews: st,
			profiles: st, contacts: st, visits: st,
			lim:   limiter.NewMemory(loginWindow, loginMaxFails, loginBlockFor),
			ready: st,
			close: func() {},
		}, nil
	}

	if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
		return nil, err
	}
	db, err := postgres.New(ctx, cfg.DSN, cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	return &backend{
		users:    postgres.NewUserRepo(db),
		catalog:  postgres.NewCatalogRepo(db),
		ledger:   postgres.NewLedgerRepo(db),
		reviews:  postgres.NewReviewRepo(db),
		profiles: postgres.NewProfileRepo(db),
		contacts: postgres.NewContactRepo(db),
		visits:   postgres.NewVisitRepo(db),
		lim:      limiter.NewPG(db.Pool, loginWindow, loginMaxFails, loginBlockFor),
		ready:    db,
		close:    db.Close,
	}, nil
}

// shutdown drains HTTP first, then the health listener; both are bounded by shutdownTimeout.
func shutdown(log *zap.Logger, httpSrv *http.Server, grpcSrv *grpc.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		grpcSrv.Stop()
	}
}
