package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tendermarket/db"
	"tendermarket/db/migrations"
	"tendermarket/internal/audit"
	"tendermarket/internal/auth"
	"tendermarket/internal/blobstore"
	"tendermarket/internal/config"
	"tendermarket/internal/eds"
	"tendermarket/internal/handlers"
	"tendermarket/internal/logger"
	"tendermarket/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zl.Sync()

	dbConn, err := sqlx.Connect("postgres", cfg.PostgresConn)
	if err != nil {
		zl.Fatal("cannot connect to DB", zap.Error(err))
	}
	defer dbConn.Close()

	migrations.Run(cfg.PostgresConn)

	store := db.NewStorage(dbConn)
	recorder := audit.NewRecorder(store, zl)
	authSvc := auth.NewService(store, recorder)
	tokens := auth.NewTokenManager([]byte(cfg.JWTSecret), cfg.JWTTTL)
	agent := eds.NewAgent(cfg.SigningAgentURL, cfg.SigningAgentTimeout)

	blobs, err := blobstore.NewS3Store(context.Background(), blobstore.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		zl.Fatal("cannot init blob storage", zap.Error(err))
	}

	h := handlers.NewHandler(store, authSvc, tokens, recorder, agent, blobs, zl)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(zl))
	r.Use(metrics.Middleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)

		// аутентификация
		r.Post("/auth/register", h.RegisterHandler)
		r.Post("/auth/register/eds", h.RegisterEDSHandler)
		r.Post("/auth/login", h.LoginHandler)
		r.Post("/auth/login/eds", h.LoginEDSHandler)
		r.Post("/auth/eds/sign", h.SignNonceHandler)

		// публичная витрина тендеров
		r.Get("/tenders", h.GetTendersHandler)
		r.Get("/tenders/{tenderId}", h.GetTenderHandler)
		r.Get("/tenders/{tenderId}/bids", h.GetBidsForTenderHandler)

		// для вошедших пользователей
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticator(tokens, authSvc))

			r.Get("/profile", h.GetProfileHandler)
			r.Put("/profile", h.UpdateProfileHandler)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleVendor))
				r.Post("/tenders/{tenderId}/bids", h.CreateBidHandler)
				r.Get("/bids/my", h.GetUserBidsHandler)
				r.Put("/bids/winner-read", h.MarkWinnerBidsReadHandler)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleCustomer, auth.RoleAdmin))
				r.Post("/tenders", h.CreateTenderHandler)
				r.Put("/tenders/{tenderId}", h.UpdateTenderHandler)
				r.Post("/tenders/{tenderId}/winner", h.SelectWinnerHandler)
				r.Post("/tenders/attachments", h.UploadAttachmentHandler)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))
				r.Put("/bids/read", h.MarkBidsReadHandler)
				r.Get("/admin/users", h.ListUsersHandler)
				r.Put("/admin/users/{userId}/role", h.ChangeRoleHandler)
				r.Put("/admin/users/{userId}/block", h.BlockUserHandler)
				r.Get("/admin/logs", h.GetAuditLogHandler)
			})
		})
	})

	zl.Info("starting server", zap.String("addr", cfg.ServerAddress))
	if err := http.ListenAndServe(cfg.ServerAddress, r); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}
