package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/roster/internal/config"
	"github.com/jmerrifield20/roster/internal/email"
	"github.com/jmerrifield20/roster/internal/health"
	"github.com/jmerrifield20/roster/internal/httpapi"
	"github.com/jmerrifield20/roster/internal/identity"
	"github.com/jmerrifield20/roster/internal/pictures"
	"github.com/jmerrifield20/roster/internal/profiles"
	"github.com/jmerrifield20/roster/internal/rostercache"
	"github.com/jmerrifield20/roster/internal/search"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/encoding/protojson"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("directory exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	cfg, warn, err := config.Load(viper.New())
	if err != nil {
		return err
	}
	if warn != nil {
		logger.Warn(warn.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Database ─────────────────────────────────────────────────────────────
	db, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to postgres")

	probes := []health.Probe{{Name: "postgres", Required: true, Check: db.Ping}}

	// ── Email Sender ─────────────────────────────────────────────────────────
	var mailer email.Sender
	if cfg.Email.SMTPHost != "" {
		mailer = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.FromAddress,
		})
		logger.Info("SMTP email sender configured", zap.String("host", cfg.Email.SMTPHost))
	} else {
		mailer = email.NewNoopSender(logger)
		logger.Info("email sender: noop (set email.smtp_host to enable SMTP)")
	}

	// ── Profiles ─────────────────────────────────────────────────────────────
	members := profiles.NewService(profiles.NewRepository(db), mailer, logger)
	members.SetAccessPolicy(profiles.AccessPolicy{
		AllowedDomains: cfg.Auth.AllowedDomains,
		AllowedEmails:  cfg.Auth.AllowedEmails,
		AdminEmails:    cfg.Auth.AdminEmails,
	})
	members.SetDirectoryURL(cfg.Server.FrontendURL)
	members.SetMetricsRecord(httpapi.RecordProfileEvent)

	var revocations identity.Revocations
	if cfg.Redis.URL != "" {
		rdb, err := rostercache.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("redis unavailable, roster cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			cache := rostercache.New(rdb, cfg.Redis.RosterTTL)
			members.SetRosterCache(cache)
			revocations = rostercache.NewRevocations(rdb)
			probes = append(probes, health.Probe{Name: "redis", Check: cache.Ping})
			logger.Info("roster cache enabled", zap.Duration("ttl", cfg.Redis.RosterTTL))
		}
	}

	if cfg.Search.Host != "" {
		idx := search.New(cfg.Search.Host, cfg.Search.APIKey, logger)
		idx.Configure()
		members.SetSearchIndex(idx)
		probes = append(probes, health.Probe{Name: "search", Check: idx.Ping})
		go func() {
			rctx, rcancel := context.WithTimeout(ctx, time.Minute)
			defer rcancel()
			roster, err := members.List(rctx)
			if err == nil {
				err = idx.Reindex(rctx, roster)
			}
			if err != nil {
				logger.Warn("search reindex failed", zap.Error(err))
				return
			}
			logger.Info("search index rebuilt", zap.Int("members", len(roster)))
		}()
	}

	// ── Pictures ─────────────────────────────────────────────────────────────
	var store pictures.Store
	switch cfg.Pictures.Backend {
	case "cloudinary":
		cs, err := pictures.NewCloudinaryStore(cfg.Cloudinary.URL, cfg.Cloudinary.Folder, cfg.Pictures.MaxBytes)
		if err != nil {
			return fmt.Errorf("cloudinary setup failed: %w", err)
		}
		store = cs
	default:
		store = pictures.NewPostgresStore(db)
	}
	pics := pictures.NewService(store, members, cfg.Pictures.MaxBytes, logger)
	pics.SetMetricsRecord(httpapi.RecordPictureOperation)
	logger.Info("picture storage ready",
		zap.String("backend", cfg.Pictures.Backend),
		zap.Int64("max_bytes", cfg.Pictures.MaxBytes),
	)

	// ── Sessions and handlers ────────────────────────────────────────────────
	sessions, err := identity.NewSessionIssuer(cfg.Session.Secret, cfg.Server.PublicURL, cfg.Session.TTL)
	if err != nil {
		return fmt.Errorf("session setup failed: %w", err)
	}
	if revocations != nil {
		sessions.SetRevocations(revocations)
	}

	profileHandler := httpapi.NewProfileHandler(members, pics, sessions, logger)
	authHandler := httpapi.NewAuthHandler(members, sessions, httpapi.OAuthProviderConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	}, logger)
	authHandler.SetFrontendURL(cfg.Server.FrontendURL)
	authHandler.SetCookieSecure(cfg.Session.CookieSecure)
	if !cfg.Google.Enabled() {
		logger.Warn("google sign-in disabled (set oauth.google.client_id and client_secret)")
	}

	// ── Health ───────────────────────────────────────────────────────────────
	healthSrv := grpchealth.NewServer()
	checker := health.New(probes, healthSrv, health.Config{
		CheckInterval: cfg.Health.CheckInterval,
		FailThreshold: cfg.Health.FailThreshold,
	}, logger)
	checker.SetMetricsRecord(httpapi.RecordDependencyCheck)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := cfg.Server.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "If-None-Match"},
		ExposeHeaders:    []string{"Content-Length", "ETag"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body limit: one picture plus multipart framing.
	bodyLimit := cfg.Pictures.MaxBytes + 1<<20
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)
		c.Next()
	})

	stop := make(chan struct{})
	if rps := cfg.Server.RateLimitRPS; rps > 0 {
		router.Use(httpapi.RateLimiter(rps, rps*2, stop))
	}

	router.Use(requestLogger(logger))
	router.Use(httpapi.PrometheusMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if !checker.Healthy() {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "dependencies": checker.Snapshot()})
	})
	router.GET("/metrics", httpapi.MetricsHandler())

	root := router.Group("")
	profileHandler.Register(root)
	authHandler.Register(root)

	// ── gRPC health + gateway ────────────────────────────────────────────────
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCHealthPort))
	if err != nil {
		return fmt.Errorf("gRPC listen on :%d: %w", cfg.Server.GRPCHealthPort, err)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	grpcAddr := fmt.Sprintf("localhost:%d", cfg.Server.GRPCHealthPort)
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial gRPC health: %w", err)
	}
	defer conn.Close()

	gwMux := runtime.NewServeMux(
		runtime.WithHealthzEndpoint(healthpb.NewHealthClient(conn)),
		runtime.WithMarshalerOption(runtime.MIMEWildcard, &runtime.JSONPb{
			MarshalOptions: protojson.MarshalOptions{UseProtoNames: true},
		}),
	)
	gwSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.GatewayPort),
		Handler:           gwMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Background ───────────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	healthStop := make(chan os.Signal)
	go checker.Start(healthStop)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			refreshMembersGauge(ctx, members, logger)
			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		}
	}()

	// ── Serve ────────────────────────────────────────────────────────────────
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("directory HTTP listening", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("gRPC health listening", zap.Int("port", cfg.Server.GRPCHealthPort))
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Fatal("gRPC serve error", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("health gateway listening", zap.Int("port", cfg.Server.GatewayPort))
		if err := gwSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("gateway listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down directory...")
	close(stop)
	close(healthStop)
	healthSrv.Shutdown()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()

	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	if err := gwSrv.Shutdown(shutCtx); err != nil {
		logger.Error("gateway shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("directory stopped")
	return nil
}

func refreshMembersGauge(ctx context.Context, members *profiles.Service, logger *zap.Logger) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	n, err := members.Count(cctx)
	if err != nil {
		logger.Warn("member count failed", zap.Error(err))
		return
	}
	httpapi.SetMembersGauge(n)
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// loggingInterceptor returns a gRPC unary server interceptor that logs each call.
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		return resp, err
	}
}
