package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"CAMPUS-backend/docs"
	"CAMPUS-backend/internal/asset_mgmt/labels"
	"CAMPUS-backend/internal/asset_mgmt/ledger"
	"CAMPUS-backend/internal/asset_mgmt/lends"
	"CAMPUS-backend/internal/asset_mgmt/products"
	"CAMPUS-backend/internal/asset_mgmt/requisitions"
	"CAMPUS-backend/internal/dbmng"
	"CAMPUS-backend/internal/facility/bookings"
	"CAMPUS-backend/internal/facility/photojobs"
	"CAMPUS-backend/internal/facility/repairs"
	"CAMPUS-backend/internal/platform/auth"
	"CAMPUS-backend/internal/platform/blob"
	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/kv"
	"CAMPUS-backend/internal/platform/logging"
	"CAMPUS-backend/internal/platform/notify"
)

// フロントのビルド出力を埋め込む（public/ はフロントのビルドで上書きされる）
//
//go:embed public
var embedded embed.FS

// @title CAMPUS backend API
// @version 1.0
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 設定読み込み
	cfg, err := db.LoadConfig(db.DefaultConfigPath())
	if err != nil {
		panic(err)
	}

	// 動作モード取得
	mode := cfg.Mode
	if mode != "dev" && mode != "release" {
		fmt.Println("config: mode must be dev or release")
		return
	}
	logging.SetMode(mode)
	logging.LogInfo("main", "main", "starting", map[string]string{"mode": mode, "version": cfg.Version})

	if cfg.JWT.Secret == "" {
		logging.LogError("main", "main", "jwt secret is empty", nil, nil)
		os.Exit(1)
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		logging.LogError("main", "main", "db connect failed", cfg.DB.Host, err)
		os.Exit(1)
	}
	defer conn.Close()
	logging.LogInfo("main", "main", "connected to DB", cfg.DB.DBName)

	// Redis は無くても動く（キャッシュ無し・ロック無し）
	rdb := kv.NewClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	stats := ledger.NewService(conn,
		kv.NewCache(rdb, "campus:"),
		kv.NewLocker(rdb),
		time.Duration(cfg.Redis.StatsTTLSeconds)*time.Second)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.RabbitMQ.URL != "" {
		pub := notify.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		defer pub.Close()
		notifier = pub
	} else {
		logging.LogWarn("main", "main", "rabbitmq url is empty; notifications are dropped", nil)
	}

	// typed nil を interface に入れないこと
	var uploader blob.Uploader
	if gcs, err := blob.NewGCSUploader(context.Background(), cfg.Storage.Bucket, cfg.Storage.PublicBaseURL, os.Getenv("GCS_CREDENTIALS_JSON")); err == nil {
		defer gcs.Close()
		uploader = gcs
	} else {
		logging.LogWarn("main", "main", "blob storage disabled", err.Error())
	}

	if err := products.RegisterValidators(); err != nil {
		logging.LogError("main", "main", "register validators failed", nil, err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(logging.Middleware(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
		docs.SwaggerInfo.Host = "localhost" + cfg.Addr
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := conn.PingContext(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "db down")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	secret := []byte(cfg.JWT.Secret)
	authSvc := auth.NewService(conn, secret, time.Duration(cfg.JWT.TTLHours)*time.Hour)
	productSvc := products.NewService(conn, stats, uploader, cfg.Storage.MaxWidth)
	lendSvc := lends.NewService(conn, stats, uploader)
	categorySvc := dbmng.NewService(conn)
	bookingSvc := bookings.NewService(conn, notifier, cfg.Notify.Moderators)
	repairSvc := repairs.NewService(conn, stats, notifier, cfg.Notify.Moderators)
	photoSvc := photojobs.NewService(conn, notifier, cfg.Notify.Moderators)

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterRoutes(api, authSvc)

	// ログイン済み
	user := api.Group("", auth.RequireAuth(secret))
	products.RegisterRoutes(user, productSvc)
	lends.RegisterRoutes(user, lendSvc)
	dbmng.RegisterRoutes(user, categorySvc)
	ledger.RegisterRoutes(user, stats)
	bookings.RegisterRoutes(user, bookingSvc)
	repairs.RegisterRoutes(user, repairSvc)
	photojobs.RegisterRoutes(user, photoSvc)

	// 職員・管理者
	staff := user.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleAdmin))
	products.RegisterStaffRoutes(staff, productSvc)
	lends.RegisterStaffRoutes(staff, lendSvc)
	requisitions.RegisterStaffRoutes(staff, requisitions.NewService(conn, stats))
	labels.RegisterStaffRoutes(staff, labels.NewService(conn))
	bookings.RegisterModeratorRoutes(staff, bookingSvc)
	repairs.RegisterModeratorRoutes(staff, repairSvc)
	photojobs.RegisterModeratorRoutes(staff, photoSvc)

	// 管理者のみ
	admin := user.Group("", auth.RequireRole(auth.RoleAdmin))
	auth.RegisterAdminRoutes(admin, authSvc)
	dbmng.RegisterAdminRoutes(admin, categorySvc)
	ledger.RegisterAdminRoutes(admin, stats)

	sub, err := fs.Sub(embedded, "public")
	if err != nil {
		logging.LogError("main", "main", "embedded fs", nil, err)
		os.Exit(1)
	}
	r.NoRoute(spaFallback(http.FS(sub)))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// TLS設定
	certFile := fmt.Sprintf("config/tls/%s/%s", mode, cfg.Certificate.Cert)
	keyFile := fmt.Sprintf("config/tls/%s/%s", mode, cfg.Certificate.Key)

	go func() {
		logging.LogInfo("main", "main", "listening", "https://0.0.0.0"+cfg.Addr)
		if err := srv.ListenAndServeTLS(certFile, keyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogError("main", "main", "server stopped", nil, err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logging.LogInfo("main", "main", "shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.LogError("main", "main", "shutdown failed", nil, err)
	}
}

// spaFallback: API 以外はフロントの静的ファイル、無ければ index.html
func spaFallback(fileFS http.FileSystem) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "no such endpoint"}})
			return
		}

		reqPath := strings.TrimPrefix(c.Request.URL.Path, "/")
		if reqPath == "" {
			reqPath = "index.html"
		}

		// 実ファイルがあるならそれを返す（index.html 以外はキャッシュ）
		if f, err := fileFS.Open(reqPath); err == nil {
			defer f.Close()
			if ct := mime.TypeByExtension(path.Ext(reqPath)); ct != "" {
				c.Header("Content-Type", ct)
			}
			if !strings.HasSuffix(reqPath, "index.html") {
				c.Header("Cache-Control", "public, max-age=86400, immutable")
			}
			if fi, err := f.Stat(); err == nil {
				http.ServeContent(c.Writer, c.Request, reqPath, fi.ModTime(), f)
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}

		if idx, err := fileFS.Open("index.html"); err == nil {
			defer idx.Close()
			c.Header("Content-Type", "text/html; charset=utf-8")
			if fi, err := idx.Stat(); err == nil {
				http.ServeContent(c.Writer, c.Request, "index.html", fi.ModTime(), idx)
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}

		c.Status(http.StatusNotFound)
	}
}
