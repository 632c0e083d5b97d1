package bootstrap

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	pprof_gin "github.com/gin-contrib/pprof"
	"github.com/gin-contrib/sessions"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron"
	sloggin "github.com/samber/slog-gin"

	"github.com/gitreportshq/gitreports/config"
	"github.com/gitreportshq/gitreports/controllers"
	"github.com/gitreportshq/gitreports/logging"
	"github.com/gitreportshq/gitreports/middleware"
	"github.com/gitreportshq/gitreports/models"
	"github.com/gitreportshq/gitreports/utils"
)

// based on https://www.digitalocean.com/community/tutorials/using-ldflags-to-set-version-information-for-go-applications
var Version = "dev"

func setupProfiler(r *gin.Engine) {
	// Enable pprof endpoints
	pprof_gin.Register(r)

	// Create profiles directory if it doesn't exist
	if err := os.MkdirAll("/tmp/profiles", 0o755); err != nil {
		slog.Error("Failed to create profiles directory", "error", err)
		panic(err)
	}

	// Start periodic profiling goroutine
	go periodicProfiling()
}

func periodicProfiling() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Trigger GC before taking memory profile
			runtime.GC()

			// Create memory profile
			timestamp := time.Now().Format("2006-01-02-15-04-05")
			memProfilePath := filepath.Join("/tmp/profiles", fmt.Sprintf("memory-%s.pprof", timestamp))
			f, err := os.Create(memProfilePath)
			if err != nil {
				slog.Error("Failed to create memory profile", "error", err)
				continue
			}

			if err := pprof.WriteHeapProfile(f); err != nil {
				slog.Error("Failed to write memory profile", "error", err)
			}
			f.Close()

			// Cleanup old profiles (keep last 24)
			cleanupOldProfiles("/tmp/profiles", 168)
		}
	}
}

func cleanupOldProfiles(dir string, keep int) {
	files, err := filepath.Glob(filepath.Join(dir, "memory-*.pprof"))
	if err != nil {
		slog.Error("Failed to list profile files", "error", err)
		return
	}

	if len(files) <= keep {
		return
	}

	// Sort files by name (which includes timestamp)
	for i := 0; i < len(files)-keep; i++ {
		if err := os.Remove(files[i]); err != nil {
			slog.Error("Failed to remove old profile", "file", files[i], "error", err)
		}
	}
}

func Bootstrap(templates embed.FS, gitReportsController controllers.GitReportsController) *gin.Engine {
	initLogging()
	cfg := config.AppConfig

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:           os.Getenv("SENTRY_DSN"),
		EnableTracing: true,
		// Set TracesSampleRate to 1.0 to capture 100%
		// of transactions for performance monitoring.
		// We recommend adjusting this value in production,
		TracesSampleRate: 0.1,
		Release:          "gitreports@" + Version,
		Debug:            true,
		DebugWriter:      utils.NewSentrySlogWriter(slog.Default().WithGroup("sentry")),
	}); err != nil {
		slog.Error("Sentry initialization failed", "error", err)
	}

	// database migrations
	models.ConnectDatabase()

	r := gin.Default()

	r.Use(sloggin.New(slog.Default().WithGroup("http")))
	r.Use(logging.RequestLogger())

	if _, exists := os.LookupEnv("GITREPORTS_PPROF_DEBUG_ENABLED"); exists {
		setupProfiler(r)
	}

	store := gormsessions.NewStore(models.DB.GormDB, true, []byte(config.SessionSecret()))

	r.Use(sessions.Sessions("gitreports-session", store))

	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"build_date":  cfg.GetString("build_date"),
			"deployed_at": cfg.GetString("deployed_at"),
			"version":     Version,
			"commit_sha":  Version,
		})
	})

	r.SetFuncMap(template.FuncMap{
		"formatAsDate": func(msec int64) time.Time {
			return time.UnixMilli(msec)
		},
	})

	if _, err := os.Stat("templates"); err != nil {
		matches, _ := fs.Glob(templates, "templates/*.tmpl")
		for _, match := range matches {
			r.LoadHTMLFiles(match)
		}
		r.StaticFS("/static", http.FS(templates))
	} else {
		r.Static("/static", "./templates/static")
		r.LoadHTMLGlob("templates/*.tmpl")
	}

	startSyncStatusPurge()

	r.GET("/", controllers.Home)
	r.GET("/tutorial", controllers.Tutorial)
	r.GET("/about", controllers.About)

	r.GET("/login", gitReportsController.Login)
	r.GET("/login_rate_limited", controllers.LoginRateLimited)
	r.GET("/github_callback", gitReportsController.GithubCallback)
	r.GET("/logout", gitReportsController.Logout)

	// public issue intake, anonymous submitters land here
	r.GET("/issue/:username/:reponame", controllers.RepositoryPage)
	r.POST("/issue/:username/:reponame", gitReportsController.SubmitIssue)
	r.GET("/issue/:username/:reponame/submitted", controllers.Submitted)

	authorized := r.Group("/")
	authorized.Use(middleware.SessionAuth())

	authorized.GET("/profile", controllers.ProfilePage)
	authorized.POST("/repositories/load", gitReportsController.LoadRepositories)
	authorized.GET("/load_status", controllers.LoadStatus)
	authorized.POST("/repositories/:id/activate", controllers.ActivateRepository)
	authorized.POST("/repositories/:id/deactivate", controllers.DeactivateRepository)
	authorized.POST("/repositories/:id/settings", controllers.UpdateIssueSettings)

	r.Use(middleware.CORSMiddleware())

	return r
}

// startSyncStatusPurge drops finished sync status rows every hour so the
// table does not grow without bound.
func startSyncStatusPurge() {
	c := cron.New()
	err := c.AddFunc("@hourly", func() {
		if err := models.DB.PurgeFinishedSyncStatuses(7 * 24 * time.Hour); err != nil {
			slog.Error("Failed to purge finished sync statuses", "error", err)
		}
	})
	if err != nil {
		slog.Error("Failed to schedule sync status purge", "error", err)
		return
	}
	c.Start()
}

func initLogging() {
	logLevel := os.Getenv("GITREPORTS_LOG_LEVEL")
	var level slog.Leveler

	switch logLevel {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if os.Getenv("GITREPORTS_LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
