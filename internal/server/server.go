package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hearthkeep/hearth/config"
	"github.com/hearthkeep/hearth/internal/blob"
	"github.com/hearthkeep/hearth/internal/identify"
	"github.com/hearthkeep/hearth/internal/manuals"
	"github.com/hearthkeep/hearth/internal/store"
	"github.com/hearthkeep/hearth/internal/telemetry"
	"github.com/hearthkeep/hearth/tools/web_search"
)

// Run wires every dependency and serves the HTTP API until the listener
// stops.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	tele := telemetry.New()

	engine, err := identify.NewEngine(cfg.Identify, tele)
	if err != nil {
		return err
	}

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	st, err := store.New(ctx, dsn)
	if err != nil {
		return err
	}

	// Redis is optional: without it suggestion lookups just skip the cache.
	cache := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := cache.Ping(ctx).Err(); err != nil {
		baseLogger.Printf("redis unavailable, suggestion caching disabled: %v", err)
		cache = nil
	}

	blobs, err := blob.New(cfg.Storage.File.DataDir)
	if err != nil {
		return err
	}
	index, err := manuals.OpenIndex(cfg.Manuals.IndexPath)
	if err != nil {
		return err
	}

	searcher, err := buildSearcher(cfg.Manuals.WebSearch, baseLogger)
	if err != nil {
		return err
	}

	var suggester manuals.Suggester
	if name := cfg.Manuals.SuggestionAgent; name != "" {
		client, ok := engine.Client(name)
		if !ok {
			return fmt.Errorf("suggestion agent %q is not an enabled identification agent", name)
		}
		suggester = client
	}

	svc := manuals.NewService(cfg.Manuals, searcher, suggester, cache, index, st, blobs, tele)

	api := e.Group("/api")
	ih := &IdentifyHandler{Engine: engine}
	ih.Register(api.Group("/identify"))
	mh := &ManualsHandler{Service: svc, Blobs: blobs}
	mh.Register(api.Group("/manuals"))

	return e.Start(cfg.Server.Listen)
}

// buildSearcher returns nil (no web phase) when the chosen provider has
// no API key configured.
func buildSearcher(cfg config.WebSearchConfig, logger *log.Logger) (web_search.WebSearcher, error) {
	provider := web_search.Provider(cfg.Provider)
	var key string
	switch provider {
	case web_search.SerperProvider:
		key = cfg.SerperAPIKey
	case web_search.BraveProvider:
		key = cfg.BraveAPIKey
	default:
		return nil, fmt.Errorf("unknown web search provider %q", cfg.Provider)
	}
	if key == "" {
		logger.Printf("web search provider %s has no api key, web discovery disabled", provider)
		return nil, nil
	}
	return web_search.NewWebSearcher(provider, key, cfg.Timeout)
}
