package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/vasilisp/searchai/internal/auth"
	"github.com/vasilisp/searchai/internal/data"
	"github.com/vasilisp/searchai/internal/metrics"
	"github.com/vasilisp/searchai/internal/openai"
	"github.com/vasilisp/searchai/internal/relay"
	"github.com/vasilisp/searchai/internal/session"
	"github.com/vasilisp/searchai/internal/util"
	"github.com/vasilisp/searchai/pkg/api"
	"github.com/vasilisp/searchai/pkg/backai"
	"github.com/vasilisp/searchai/pkg/search"
	"golang.org/x/sync/errgroup"
)

const (
	siteTitle = "searchai"

	flashBadCredentials = "Invalid username or password."
	flashLoginDisabled  = "Admin login is not configured."

	shutdownTimeout = 10 * time.Second
)

type ctx struct {
	config   *config
	search   *search.Handler
	registry *session.Registry
	gate     *auth.Gate
	hub      *relay.Hub
	renderer *renderer
}

func newCtxWith(config *config, gen search.Generator, starter session.Starter) *ctx {
	util.Assert(config != nil, "newCtxWith nil config")
	util.Assert(gen != nil, "newCtxWith nil generator")
	util.Assert(starter != nil, "newCtxWith nil starter")

	registry := session.NewRegistry(starter)
	gate := auth.NewGate(config.admin(), []byte(config.SecretKey), config.sessionTTL)

	return &ctx{
		config:   config,
		search:   search.NewHandler(gen, config.domainCacheSize()),
		registry: registry,
		gate:     gate,
		hub:      relay.NewHub(registry, gate),
		renderer: mustRenderer(),
	}
}

func newCtx(config *config) *ctx {
	client := openai.NewClient(config.OpenAIToken, config.Model)
	chats := backai.NewChats(config.OpenAIToken)

	return newCtxWith(config, client, session.StarterFunc(func() session.Conversation {
		return chats.Start()
	}))
}

func (ctx *ctx) Close() {
	util.Assert(ctx != nil, "Close nil ctx")
	ctx.hub.Close()
}

func (ctx *ctx) page(r *http.Request, title string) pageData {
	return pageData{
		Title:         title,
		Authenticated: ctx.gate.Authenticated(r),
	}
}

func indexHandler(ctx *ctx, w http.ResponseWriter, r *http.Request) {
	ctx.renderer.render(w, http.StatusOK, "index.html", ctx.page(r, siteTitle))
}

func chatHandler(ctx *ctx, w http.ResponseWriter, r *http.Request) {
	ctx.renderer.render(w, http.StatusOK, "gemini.html", ctx.page(r, "Chat - "+siteTitle))
}

func searchHandler(ctx *ctx, w http.ResponseWriter, r *http.Request) {
	outcome, err := ctx.search.Handle(r.Context(), r.URL.Query().Get("q"))
	if errors.Is(err, search.ErrEmptyQuery) {
		http.Redirect(w, r, api.IndexPath, http.StatusSeeOther)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("component", "server").Msg("search failed")
		http.Error(w, "Failed to process query", http.StatusInternalServerError)
		return
	}

	ctx.renderer.render(w, http.StatusOK, "results.html", resultsPage{
		pageData:   ctx.page(r, outcome.Query+" - "+siteTitle),
		Query:      outcome.Query,
		Results:    ctx.renderer.html(outcome.Results),
		SummaryRaw: outcome.SummaryRaw,
		Summary:    outcome.Summary,
		Domain:     outcome.Domain,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "server").Msg("failed to encode response")
	}
}

func searchAPIHandler(ctx *ctx, w http.ResponseWriter, r *http.Request) {
	outcome, err := ctx.search.Handle(r.Context(), r.URL.Query().Get("q"))
	if errors.Is(err, search.ErrEmptyQuery) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Empty query"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to process query"})
		return
	}

	writeJSON(w, http.StatusOK, outcome.Response())
}

func loginHandler(ctx *ctx, w http.ResponseWriter, r *http.Request) {
	if ctx.gate.Authenticated(r) {
		http.Redirect(w, r, api.AdminPath, http.StatusSeeOther)
		return
	}

	page := ctx.page(r, "Log in - "+siteTitle)

	if r.Method != http.MethodPost {
		ctx.renderer.render(w, http.StatusOK, "login.html", page)
		return
	}

	if !ctx.gate.Enabled() {
		page.Flash = flashLoginDisabled
		ctx.renderer.render(w, http.StatusOK, "login.html", page)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	username := r.PostForm.Get("username")
	if !ctx.gate.Check(username, r.PostForm.Get("password")) {
		log.Info().Str("component", "auth").Str("username", username).Msg("failed login")
		page.Flash = flashBadCredentials
		ctx.renderer.render(w, http.StatusOK, "login.html", page)
		return
	}

	if err := ctx.gate.Login(w, r); err != nil {
		log.Error().Err(err).Str("component", "auth").Msg("failed to issue session")
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	log.Info().Str("component", "auth").Str("username", username).Msg("admin logged in")
	http.Redirect(w, r, api.AdminPath, http.StatusSeeOther)
}

func adminHandler(ctx *ctx, w http.ResponseWriter, r *http.Request) {
	page := ctx.page(r, "Admin - "+siteTitle)
	page.User = ctx.gate.Username()
	ctx.renderer.render(w, http.StatusOK, "admin.html", page)
}

func logoutHandler(ctx *ctx, w http.ResponseWriter, r *http.Request) {
	ctx.gate.Logout(w)
	http.Redirect(w, r, api.IndexPath, http.StatusSeeOther)
}

func healthHandler(ctx *ctx, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": ctx.hub.Count(),
		"sessions":    ctx.registry.Len(),
	})
}

func handlerWith[T interface{}](t T, fn func(T, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(t, w, r)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("component", "server").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func newRouter(ctx *ctx) http.Handler {
	util.Assert(ctx != nil, "newRouter nil ctx")

	static, err := fs.Sub(data.Static, "static")
	util.Assert(err == nil, "newRouter static assets")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get(api.SocketPath, ctx.hub.ServeHTTP)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", handlerWith(ctx, healthHandler))

	r.Group(func(r chi.Router) {
		r.Use(requestLogger)

		r.Get(api.IndexPath, handlerWith(ctx, indexHandler))
		r.Get(api.ChatPath, handlerWith(ctx, chatHandler))
		r.Get(api.SearchPath, handlerWith(ctx, searchHandler))
		r.Get(api.SearchAPIPath, handlerWith(ctx, searchAPIHandler))
		r.Get(api.LoginPath, handlerWith(ctx, loginHandler))
		r.Post(api.LoginPath, handlerWith(ctx, loginHandler))
		r.Get(api.AdminPath, ctx.gate.RequireAuth(api.LoginPath, handlerWith(ctx, adminHandler)))
		r.Get(api.LogoutPath, ctx.gate.RequireAuth(api.LoginPath, handlerWith(ctx, logoutHandler)))
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	})

	return r
}

func Main() {
	path, err := configPath(os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Str("component", "server").Msg("failed to locate config")
	}

	config, err := loadConfig(path, os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Str("component", "server").Msg("failed to load config")
	}
	setupLogging(config.LogLevel, os.Stderr)

	ctx := newCtx(config)
	defer ctx.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           newRouter(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		log.Info().Str("component", "server").Int("port", config.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("component", "server").Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		ctx.hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("component", "server").Msg("server stopped")
		os.Exit(1)
	}
}
