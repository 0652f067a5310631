// Package routes wires the chi router to the gateway. Handlers stay thin:
// they validate input, build the resource descriptor, and let the gateway
// interpret cache semantics.
package routes

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/hubview/hubview/internal/cache"
	"github.com/hubview/hubview/internal/gateway"
	appmw "github.com/hubview/hubview/internal/http/middleware"
	"github.com/hubview/hubview/internal/session"
)

type Server struct {
	Router   *chi.Mux
	Sessions *session.Store
	Gate     *gateway.Gate
	Gateway  *gateway.Gateway
	Log      zerolog.Logger
}

type ServerOptions struct {
	Sessions      *session.Store
	Gate          *gateway.Gate
	Gateway       *gateway.Gateway
	Log           zerolog.Logger
	AllowedOrigin string
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(hlog.NewHandler(opts.Log))

	s := &Server{
		Router:   r,
		Sessions: opts.Sessions,
		Gate:     opts.Gate,
		Gateway:  opts.Gateway,
		Log:      opts.Log,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		// Mux-level so OPTIONS preflights are answered before routing.
		// The session verbs (POST/DELETE) share the browser origin with
		// the cached GET endpoints, so one policy covers the API.
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{opts.AllowedOrigin},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "If-None-Match", "If-Modified-Since"},
			ExposedHeaders:   []string{"ETag", "Last-Modified", "Cache-Control"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		api.Get("/session", s.handleSessionCheck)
		api.Post("/session", s.handleLogin)
		api.Delete("/session", s.handleLogout)

		api.Group(func(pr chi.Router) {
			pr.Use(appmw.RequireSession(s.Gate))
			pr.Get("/orgs", s.handleOrgs)
			pr.Get("/orgs/{org}/repos", s.handleOrgRepos)
			pr.Get("/repos/{owner}/{repo}/runs", s.handleWorkflowRuns)
			pr.Get("/repos/{owner}/{repo}/branches", s.handleBranches)
			pr.Post("/repos/{owner}/{repo}/runs/{runID}/rerun", s.handleRerun)
		})
	})

	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"code": code, "message": message})
}

// writeResult renders a gateway Result, attaching the validators and cache
// policy the client needs for its next conditional request.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res gateway.Result) {
	if res.CredentialRejected {
		s.Gate.Forget(appmw.TokenFrom(r.Context()))
		s.Sessions.Destroy(w)
	}

	if res.ETag != "" {
		w.Header().Set("ETag", res.ETag)
	}
	if !res.LastModified.IsZero() {
		w.Header().Set("Last-Modified", res.LastModified.UTC().Format(http.TimeFormat))
	}
	if res.CacheControl != "" {
		w.Header().Set("Cache-Control", res.CacheControl)
	}

	switch {
	case res.Status == http.StatusNotModified:
		w.WriteHeader(http.StatusNotModified)
	case res.Status >= 400:
		writeError(w, res.Status, errorCode(res.Status), res.ErrorMessage)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.Status)
		_, _ = w.Write(res.Body)
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "invalid_request"
	default:
		return "upstream_error"
	}
}

// requestValidators pulls the conditional headers off the inbound request.
func requestValidators(r *http.Request) cache.RequestValidators {
	v := cache.RequestValidators{IfNoneMatch: r.Header.Get("If-None-Match")}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil {
			v.IfModifiedSince = t
		}
	}
	return v
}
