package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	appmw "github.com/briangreenhill/ccdash/internal/http/middleware"
	"github.com/briangreenhill/ccdash/internal/model"
	"github.com/briangreenhill/ccdash/internal/refresh"
	"github.com/briangreenhill/ccdash/internal/resources"
)

// Coordinator is the part of refresh.Coordinator the API uses.
type Coordinator interface {
	appmw.Refresher
	ForceRefresh(ctx context.Context, names ...string) refresh.Report
	Status(ctx context.Context) []refresh.ResourceStatus
}

// Enqueuer hands refresh work to the background worker. *asynq.Client
// satisfies it.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Server struct {
	Router *chi.Mux

	coord     Coordinator
	resources *resources.Service
	env       resources.Environment
	enqueuer  Enqueuer
}

type ServerOptions struct {
	Logger      zerolog.Logger
	Coordinator Coordinator
	Resources   *resources.Service
	Env         resources.Environment
	// Enqueuer is optional; without it refreshes run in-process.
	Enqueuer Enqueuer
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(chimw.Recoverer)

	s := &Server{
		Router:    r,
		coord:     opts.Coordinator,
		resources: opts.Resources,
		env:       opts.Env,
		enqueuer:  opts.Enqueuer,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("write health check response")
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Group(func(ur chi.Router) {
			ur.Use(appmw.EnsureFresh(s.coord, model.ResourceUsers))
			ur.Get("/users", s.handleListUsers)
			ur.Get("/users/{id}", s.handleGetUser)
		})

		api.With(appmw.EnsureFresh(s.coord, model.ResourceQueues)).
			Get("/queues", s.handleListQueues)
		api.Group(func(qr chi.Router) {
			qr.Use(appmw.EnsureFresh(s.coord, model.ResourceQueues, model.ResourceQueueMembers))
			qr.Get("/queues/{id}", s.handleGetQueue)
			qr.Get("/queues/{id}/members", s.handleQueueMembers)
		})

		api.With(appmw.EnsureFresh(s.coord)).Get("/stats", s.handleStats)
		api.Get("/system", s.handleSystem)

		api.Get("/cache/status", s.handleCacheStatus)
		api.Post("/cache/refresh", s.handleCacheRefresh)
	})

	return s
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("request_id", chimw.GetReqID(r.Context())).
		Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}
