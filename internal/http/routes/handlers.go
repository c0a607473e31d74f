package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/ccdash/internal/errutil"
	"github.com/briangreenhill/ccdash/internal/jobs"
	"github.com/briangreenhill/ccdash/internal/model"
	"github.com/briangreenhill/ccdash/internal/resources"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := resources.UserFilter{
		Department: q.Get("department"),
		State:      q.Get("state"),
		Search:     q.Get("search"),
	}
	writeJSON(w, r, http.StatusOK, s.resources.Users(r.Context(), f, pageParams(r)))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.resources.User(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.notFound(w, r, err, "User not found")
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	f := resources.QueueFilter{Search: r.URL.Query().Get("search")}
	writeJSON(w, r, http.StatusOK, s.resources.Queues(r.Context(), f, pageParams(r)))
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	q, err := s.resources.Queue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.notFound(w, r, err, "Queue not found")
		return
	}
	writeJSON(w, r, http.StatusOK, q)
}

func (s *Server) handleQueueMembers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	members, err := s.resources.QueueMembers(r.Context(), id)
	if err != nil {
		errutil.HandleHTTP(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"queueId": id,
		"total":   len(members),
		"data":    members,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.resources.Stats(r.Context()))
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.resources.System(r.Context(), s.env, s.coord))
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"ttlSeconds": s.env.TTL.Seconds(),
		"resources":  s.coord.Status(r.Context()),
	})
}

type refreshResponse struct {
	Status    string   `json:"status"`
	Resources []string `json:"resources"`
	TaskID    string   `json:"taskId,omitempty"`
}

func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	names, err := resourceParams(r)
	if err != nil {
		errutil.HandleHTTP(w, r, err, http.StatusBadRequest)
		return
	}

	if s.enqueuer != nil {
		task, err := jobs.NewRefreshTask(jobs.RefreshPayload{Resources: names, Force: true})
		if err != nil {
			errutil.HandleHTTP(w, r, err, http.StatusInternalServerError)
			return
		}
		info, err := s.enqueuer.Enqueue(task)
		if errors.Is(err, asynq.ErrDuplicateTask) {
			writeJSON(w, r, http.StatusAccepted, refreshResponse{Status: "already queued", Resources: names})
			return
		}
		if err != nil {
			errutil.HandleHTTP(w, r, goerr.Wrap(err, "enqueue refresh task"), http.StatusInternalServerError)
			return
		}
		hlog.FromRequest(r).Info().Str("task_id", info.ID).Strs("resources", names).Msg("refresh task queued")
		writeJSON(w, r, http.StatusAccepted, refreshResponse{Status: "queued", Resources: names, TaskID: info.ID})
		return
	}

	// Outlives the request; keeps its logger.
	ctx := context.WithoutCancel(r.Context())
	go s.coord.ForceRefresh(ctx, names...)

	writeJSON(w, r, http.StatusAccepted, refreshResponse{Status: "refreshing", Resources: names})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, resources.ErrNotFound) {
		errutil.HandleHTTP(w, r, errors.New(msg), http.StatusNotFound)
		return
	}
	errutil.HandleHTTP(w, r, err, http.StatusInternalServerError)
}

// pageParams reads page and limit; malformed values fall back to defaults.
func pageParams(r *http.Request) resources.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return resources.Page{Page: page, Limit: limit}
}

// resourceParams accepts both ?resources=a,b and repeated ?resources=a.
func resourceParams(r *http.Request) ([]string, error) {
	var names []string
	for _, v := range r.URL.Query()["resources"] {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if !slices.Contains(model.Resources, name) {
				return nil, goerr.New("unknown resource: "+name, goerr.V("resource", name))
			}
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		names = slices.Clone(model.Resources)
	}
	return names, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("write response")
	}
}
