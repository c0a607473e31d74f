// Package resources answers read-only queries over cached snapshots.
package resources

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/ccdash/cache"
	"github.com/briangreenhill/ccdash/internal/errutil"
	"github.com/briangreenhill/ccdash/internal/model"
)

const (
	DefaultLimit = 20
	MaxLimit     = 500
)

// ErrNotFound is returned when an entity ID is not in the snapshot.
var ErrNotFound = errors.New("not found")

// Page selects a 1-based page of Limit items.
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Result is one page of a filtered collection.
type Result[T any] struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
	Data       []T `json:"data"`
}

// Paginate slices items into the requested page.
func Paginate[T any](items []T, p Page) Result[T] {
	p = p.normalize()
	total := len(items)

	totalPages := (total + p.Limit - 1) / p.Limit

	// Pages past the end are empty; (Page-1)*Limit may overflow for them.
	start := total
	if p.Page <= totalPages {
		start = (p.Page - 1) * p.Limit
	}
	end := min(start+p.Limit, total)

	data := make([]T, end-start)
	copy(data, items[start:end])

	return Result[T]{
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: totalPages,
		Data:       data,
	}
}

type UserFilter struct {
	Department string
	State      string
	Search     string
}

func (f UserFilter) match(u model.User) bool {
	dept := u.Department
	if dept == "" {
		dept = model.DefaultDepartment
	}
	if f.Department != "" && !strings.EqualFold(dept, f.Department) {
		return false
	}
	if f.State != "" && !strings.EqualFold(u.State, f.State) {
		return false
	}
	return f.Search == "" || containsFold(f.Search, u.Name, u.Email, u.Username, u.Department)
}

type QueueFilter struct {
	Search string
}

func (f QueueFilter) match(q model.Queue) bool {
	return f.Search == "" || containsFold(f.Search, q.Name, q.Description)
}

// QueueDetail is a queue with its members joined.
type QueueDetail struct {
	model.Queue
	Members []model.QueueMember `json:"members"`
}

// Service reads snapshots; it never writes them.
type Service struct {
	store cache.Reader
	now   func() time.Time
}

func NewService(store cache.Reader) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Users(ctx context.Context, f UserFilter, p Page) Result[model.User] {
	users := s.users(ctx)
	return Paginate(filter(users, f.match), p)
}

func (s *Service) User(ctx context.Context, id string) (model.User, error) {
	users := s.users(ctx)
	i := slices.IndexFunc(users, func(u model.User) bool { return u.ID == id })
	if i < 0 {
		return model.User{}, ErrNotFound
	}
	return users[i], nil
}

func (s *Service) Queues(ctx context.Context, f QueueFilter, p Page) Result[model.Queue] {
	return Paginate(filter(s.queues(ctx), f.match), p)
}

func (s *Service) Queue(ctx context.Context, id string) (QueueDetail, error) {
	queues := s.queues(ctx)
	i := slices.IndexFunc(queues, func(q model.Queue) bool { return q.ID == id })
	if i < 0 {
		return QueueDetail{}, ErrNotFound
	}
	members, _ := s.QueueMembers(ctx, id)
	return QueueDetail{Queue: queues[i], Members: members}, nil
}

// QueueMembers returns the members of a queue; unknown queues have none.
func (s *Service) QueueMembers(ctx context.Context, id string) ([]model.QueueMember, error) {
	all := load(ctx, s.store, model.ResourceQueueMembers, model.QueueMembers{})
	members := all[id]
	if members == nil {
		members = []model.QueueMember{}
	}
	return members, nil
}

// Query is the generic form of the list operations. Filters use the query
// parameter names of the HTTP API.
func (s *Service) Query(ctx context.Context, resource string, filters map[string]string, p Page) (Result[any], error) {
	switch resource {
	case model.ResourceUsers:
		r := s.Users(ctx, UserFilter{Department: filters["department"], State: filters["state"], Search: filters["search"]}, p)
		return erase(r), nil
	case model.ResourceQueues:
		r := s.Queues(ctx, QueueFilter{Search: filters["search"]}, p)
		return erase(r), nil
	case model.ResourceQueueMembers:
		members, _ := s.QueueMembers(ctx, filters["queueId"])
		return erase(Paginate(members, p)), nil
	default:
		return Result[any]{}, ErrNotFound
	}
}

func (s *Service) users(ctx context.Context) []model.User {
	return load(ctx, s.store, model.ResourceUsers, []model.User{})
}

func (s *Service) queues(ctx context.Context) []model.Queue {
	return load(ctx, s.store, model.ResourceQueues, []model.Queue{})
}

// load falls back to def on any store failure, so a broken snapshot reads
// as an empty one.
func load[T any](ctx context.Context, store cache.Reader, name string, def T) T {
	v, err := cache.Load(ctx, store, name, def)
	if err != nil {
		errutil.Event(zerolog.Ctx(ctx).Warn(), err).Str("resource", name).Msg("snapshot unreadable, serving empty result")
	}
	return v
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func erase[T any](r Result[T]) Result[any] {
	data := make([]any, len(r.Data))
	for i, v := range r.Data {
		data[i] = v
	}
	return Result[any]{Total: r.Total, Page: r.Page, Limit: r.Limit, TotalPages: r.TotalPages, Data: data}
}

func containsFold(needle string, fields ...string) bool {
	needle = strings.ToLower(needle)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
