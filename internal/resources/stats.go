package resources

import (
	"context"
	"time"

	"github.com/briangreenhill/ccdash/internal/model"
)

// queueTypes are checked in order; the first enabled one names the queue.
var queueTypes = []string{"voice", "chat", "email", "social", "callback"}

type QueueStats struct {
	Total              int            `json:"total"`
	ByType             map[string]int `json:"byType"`
	AvgMembersPerQueue float64        `json:"avgMembersPerQueue"`
}

type Stats struct {
	TotalUsers  int            `json:"totalUsers"`
	Departments map[string]int `json:"departments"`
	States      map[string]int `json:"states"`
	Presence    map[string]int `json:"presence"`
	Queues      QueueStats     `json:"queues"`
	LastUpdated time.Time      `json:"lastUpdated"`
}

// Stats aggregates users and queues.
func (s *Service) Stats(ctx context.Context) Stats {
	users := s.users(ctx)
	queues := s.queues(ctx)
	members := load(ctx, s.store, model.ResourceQueueMembers, model.QueueMembers{})

	st := Stats{
		TotalUsers:  len(users),
		Departments: map[string]int{},
		States:      map[string]int{},
		Presence:    map[string]int{},
		Queues:      QueueStats{Total: len(queues), ByType: map[string]int{}},
		LastUpdated: s.now().UTC(),
	}

	for _, u := range users {
		st.Departments[orDefault(u.Department, model.DefaultDepartment)]++
		st.States[orDefault(u.State, "unknown")]++
		st.Presence[orDefault(u.Presence, "unknown")]++
	}

	joined := 0
	for _, q := range queues {
		st.Queues.ByType[queueType(q)]++
		joined += len(members[q.ID])
	}
	if len(queues) > 0 {
		st.Queues.AvgMembersPerQueue = float64(joined) / float64(len(queues))
	}
	return st
}

func queueType(q model.Queue) string {
	for _, t := range queueTypes {
		if ms, ok := q.MediaSettings[t]; ok && ms.Enabled {
			return t
		}
	}
	return "unknown"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
