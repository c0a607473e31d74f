// Package mockdata generates deterministic contact-center data for running
// the dashboard without upstream credentials.
package mockdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/briangreenhill/ccdash/internal/model"
)

const DefaultSeed = 42

var (
	departments   = []string{"Sales", "Support", "Marketing", "Engineering", "HR", "Finance", "Operations"}
	states        = []string{"active", "inactive", "deactivated"}
	presences     = []string{"AVAILABLE", "AWAY", "BUSY", "BREAK", "MEAL", "MEETING", "TRAINING", "OFF_QUEUE"}
	routingStates = []string{"IDLE", "INTERACTING", "NOT_RESPONDING", "OFF_QUEUE"}
	queueTypes    = []string{"voice", "chat", "email", "social", "callback"}
	defaultAnchor = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	twoYears      = 2 * 365 * 24 * time.Hour
	oneYear       = 365 * 24 * time.Hour
	thirtyDays    = 30 * 24 * time.Hour
)

// Generator produces the same entities for the same seed and anchor.
type Generator struct {
	seed   int64
	anchor time.Time
}

type Option func(*Generator)

// WithAnchor sets the reference time generated dates are relative to.
func WithAnchor(t time.Time) Option {
	return func(g *Generator) { g.anchor = t }
}

func New(seed int64, opts ...Option) *Generator {
	g := &Generator{seed: seed, anchor: defaultAnchor}
	for _, o := range opts {
		o(g)
	}
	return g
}

// QueueCount is the number of queues generated for a user population.
func QueueCount(users int) int {
	if users <= 0 {
		return 0
	}
	return (users + 9) / 10
}

// Generate returns count entities of the named resource.
func (g *Generator) Generate(resource string, count int) (any, error) {
	switch resource {
	case model.ResourceUsers:
		return g.Users(count), nil
	case model.ResourceQueues:
		return g.Queues(count), nil
	case model.ResourceQueueMembers:
		users := g.Users(count)
		return g.QueueMembers(g.Queues(QueueCount(count)), users), nil
	default:
		return nil, fmt.Errorf("unknown resource %q", resource)
	}
}

func (g *Generator) Users(n int) []model.User {
	f := gofakeit.New(g.seed)
	users := make([]model.User, 0, n)

	for i := 0; i < n; i++ {
		first, last := f.FirstName(), f.LastName()
		created := g.past(f, twoYears)
		modified := g.past(f, thirtyDays)

		u := model.User{
			ID:               "mock-" + f.UUID(),
			Name:             first + " " + last,
			Email:            strings.ToLower(first+"."+last) + "@example.com",
			Username:         strings.ToLower(first[:1]+last) + fmt.Sprint(f.Number(1, 99)),
			Department:       f.RandomString(departments),
			Title:            f.JobTitle(),
			State:            f.RandomString(states),
			Presence:         f.RandomString(presences),
			RoutingStatus:    f.RandomString(routingStates),
			PhoneNumber:      f.Phone(),
			CreatedDate:      &created,
			LastModifiedDate: &modified,
		}
		if f.Number(1, 10) <= 3 {
			u.Manager = &model.UserRef{
				ID:   "mock-" + f.UUID(),
				Name: f.FirstName() + " " + f.LastName(),
			}
		}
		users = append(users, u)
	}
	return users
}

func (g *Generator) Queues(n int) []model.Queue {
	f := gofakeit.New(g.seed + 1)
	queues := make([]model.Queue, 0, n)

	for i := 0; i < n; i++ {
		kind := f.RandomString(queueTypes)
		modified := g.past(f, thirtyDays)
		queues = append(queues, model.Queue{
			ID:           "mock-queue-" + f.UUID(),
			Name:         strings.ToUpper(kind[:1]) + kind[1:] + " " + f.Adjective() + " Queue",
			Description:  f.Sentence(8),
			Division:     model.DefaultDivision,
			MemberCount:  f.Number(5, 50),
			DateModified: &modified,
			MediaSettings: map[string]model.MediaSetting{
				kind: {Enabled: true, SkillEvaluationMethod: "BEST"},
			},
		})
	}
	return queues
}

// QueueMembers samples each queue's members from users. A queue never has
// more members than there are users.
func (g *Generator) QueueMembers(queues []model.Queue, users []model.User) model.QueueMembers {
	f := gofakeit.New(g.seed + 2)
	out := make(model.QueueMembers, len(queues))

	for _, q := range queues {
		want := q.MemberCount
		if want <= 0 {
			want = f.Number(5, 20)
		}
		if want > len(users) {
			want = len(users)
		}

		idx := make([]int, len(users))
		for i := range idx {
			idx[i] = i
		}
		f.ShuffleAnySlice(idx)

		members := make([]model.QueueMember, 0, want)
		for _, i := range idx[:want] {
			joined := g.past(f, oneYear)
			members = append(members, model.QueueMember{
				ID:            users[i].ID,
				Name:          users[i].Name,
				Joined:        true,
				JoinedDate:    &joined,
				RingNumber:    f.Number(1, 5),
				RoutingStatus: users[i].RoutingStatus,
			})
		}
		out[q.ID] = members
	}
	return out
}

func (g *Generator) past(f *gofakeit.Faker, window time.Duration) time.Time {
	return f.DateRange(g.anchor.Add(-window), g.anchor).UTC()
}
