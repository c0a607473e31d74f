// Package model defines the flattened entities served by the dashboard.
package model

import (
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Resource names, also used as snapshot names.
const (
	ResourceUsers        = "users"
	ResourceQueues       = "queues"
	ResourceQueueMembers = "queue-members"
)

// Resources lists every cached resource in refresh order.
var Resources = []string{ResourceUsers, ResourceQueues, ResourceQueueMembers}

// Defaults applied when the upstream omits a field.
const (
	DefaultDepartment    = "Unassigned"
	DefaultState         = "active"
	DefaultPresence      = "Offline"
	DefaultRoutingStatus = "OFF_QUEUE"
	DefaultDivision      = "Home"
)

// UserRef is a lightweight reference to another user.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID               string     `json:"id" validate:"required"`
	Name             string     `json:"name" validate:"required"`
	Email            string     `json:"email" validate:"omitempty,email"`
	Username         string     `json:"username,omitempty"`
	Department       string     `json:"department"`
	Title            string     `json:"title"`
	State            string     `json:"state"`
	Presence         string     `json:"presence"`
	RoutingStatus    string     `json:"routingStatus"`
	PhoneNumber      string     `json:"phoneNumber,omitempty"`
	CreatedDate      *time.Time `json:"createdDate,omitempty"`
	LastModifiedDate *time.Time `json:"lastModifiedDate,omitempty"`
	Manager          *UserRef   `json:"manager"`
}

// MediaSetting is the per-channel routing configuration of a queue.
type MediaSetting struct {
	Enabled               bool   `json:"enabled"`
	SkillEvaluationMethod string `json:"skillEvaluationMethod,omitempty"`
}

type Queue struct {
	ID            string                  `json:"id" validate:"required"`
	Name          string                  `json:"name" validate:"required"`
	Description   string                  `json:"description"`
	Division      string                  `json:"division"`
	MemberCount   int                     `json:"memberCount" validate:"gte=0"`
	DateModified  *time.Time              `json:"dateModified,omitempty"`
	MediaSettings map[string]MediaSetting `json:"mediaSettings"`
}

type QueueMember struct {
	ID            string     `json:"id" validate:"required"`
	Name          string     `json:"name"`
	Joined        bool       `json:"joined"`
	JoinedDate    *time.Time `json:"joinedDate,omitempty"`
	RingNumber    int        `json:"ringNumber" validate:"gte=0"`
	RoutingStatus string     `json:"routingStatus,omitempty"`
}

// QueueMembers maps a queue ID to its members.
type QueueMembers map[string][]QueueMember

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks an entity against its struct tags.
func Validate(v any) error {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate.Struct(v)
}
