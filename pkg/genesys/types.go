package genesys

import "time"

// EntityListing is the envelope of every paged list endpoint.
type EntityListing[T any] struct {
	Entities   []T `json:"entities"`
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
	PageCount  int `json:"pageCount"`
	Total      int `json:"total"`
}

// Optional fields are pointers; the upstream omits whatever it has no value for.

type PresenceDefinition struct {
	SystemPresence *string `json:"systemPresence"`
}

type Presence struct {
	PresenceDefinition *PresenceDefinition `json:"presenceDefinition"`
}

type RoutingStatus struct {
	Status *string `json:"status"`
}

type ContactInfo struct {
	Address   string `json:"address"`
	MediaType string `json:"mediaType"`
	Type      string `json:"type"`
}

type EntityRef struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
}

type UserEntity struct {
	ID                 string         `json:"id"`
	Name               *string        `json:"name"`
	Email              *string        `json:"email"`
	Username           *string        `json:"username"`
	Department         *string        `json:"department"`
	Title              *string        `json:"title"`
	State              *string        `json:"state"`
	Presence           *Presence      `json:"presence"`
	RoutingStatus      *RoutingStatus `json:"routingStatus"`
	PrimaryContactInfo []ContactInfo  `json:"primaryContactInfo"`
	DateCreated        *time.Time     `json:"dateCreated"`
	DateModified       *time.Time     `json:"dateModified"`
	Manager            *EntityRef     `json:"manager"`
}

type MediaSetting struct {
	Enabled               *bool   `json:"enabled"`
	SkillEvaluationMethod *string `json:"skillEvaluationMethod"`
}

type QueueEntity struct {
	ID            string                  `json:"id"`
	Name          *string                 `json:"name"`
	Description   *string                 `json:"description"`
	Division      *EntityRef              `json:"division"`
	MemberCount   *int                    `json:"memberCount"`
	DateModified  *time.Time              `json:"dateModified"`
	MediaSettings map[string]MediaSetting `json:"mediaSettings"`
}

type MemberEntity struct {
	ID            string         `json:"id"`
	Name          *string        `json:"name"`
	User          *EntityRef     `json:"user"`
	Joined        *bool          `json:"joined"`
	RingNumber    *int           `json:"ringNumber"`
	RoutingStatus *RoutingStatus `json:"routingStatus"`
}
