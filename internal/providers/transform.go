package providers

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/ccdash/internal/model"
	"github.com/briangreenhill/ccdash/pkg/genesys"
)

func str(p *string, def string) string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return def
	}
	return *p
}

// TransformUsers flattens upstream users, applying defaults and dropping
// entities that fail validation.
func TransformUsers(ctx context.Context, raw []genesys.UserEntity) []model.User {
	out := make([]model.User, 0, len(raw))
	for _, r := range raw {
		u := model.User{
			ID:               r.ID,
			Name:             str(r.Name, ""),
			Email:            str(r.Email, ""),
			Username:         str(r.Username, ""),
			Department:       str(r.Department, model.DefaultDepartment),
			Title:            str(r.Title, ""),
			State:            str(r.State, model.DefaultState),
			Presence:         model.DefaultPresence,
			RoutingStatus:    model.DefaultRoutingStatus,
			CreatedDate:      r.DateCreated,
			LastModifiedDate: r.DateModified,
		}
		if u.Name == "" {
			u.Name = u.Username
		}
		if r.Presence != nil && r.Presence.PresenceDefinition != nil {
			u.Presence = str(r.Presence.PresenceDefinition.SystemPresence, model.DefaultPresence)
		}
		if r.RoutingStatus != nil {
			u.RoutingStatus = str(r.RoutingStatus.Status, model.DefaultRoutingStatus)
		}
		for _, c := range r.PrimaryContactInfo {
			if c.MediaType == "PHONE" || c.Type == "PHONE" {
				u.PhoneNumber = c.Address
				break
			}
		}
		if r.Manager != nil && r.Manager.ID != "" {
			u.Manager = &model.UserRef{ID: r.Manager.ID, Name: str(r.Manager.Name, "")}
		}

		if keep(ctx, model.ResourceUsers, r.ID, u) {
			out = append(out, u)
		}
	}
	return out
}

// TransformQueues flattens upstream queues.
func TransformQueues(ctx context.Context, raw []genesys.QueueEntity) []model.Queue {
	out := make([]model.Queue, 0, len(raw))
	for _, r := range raw {
		q := model.Queue{
			ID:            r.ID,
			Name:          str(r.Name, ""),
			Description:   str(r.Description, ""),
			Division:      model.DefaultDivision,
			DateModified:  r.DateModified,
			MediaSettings: map[string]model.MediaSetting{},
		}
		if r.MemberCount != nil {
			q.MemberCount = *r.MemberCount
		}
		if r.Division != nil {
			q.Division = str(r.Division.Name, model.DefaultDivision)
		}
		for media, s := range r.MediaSettings {
			ms := model.MediaSetting{SkillEvaluationMethod: str(s.SkillEvaluationMethod, "")}
			if s.Enabled != nil {
				ms.Enabled = *s.Enabled
			}
			q.MediaSettings[media] = ms
		}

		if keep(ctx, model.ResourceQueues, r.ID, q) {
			out = append(out, q)
		}
	}
	return out
}

// TransformMembers flattens upstream queue members.
func TransformMembers(ctx context.Context, raw []genesys.MemberEntity) []model.QueueMember {
	out := make([]model.QueueMember, 0, len(raw))
	for _, r := range raw {
		m := model.QueueMember{
			ID:   r.ID,
			Name: str(r.Name, ""),
		}
		if r.User != nil {
			if m.ID == "" {
				m.ID = r.User.ID
			}
			if m.Name == "" {
				m.Name = str(r.User.Name, "")
			}
		}
		if r.Joined != nil {
			m.Joined = *r.Joined
		}
		if r.RingNumber != nil {
			m.RingNumber = *r.RingNumber
		}
		if r.RoutingStatus != nil {
			m.RoutingStatus = str(r.RoutingStatus.Status, "")
		}

		if keep(ctx, model.ResourceQueueMembers, r.ID, m) {
			out = append(out, m)
		}
	}
	return out
}

func keep(ctx context.Context, resource, id string, v any) bool {
	if err := model.Validate(v); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("resource", resource).
			Str("id", id).
			Msg("dropping invalid upstream entity")
		return false
	}
	return true
}
