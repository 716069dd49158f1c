package authorization

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Actor is the authenticated caller. Role comes from the bearer token.
type Actor struct {
	UserID snowflake.ID
	Role   string
}

func (a Actor) subject() string {
	return "user:" + a.UserID.String()
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

// Authorize checks the actor's current token role against the policy table.
// The role link is synced on every call, so a demoted token loses access
// immediately.
func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)
	switch {
	case actor.UserID == 0:
		return ErrInvalidActor
	case object == "":
		return ErrInvalidObject
	case action == "":
		return ErrInvalidAction
	}

	subject := actor.subject()
	if err := s.syncRole(subject, strings.ToLower(strings.TrimSpace(actor.Role))); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}
	s.log.Warn("authorization denied",
		zap.Stringer("user_id", actor.UserID),
		zap.String("role", actor.Role),
		zap.String("object", object),
		zap.String("action", action),
	)
	return ErrForbidden
}

// syncRole leaves subject with at most one role link, the given one. An
// empty role drops every link.
func (s *ServiceImpl) syncRole(subject string, role string) error {
	want := ""
	if role != "" {
		want = roleSubject(role)
	}

	links, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	linked := false
	for _, link := range links {
		if len(link) < 2 {
			continue
		}
		if link[1] == want {
			linked = true
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(link[0], link[1]); err != nil {
			return err
		}
	}
	if want == "" || linked {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, want)
	return err
}
