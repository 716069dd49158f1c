package authorization

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectQuota = "quota"

	ActionQuotaRead   = "quota:read"
	ActionQuotaAdjust = "quota:adjust"
)

const (
	RoleAdmin   = "admin"
	RoleSupport = "support"
)

// rolePolicies is the built-in grant table. Admins manage ledgers, support
// staff may only look at them.
var rolePolicies = map[string][]string{
	RoleAdmin:   {ActionQuotaRead, ActionQuotaAdjust},
	RoleSupport: {ActionQuotaRead},
}

// NewEnforcer loads policies stored through the gorm adapter and makes sure
// the built-in role grants exist.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}

	var missing [][]string
	for role, actions := range rolePolicies {
		for _, action := range actions {
			rule := []string{roleSubject(role), ObjectQuota, action}
			ok, err := enforcer.HasPolicy(rule)
			if err != nil {
				return nil, err
			}
			if !ok {
				missing = append(missing, rule)
			}
		}
	}
	if len(missing) > 0 {
		if _, err := enforcer.AddPolicies(missing); err != nil {
			return nil, err
		}
	}
	return enforcer, enforcer.BuildRoleLinks()
}

func roleSubject(role string) string {
	return "role:" + role
}
