package authroles

import (
	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/domain/model"
)

// ProfileRoleMapper derives the role from the profile's admin flag.
// An identity without a profile row is still a signed-in user.
type ProfileRoleMapper struct{}

func (ProfileRoleMapper) Map(profile *model.Profile) domainauth.Role {
	if profile != nil && profile.IsAdmin {
		return domainauth.RoleAdmin
	}
	return domainauth.RoleUser
}
