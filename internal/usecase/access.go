package usecase

import (
	"context"
	"errors"

	"github.com/xavierca1/leadflow/internal/entity"
)

var errForbidden = &DomainError{Code: CodeForbidden, Message: "not allowed"}

func (a Actor) IsManager() bool {
	return a.Role == entity.RoleManager
}

// canReadLeads is true for the roles that use the admin API.
func (a Actor) canReadLeads() bool {
	return a.IsAdmin() || (a.IsManager() && a.UserID != "")
}

// loadLeadFor fetches a lead and checks the actor may see it. Managers only
// see leads assigned to them.
func loadLeadFor(ctx context.Context, leads entity.LeadRepositoryInterface, actor Actor, id string) (*entity.Lead, error) {
	if !actor.canReadLeads() {
		return nil, errForbidden
	}
	lead, err := leads.FindByID(ctx, id)
	if errors.Is(err, entity.ErrLeadNotFound) {
		return nil, notFound("lead")
	}
	if err != nil {
		return nil, &StorageError{Op: "find lead", Err: err}
	}
	if actor.IsManager() && lead.AssignedTo != actor.UserID {
		return nil, errForbidden
	}
	return lead, nil
}

func viewFor(actor Actor, lead entity.Lead) entity.Lead {
	if actor.IsManager() {
		return lead.Masked()
	}
	return lead
}
