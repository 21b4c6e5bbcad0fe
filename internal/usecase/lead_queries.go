package usecase

import (
	"context"

	"github.com/xavierca1/leadflow/internal/entity"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func pageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}

type LeadQueryUseCase struct {
	Leads entity.LeadRepositoryInterface
}

func NewLeadQueryUseCase(leads entity.LeadRepositoryInterface) *LeadQueryUseCase {
	return &LeadQueryUseCase{Leads: leads}
}

// List returns every lead for admins. Managers get their assigned leads with
// contact details masked.
func (uc *LeadQueryUseCase) List(ctx context.Context, actor Actor, limit, offset int) ([]entity.Lead, error) {
	if !actor.canReadLeads() {
		return nil, errForbidden
	}
	filter := entity.LeadFilter{Limit: pageSize(limit), Offset: max(offset, 0)}
	if actor.IsManager() {
		filter.AssignedTo = actor.UserID
	}

	leads, err := uc.Leads.List(ctx, filter)
	if err != nil {
		return nil, &StorageError{Op: "list leads", Err: err}
	}
	out := make([]entity.Lead, 0, len(leads))
	for _, l := range leads {
		out = append(out, viewFor(actor, l))
	}
	return out, nil
}

func (uc *LeadQueryUseCase) Get(ctx context.Context, actor Actor, id string) (*entity.Lead, error) {
	lead, err := loadLeadFor(ctx, uc.Leads, actor, id)
	if err != nil {
		return nil, err
	}
	v := viewFor(actor, *lead)
	return &v, nil
}
