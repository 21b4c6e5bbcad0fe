package entity

import (
	"context"
	"time"
)

type LeadSummary struct {
	TotalLeads      int            `json:"total_leads"`
	LeadsLast7Days  int            `json:"leads_last_7_days"`
	AssignedLeads   int            `json:"assigned_leads"`
	UnassignedLeads int            `json:"unassigned_leads"`
	BySource        map[string]int `json:"by_source"`
}

type AnalyticsRepositoryInterface interface {
	// LeadSummary aggregates leads; assignedTo restricts it to one manager when set.
	LeadSummary(ctx context.Context, assignedTo string, since time.Time) (*LeadSummary, error)
}
