package model

import (
	"time"

	"launchkit-core/internal/domain"

	"github.com/google/uuid"
)

// Org is a tenant. Its plan tier selects the ceilings applied at admission.
type Org struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PlanTier  PlanTier  `json:"planTier"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewOrg(id, name string, tier PlanTier) (*Org, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if name == "" {
		return nil, domain.ErrInvalidArgument
	}
	if tier == "" {
		tier = PlanFree
	}
	return &Org{ID: id, Name: name, PlanTier: tier, CreatedAt: time.Now().UTC()}, nil
}

func (o *Org) IsZero() bool { return o == nil || o.ID == "" }
