package domain

import "time"

type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPro        Plan = "PRO"
	PlanBusiness   Plan = "BUSINESS"
	PlanEnterprise Plan = "ENTERPRISE"
)

// PlanLimits are the resource ceilings applied to every container a user
// deploys. Limits are fixed at container-creation time; upgrading a plan does
// not resize running containers.
type PlanLimits struct {
	MaxAgents int // 0 = unlimited
	MemoryMb  int
	CPUQuota  float64 // fraction of a core, 0.0–2.0
}

var planLimits = map[Plan]PlanLimits{
	PlanFree:       {MaxAgents: 1, MemoryMb: 128, CPUQuota: 0.5},
	PlanPro:        {MaxAgents: 5, MemoryMb: 256, CPUQuota: 1.0},
	PlanBusiness:   {MaxAgents: 20, MemoryMb: 512, CPUQuota: 1.5},
	PlanEnterprise: {MaxAgents: 0, MemoryMb: 512, CPUQuota: 2.0},
}

// LimitsFor returns the limits for a plan, falling back to FREE for unknown
// values.
func LimitsFor(p Plan) PlanLimits {
	if l, ok := planLimits[p]; ok {
		return l
	}
	return planLimits[PlanFree]
}

// User is the minimal projection of the identity provider's account record
// that the orchestrator reads: just enough to enforce the per-plan quota.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex"`
	Plan      Plan      `json:"plan" gorm:"type:varchar(16);default:'FREE'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
