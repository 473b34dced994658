package entities

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleJudge    Role = "judge"
	RoleLeader   Role = "leader"
	RoleAudience Role = "audience"
)

// Capability is a single permission bit granted by a role.
type Capability uint8

const (
	CapJudgeScore Capability = 1 << iota
	CapLeaderScore
	CapAudienceBallot
	CapAdminister
)

var roleCapabilities = map[Role]Capability{
	RoleAdmin:    CapAdminister,
	RoleJudge:    CapJudgeScore,
	RoleLeader:   CapLeaderScore,
	RoleAudience: CapAudienceBallot,
}

// ParseRole maps an external role string onto the closed role set.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := roleCapabilities[role]; !ok {
		return "", false
	}
	return role, true
}

func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Can reports whether the role grants every bit in capability.
func (r Role) Can(capability Capability) bool {
	granted, ok := roleCapabilities[r]
	if !ok || capability == 0 {
		return false
	}
	return granted&capability == capability
}

// CanScore reports whether the role submits 0-10 scores (judge or leader).
func (r Role) CanScore() bool {
	return r.Can(CapJudgeScore) || r.Can(CapLeaderScore)
}

type Voter struct {
	VoterID     string
	Email       string
	Name        string
	Role        Role
	Verified    bool
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}
