package identity

import (
	"errors"
	"time"
)

// User is a human principal.
type User struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	RoleID    string    `yaml:"role_id" json:"roleId"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
}

// Agent is an autonomous software principal.
type Agent struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	RoleID    string    `yaml:"role_id" json:"roleId"`
	CreatedBy string    `yaml:"created_by" json:"createdBy"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
}

// Ref identifies either a user or an agent, never both.
type Ref struct {
	UserID  string `yaml:"user_id,omitempty" json:"userId,omitempty"`
	AgentID string `yaml:"agent_id,omitempty" json:"agentId,omitempty"`
}

func (r Ref) IsUser() bool {
	return r.UserID != ""
}

func (r Ref) IsAgent() bool {
	return r.AgentID != ""
}

func (r Ref) IsZero() bool {
	return r.UserID == "" && r.AgentID == ""
}

// Validate rejects refs that name both kinds of principal or neither.
func (r Ref) Validate() error {
	if r.IsZero() {
		return errors.New("identity ref is empty")
	}
	if r.IsUser() && r.IsAgent() {
		return errors.New("identity ref names both a user and an agent")
	}
	return nil
}

func (r Ref) String() string {
	if r.IsUser() {
		return "user:" + r.UserID
	}
	if r.IsAgent() {
		return "agent:" + r.AgentID
	}
	return "unknown"
}
