// Package channel holds the scope-chain entities. A job is always scoped to
// a Channel; a Channel belongs to a Context; agents and users carry a Role.
// Each of the three may reference a PermissionSet, and the most specific
// reference wins wholesale during resolution.
package channel

import "time"

type Role struct {
	ID              string    `yaml:"id" json:"id"`
	Name            string    `yaml:"name" json:"name"`
	PermissionSetID string    `yaml:"permission_set_id" json:"permissionSetId"`
	CreatedAt       time.Time `yaml:"created_at" json:"createdAt"`
}

type Context struct {
	ID              string    `yaml:"id" json:"id"`
	Name            string    `yaml:"name" json:"name"`
	PermissionSetID string    `yaml:"permission_set_id" json:"permissionSetId"`
	CreatedAt       time.Time `yaml:"created_at" json:"createdAt"`
}

type Channel struct {
	ID              string    `yaml:"id" json:"id"`
	Name            string    `yaml:"name" json:"name"`
	ContextID       string    `yaml:"context_id" json:"contextId"`
	PermissionSetID string    `yaml:"permission_set_id" json:"permissionSetId"`
	CreatedAt       time.Time `yaml:"created_at" json:"createdAt"`
}
