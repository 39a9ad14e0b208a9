package pushsubscription

import "time"

// Subscription is one browser push endpoint registered by an approver.
// UserID binds the endpoint to a user so notifications can target the
// people who may actually approve; an unbound endpoint receives everything.
type Subscription struct {
	ID        string    `yaml:"id" json:"id"`
	UserID    string    `yaml:"user_id,omitempty" json:"userId,omitempty"`
	Endpoint  string    `yaml:"endpoint" json:"endpoint"`
	P256dhKey string    `yaml:"p256dh_key" json:"p256dhKey"`
	AuthKey   string    `yaml:"auth_key" json:"authKey"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
}
