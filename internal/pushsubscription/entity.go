package pushsubscription

import (
	"slices"
	"time"
)

// Subscription is one browser push endpoint. ProjectIDs limits notifications
// to those projects; an empty list subscribes to every project.
type Subscription struct {
	ID         string    `yaml:"id"`
	Endpoint   string    `yaml:"endpoint"`
	P256dhKey  string    `yaml:"p256dh_key"`
	AuthKey    string    `yaml:"auth_key"`
	ProjectIDs []string  `yaml:"project_ids,omitempty"`
	CreatedAt  time.Time `yaml:"created_at"`
	UpdatedAt  time.Time `yaml:"updated_at"`
}

func (s *Subscription) Follows(projectID string) bool {
	return len(s.ProjectIDs) == 0 || projectID == "" || slices.Contains(s.ProjectIDs, projectID)
}
