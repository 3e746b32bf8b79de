package task

import "context"

// Repository stores tasks per project.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, projectID, id string) (*Task, error)
	List(ctx context.Context, projectID string) ([]*Task, error)
	// Update fails with cerr.Aborted when the stored task changed after t was
	// read, then stamps t.UpdatedAt.
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, projectID, id string) error
	// Apply writes and removes tasks of one project as one locked batch.
	Apply(ctx context.Context, projectID string, write []*Task, remove []string) error
	// SaveComputed persists scheduler output without touching UpdatedAt.
	// Tasks edited or deleted since they were loaded are skipped and counted.
	SaveComputed(ctx context.Context, projectID string, tasks []*Task) (skipped int, err error)
	DeleteProject(ctx context.Context, projectID string) error
}
