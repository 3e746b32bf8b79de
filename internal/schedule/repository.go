package schedule

import "context"

type Repository interface {
	Create(ctx context.Context, r *Run) error
	// List returns up to limit runs of the project, newest first.
	List(ctx context.Context, projectID string, limit int) ([]*Run, error)
	// Latest returns the newest run, or a NotFound error.
	Latest(ctx context.Context, projectID string) (*Run, error)
	// LatestOK returns the newest successful run, or a NotFound error.
	LatestOK(ctx context.Context, projectID string) (*Run, error)
	// Prune keeps the newest keep runs of the project.
	Prune(ctx context.Context, projectID string, keep int) error
	DeleteProject(ctx context.Context, projectID string) error
}
