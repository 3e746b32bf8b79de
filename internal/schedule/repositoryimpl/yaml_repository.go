package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/ganttguild/internal/schedule"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/storage"
)

const runsPrefix = "schedule_runs"

// YAMLRepository stores one file per run. Run ids are ULIDs, so the sorted
// listing is chronological.
type YAMLRepository struct {
	storage storage.Storage
}

var _ schedule.Repository = (*YAMLRepository)(nil)

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func dir(projectID string) string {
	return fmt.Sprintf("%s/%s", runsPrefix, projectID)
}

func path(projectID, id string) string {
	return fmt.Sprintf("%s/%s/%s.yaml", runsPrefix, projectID, id)
}

func (r *YAMLRepository) Create(ctx context.Context, run *schedule.Run) error {
	data, err := yaml.Marshal(run)
	if err != nil {
		return cerr.WrapMarshalError("schedule run", err)
	}
	if err := r.storage.Write(ctx, path(run.ProjectID, run.ID), data); err != nil {
		return cerr.WrapStorageWriteError("schedule run", err)
	}
	return nil
}

func (r *YAMLRepository) read(ctx context.Context, p string) (*schedule.Run, error) {
	data, err := r.storage.Read(ctx, p)
	if err != nil {
		return nil, cerr.WrapStorageReadError("schedule run", err)
	}
	var run schedule.Run
	if err := yaml.Unmarshal(data, &run); err != nil {
		return nil, cerr.WrapUnmarshalError("schedule run", err)
	}
	return &run, nil
}

// newest walks the project's runs from newest to oldest until fn returns false.
func (r *YAMLRepository) newest(ctx context.Context, projectID string, fn func(*schedule.Run) bool) error {
	paths, err := r.storage.List(ctx, dir(projectID))
	if err != nil {
		return cerr.WrapStorageReadError("schedule runs", err)
	}
	for i := len(paths) - 1; i >= 0; i-- {
		run, err := r.read(ctx, paths[i])
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				continue
			}
			return err
		}
		if !fn(run) {
			return nil
		}
	}
	return nil
}

func (r *YAMLRepository) List(ctx context.Context, projectID string, limit int) ([]*schedule.Run, error) {
	var runs []*schedule.Run
	err := r.newest(ctx, projectID, func(run *schedule.Run) bool {
		runs = append(runs, run)
		return limit <= 0 || len(runs) < limit
	})
	return runs, err
}

func (r *YAMLRepository) find(ctx context.Context, projectID string, match func(*schedule.Run) bool) (*schedule.Run, error) {
	var found *schedule.Run
	err := r.newest(ctx, projectID, func(run *schedule.Run) bool {
		if match(run) {
			found = run
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, cerr.NewError(cerr.NotFound, "schedule run not found", nil)
	}
	return found, nil
}

func (r *YAMLRepository) Latest(ctx context.Context, projectID string) (*schedule.Run, error) {
	return r.find(ctx, projectID, func(*schedule.Run) bool { return true })
}

func (r *YAMLRepository) LatestOK(ctx context.Context, projectID string) (*schedule.Run, error) {
	return r.find(ctx, projectID, (*schedule.Run).OK)
}

func (r *YAMLRepository) Prune(ctx context.Context, projectID string, keep int) error {
	paths, err := r.storage.List(ctx, dir(projectID))
	if err != nil {
		return cerr.WrapStorageReadError("schedule runs", err)
	}
	if len(paths) <= keep {
		return nil
	}
	for _, p := range paths[:len(paths)-keep] {
		if err := r.storage.Delete(ctx, p); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return cerr.WrapStorageDeleteError("schedule run", err)
		}
	}
	return nil
}

func (r *YAMLRepository) DeleteProject(ctx context.Context, projectID string) error {
	return r.Prune(ctx, projectID, 0)
}
