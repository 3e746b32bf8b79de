package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/ganttguild/internal/task"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/storage"
)

const tasksPrefix = "tasks"

type YAMLRepository struct {
	storage storage.Storage
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ task.Repository = (*YAMLRepository)(nil)

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{
		storage: s,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

func dir(projectID string) string {
	return fmt.Sprintf("%s/%s", tasksPrefix, projectID)
}

func path(projectID, id string) string {
	return fmt.Sprintf("%s/%s/%s.yaml", tasksPrefix, projectID, id)
}

// lock serialises writers of one project.
func (r *YAMLRepository) lock(projectID string) func() {
	r.mu.Lock()
	l, ok := r.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[projectID] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (r *YAMLRepository) write(ctx context.Context, t *task.Task) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return cerr.WrapMarshalError("task", err)
	}
	if err := r.storage.Write(ctx, path(t.ProjectID, t.ID), data); err != nil {
		return cerr.WrapStorageWriteError("task", err)
	}
	return nil
}

func (r *YAMLRepository) read(ctx context.Context, p string) (*task.Task, error) {
	data, err := r.storage.Read(ctx, p)
	if err != nil {
		return nil, cerr.WrapStorageReadError("task", err)
	}
	var t task.Task
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, cerr.WrapUnmarshalError("task", err)
	}
	return &t, nil
}

func (r *YAMLRepository) Create(ctx context.Context, t *task.Task) error {
	defer r.lock(t.ProjectID)()

	exists, err := r.storage.Exists(ctx, path(t.ProjectID, t.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("task", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "task already exists", nil)
	}
	return r.write(ctx, t)
}

func (r *YAMLRepository) Get(ctx context.Context, projectID, id string) (*task.Task, error) {
	return r.read(ctx, path(projectID, id))
}

// List returns the project's tasks ordered by creation time.
func (r *YAMLRepository) List(ctx context.Context, projectID string) ([]*task.Task, error) {
	paths, err := r.storage.List(ctx, dir(projectID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("tasks", err)
	}
	tasks := make([]*task.Task, 0, len(paths))
	for _, p := range paths {
		t, err := r.read(ctx, p)
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				// Deleted between List and Read.
				continue
			}
			return nil, err
		}
		tasks = append(tasks, t)
	}
	sortTasks(tasks)
	return tasks, nil
}

func (r *YAMLRepository) Update(ctx context.Context, t *task.Task) error {
	defer r.lock(t.ProjectID)()

	cur, err := r.read(ctx, path(t.ProjectID, t.ID))
	if err != nil {
		return err
	}
	if !cur.UpdatedAt.Equal(t.UpdatedAt) {
		return cerr.NewError(cerr.Aborted, "task was modified concurrently, retry the edit", nil)
	}
	t.UpdatedAt = r.now()
	return r.write(ctx, t)
}

func (r *YAMLRepository) Delete(ctx context.Context, projectID, id string) error {
	defer r.lock(projectID)()

	if err := r.storage.Delete(ctx, path(projectID, id)); err != nil {
		return cerr.WrapStorageDeleteError("task", err)
	}
	return nil
}

func (r *YAMLRepository) Apply(ctx context.Context, projectID string, write []*task.Task, remove []string) error {
	defer r.lock(projectID)()

	now := r.now()
	for _, t := range write {
		if t.ProjectID != projectID {
			return cerr.NewError(cerr.InvalidArgument, "task belongs to another project", nil)
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		if err := r.write(ctx, t); err != nil {
			return err
		}
	}
	for _, id := range remove {
		err := r.storage.Delete(ctx, path(projectID, id))
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return cerr.WrapStorageDeleteError("task", err)
		}
	}
	return nil
}

func (r *YAMLRepository) SaveComputed(ctx context.Context, projectID string, tasks []*task.Task) (int, error) {
	defer r.lock(projectID)()

	skipped := 0
	for _, t := range tasks {
		cur, err := r.read(ctx, path(projectID, t.ID))
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				skipped++
				continue
			}
			return skipped, err
		}
		if !cur.UpdatedAt.Equal(t.UpdatedAt) {
			skipped++
			continue
		}
		if !cur.ScheduleChanged(t) {
			continue
		}
		if err := r.write(ctx, t); err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

func (r *YAMLRepository) DeleteProject(ctx context.Context, projectID string) error {
	defer r.lock(projectID)()

	paths, err := r.storage.List(ctx, dir(projectID))
	if err != nil {
		return cerr.WrapStorageReadError("tasks", err)
	}
	for _, p := range paths {
		if err := r.storage.Delete(ctx, p); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return cerr.WrapStorageDeleteError("task", err)
		}
	}
	return nil
}
