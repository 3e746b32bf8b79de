package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/ganttguild/internal/project"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/storage"
)

const projectsPrefix = "projects"

type YAMLRepository struct {
	storage storage.Storage
}

var _ project.Repository = (*YAMLRepository)(nil)

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", projectsPrefix, id)
}

func (r *YAMLRepository) write(ctx context.Context, p *project.Project) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return cerr.WrapMarshalError("project", err)
	}
	if err := r.storage.Write(ctx, path(p.ID), data); err != nil {
		return cerr.WrapStorageWriteError("project", err)
	}
	return nil
}

func (r *YAMLRepository) Create(ctx context.Context, p *project.Project) error {
	exists, err := r.storage.Exists(ctx, path(p.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("project", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "project already exists", nil)
	}
	return r.write(ctx, p)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	return r.read(ctx, path(id))
}

func (r *YAMLRepository) read(ctx context.Context, key string) (*project.Project, error) {
	data, err := r.storage.Read(ctx, key)
	if err != nil {
		return nil, cerr.WrapStorageReadError("project", err)
	}
	var p project.Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, cerr.WrapUnmarshalError("project", err)
	}
	return &p, nil
}

// List pages over projects in id order. Ids are ULIDs, so this is creation order.
func (r *YAMLRepository) List(ctx context.Context, limit, offset int) ([]*project.Project, int, error) {
	paths, err := r.storage.List(ctx, projectsPrefix)
	if err != nil {
		return nil, 0, cerr.WrapStorageReadError("projects", err)
	}
	total := len(paths)
	if offset >= total {
		return nil, total, nil
	}
	paths = paths[offset:]
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	projects := make([]*project.Project, 0, len(paths))
	for _, key := range paths {
		p, err := r.read(ctx, key)
		if err != nil {
			// A project file deleted between List and Read is not an error.
			slog.WarnContext(ctx, "skipping unreadable project", "path", key, "error", err)
			continue
		}
		projects = append(projects, p)
	}
	return projects, total, nil
}

func (r *YAMLRepository) Update(ctx context.Context, p *project.Project) error {
	exists, err := r.storage.Exists(ctx, path(p.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("project", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "project not found", nil)
	}
	return r.write(ctx, p)
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("project", err)
	}
	return nil
}
