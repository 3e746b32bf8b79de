package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/ganttguild/internal/pushsubscription"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/clog"
	"github.com/kazz187/ganttguild/pkg/storage"
)

const pushSubscriptionsPrefix = "push_subscriptions"

type YAMLRepository struct {
	storage storage.Storage
}

var _ pushsubscription.Repository = (*YAMLRepository)(nil)

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", pushSubscriptionsPrefix, id)
}

func (r *YAMLRepository) write(ctx context.Context, s *pushsubscription.Subscription) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.WrapMarshalError("push subscription", err)
	}
	if err := r.storage.Write(ctx, path(s.ID), data); err != nil {
		return cerr.WrapStorageWriteError("push subscription", err)
	}
	return nil
}

func (r *YAMLRepository) read(ctx context.Context, p string) (*pushsubscription.Subscription, error) {
	data, err := r.storage.Read(ctx, p)
	if err != nil {
		return nil, cerr.WrapStorageReadError("push subscription", err)
	}
	var s pushsubscription.Subscription
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, cerr.WrapUnmarshalError("push subscription", err)
	}
	return &s, nil
}

func (r *YAMLRepository) Create(ctx context.Context, s *pushsubscription.Subscription) error {
	exists, err := r.storage.Exists(ctx, path(s.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("push subscription", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "push subscription already exists", nil)
	}
	return r.write(ctx, s)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*pushsubscription.Subscription, error) {
	return r.read(ctx, path(id))
}

// List skips entries that cannot be read so one corrupt file does not
// silence every subscriber.
func (r *YAMLRepository) List(ctx context.Context) ([]*pushsubscription.Subscription, error) {
	paths, err := r.storage.List(ctx, pushSubscriptionsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("push subscriptions", err)
	}
	all := make([]*pushsubscription.Subscription, 0, len(paths))
	for _, p := range paths {
		s, err := r.read(ctx, p)
		if err != nil {
			if !cerr.IsCode(err, cerr.NotFound) {
				slog.WarnContext(ctx, "skipping unreadable push subscription", "path", p, clog.ErrorAttributeKey, err)
			}
			continue
		}
		all = append(all, s)
	}
	return all, nil
}

func (r *YAMLRepository) Update(ctx context.Context, s *pushsubscription.Subscription) error {
	exists, err := r.storage.Exists(ctx, path(s.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("push subscription", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "push subscription not found", nil)
	}
	return r.write(ctx, s)
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("push subscription", err)
	}
	return nil
}

func (r *YAMLRepository) FindByEndpoint(ctx context.Context, endpoint string) (*pushsubscription.Subscription, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Endpoint == endpoint {
			return s, nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, "push subscription not found", nil)
}

func (r *YAMLRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	s, err := r.FindByEndpoint(ctx, endpoint)
	if err != nil {
		return err
	}
	return r.Delete(ctx, s.ID)
}
