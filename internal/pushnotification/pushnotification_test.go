package pushnotification

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/ganttguild/internal/config"
	"github.com/kazz187/ganttguild/internal/eventbus"
	"github.com/kazz187/ganttguild/internal/project"
	projectrepo "github.com/kazz187/ganttguild/internal/project/repositoryimpl"
	"github.com/kazz187/ganttguild/internal/pushsubscription"
	subrepo "github.com/kazz187/ganttguild/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/storage"
)

func vapidEnv(t *testing.T) *config.VAPIDEnv {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return &config.VAPIDEnv{PublicKey: pub, PrivateKey: priv, Contact: "mailto:ops@example.com"}
}

func browserKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()), base64.RawURLEncoding.EncodeToString(secret)
}

type pushService struct {
	mu    sync.Mutex
	paths []string
	srv   *httptest.Server
}

func newPushService(t *testing.T) *pushService {
	t.Helper()
	ps := &pushService{}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.paths = append(ps.paths, r.URL.Path)
		ps.mu.Unlock()
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func subscribe(t *testing.T, repo pushsubscription.Repository, id, endpoint string, projectIDs ...string) {
	t.Helper()
	p256dh, auth := browserKeys(t)
	require.NoError(t, repo.Create(context.Background(), &pushsubscription.Subscription{
		ID: id, Endpoint: endpoint, P256dhKey: p256dh, AuthKey: auth, ProjectIDs: projectIDs,
	}))
}

func TestSender_Send(t *testing.T) {
	ctx := context.Background()
	ps := newPushService(t)
	repo := subrepo.NewYAMLRepository(storage.NewMemoryStorage())
	subscribe(t, repo, "all", ps.srv.URL+"/all")
	subscribe(t, repo, "p1", ps.srv.URL+"/p1", "p1")
	subscribe(t, repo, "p2", ps.srv.URL+"/p2", "p2")
	subscribe(t, repo, "gone", ps.srv.URL+"/gone")

	sender := NewSender(vapidEnv(t), repo)
	sender.httpClient = ps.srv.Client()

	sent := sender.Send(ctx, "p1", &NotificationPayload{Title: "t", Body: "b"})
	assert.Equal(t, 2, sent)
	assert.ElementsMatch(t, []string{"/all", "/p1", "/gone"}, ps.paths)

	_, err := repo.Get(ctx, "gone")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestSender_DisabledWithoutKeys(t *testing.T) {
	ps := newPushService(t)
	repo := subrepo.NewYAMLRepository(storage.NewMemoryStorage())
	subscribe(t, repo, "all", ps.srv.URL+"/all")

	sender := NewSender(&config.VAPIDEnv{}, repo)
	assert.Zero(t, sender.Send(context.Background(), "", &NotificationPayload{Title: "t"}))
	assert.Empty(t, ps.paths)
}

func TestDispatcher_PayloadFor(t *testing.T) {
	ctx := context.Background()
	projects := projectrepo.NewYAMLRepository(storage.NewMemoryStorage())
	require.NoError(t, projects.Create(ctx, &project.Project{ID: "p1", Name: "Tower"}))
	d := NewDispatcher(eventbus.New(), projects, nil, 0)

	tests := []struct {
		name  string
		event *eventbus.Event
		title string
	}{
		{
			name:  "failed pass",
			event: eventbus.NewEvent(eventbus.EventScheduleFailed, "p1", "r1", map[string]string{"error": "dependency cycle detected: a -> b -> a"}),
			title: "Tower: Schedule failed",
		},
		{
			name:  "conflicts rose",
			event: eventbus.NewEvent(eventbus.EventScheduleCalculated, "p1", "r1", map[string]string{"conflicts": "2", "previous_conflicts": "1"}),
			title: "Tower: New schedule conflicts",
		},
		{
			name:  "conflicts unchanged",
			event: eventbus.NewEvent(eventbus.EventScheduleCalculated, "p1", "r1", map[string]string{"conflicts": "1", "previous_conflicts": "1"}),
		},
		{
			name:  "unrelated event",
			event: eventbus.NewEvent(eventbus.EventTaskChanged, "p1", "a", nil),
		},
		{
			name:  "unknown project",
			event: eventbus.NewEvent(eventbus.EventScheduleFailed, "p9", "r1", nil),
			title: "Schedule failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := d.payloadFor(ctx, tt.event)
			if tt.title == "" {
				assert.Nil(t, payload)
				return
			}
			require.NotNil(t, payload)
			assert.Equal(t, tt.title, payload.Title)
			assert.Equal(t, "/projects/"+tt.event.ProjectID+"/schedule", payload.URL)
		})
	}
}
