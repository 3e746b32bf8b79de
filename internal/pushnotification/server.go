package pushnotification

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/ganttguild/internal/config"
	"github.com/kazz187/ganttguild/internal/pushsubscription"
	"github.com/kazz187/ganttguild/pkg/cerr"
	"github.com/kazz187/ganttguild/pkg/connectjson"
)

const ServiceName = "ganttguild.v1.PushNotificationService"

type GetVapidPublicKeyRequest struct{}

type GetVapidPublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

type RegisterPushSubscriptionRequest struct {
	Endpoint   string   `json:"endpoint"`
	P256dhKey  string   `json:"p256dhKey"`
	AuthKey    string   `json:"authKey"`
	ProjectIDs []string `json:"projectIds"`
}

type RegisterPushSubscriptionResponse struct {
	ID string `json:"id"`
}

type UnregisterPushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
}

type UnregisterPushSubscriptionResponse struct{}

type SendTestNotificationRequest struct {
	ProjectID string `json:"projectId"`
}

type SendTestNotificationResponse struct {
	Sent int `json:"sent"`
}

type Server struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	sender   *Sender
}

func NewServer(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, sender *Sender) *Server {
	return &Server{
		vapidEnv: vapidEnv,
		repo:     repo,
		sender:   sender,
	}
}

func (s *Server) Procedures(opts ...connect.HandlerOption) []connectjson.Procedure {
	return []connectjson.Procedure{
		connectjson.Unary(ServiceName, "GetVapidPublicKey", s.GetVapidPublicKey,
			append([]connect.HandlerOption{connect.WithIdempotency(connect.IdempotencyNoSideEffects)}, opts...)...),
		connectjson.Unary(ServiceName, "RegisterPushSubscription", s.RegisterPushSubscription, opts...),
		connectjson.Unary(ServiceName, "UnregisterPushSubscription", s.UnregisterPushSubscription, opts...),
		connectjson.Unary(ServiceName, "SendTestNotification", s.SendTestNotification, opts...),
	}
}

func (s *Server) GetVapidPublicKey(_ context.Context, _ *connect.Request[GetVapidPublicKeyRequest]) (*connect.Response[GetVapidPublicKeyResponse], error) {
	if !s.vapidEnv.Enabled() {
		return nil, cerr.NewError(cerr.FailedPrecondition, "VAPID keys not configured", nil)
	}
	return connect.NewResponse(&GetVapidPublicKeyResponse{PublicKey: s.vapidEnv.PublicKey}), nil
}

// RegisterPushSubscription is idempotent per endpoint: registering a known
// endpoint again refreshes its keys and project filter.
func (s *Server) RegisterPushSubscription(ctx context.Context, req *connect.Request[RegisterPushSubscriptionRequest]) (*connect.Response[RegisterPushSubscriptionResponse], error) {
	m := req.Msg
	switch {
	case m.Endpoint == "":
		return nil, cerr.NewValidationError("endpoint", "ganttguild.push.endpoint", "endpoint is required")
	case m.P256dhKey == "":
		return nil, cerr.NewValidationError("p256dhKey", "ganttguild.push.p256dh_key", "p256dh key is required")
	case m.AuthKey == "":
		return nil, cerr.NewValidationError("authKey", "ganttguild.push.auth_key", "auth key is required")
	}

	now := time.Now()
	existing, err := s.repo.FindByEndpoint(ctx, m.Endpoint)
	switch {
	case err == nil:
		existing.P256dhKey = m.P256dhKey
		existing.AuthKey = m.AuthKey
		existing.ProjectIDs = m.ProjectIDs
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, err
		}
		return connect.NewResponse(&RegisterPushSubscriptionResponse{ID: existing.ID}), nil
	case !cerr.IsCode(err, cerr.NotFound):
		return nil, err
	}

	sub := &pushsubscription.Subscription{
		ID:         ulid.Make().String(),
		Endpoint:   m.Endpoint,
		P256dhKey:  m.P256dhKey,
		AuthKey:    m.AuthKey,
		ProjectIDs: m.ProjectIDs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return connect.NewResponse(&RegisterPushSubscriptionResponse{ID: sub.ID}), nil
}

func (s *Server) UnregisterPushSubscription(ctx context.Context, req *connect.Request[UnregisterPushSubscriptionRequest]) (*connect.Response[UnregisterPushSubscriptionResponse], error) {
	if req.Msg.Endpoint == "" {
		return nil, cerr.NewValidationError("endpoint", "ganttguild.push.endpoint", "endpoint is required")
	}
	if err := s.repo.DeleteByEndpoint(ctx, req.Msg.Endpoint); err != nil {
		return nil, err
	}
	return connect.NewResponse(&UnregisterPushSubscriptionResponse{}), nil
}

func (s *Server) SendTestNotification(ctx context.Context, req *connect.Request[SendTestNotificationRequest]) (*connect.Response[SendTestNotificationResponse], error) {
	sent := s.sender.Send(ctx, req.Msg.ProjectID, &NotificationPayload{
		Title: "GanttGuild Test",
		Body:  "Push notifications are working!",
	})
	return connect.NewResponse(&SendTestNotificationResponse{Sent: sent}), nil
}
