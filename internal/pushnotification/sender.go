// Package pushnotification tells browser subscribers when a project's
// schedule breaks: a pass fails structurally or the number of constraint
// conflicts rises.
package pushnotification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/kazz187/ganttguild/internal/config"
	"github.com/kazz187/ganttguild/internal/pushsubscription"
	"github.com/kazz187/ganttguild/pkg/clog"
)

const ttlSeconds = 86400

type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
	// Urgent notifications are delivered even to devices saving battery.
	Urgent bool `json:"-"`
}

type Sender struct {
	vapidEnv   *config.VAPIDEnv
	repo       pushsubscription.Repository
	httpClient webpush.HTTPClient
}

func NewSender(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository) *Sender {
	return &Sender{
		vapidEnv:   vapidEnv,
		repo:       repo,
		httpClient: http.DefaultClient,
	}
}

// Send delivers payload to every subscriber following projectID and returns
// the number of accepted deliveries. An empty projectID reaches everyone.
func (s *Sender) Send(ctx context.Context, projectID string, payload *NotificationPayload) int {
	if !s.vapidEnv.Enabled() {
		slog.WarnContext(ctx, "push notification: VAPID keys not configured, skipping")
		return 0
	}

	subs, err := s.repo.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to list subscriptions", clog.ErrorAttributeKey, err)
		return 0
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to marshal payload", clog.ErrorAttributeKey, err)
		return 0
	}

	urgency := webpush.UrgencyNormal
	if payload.Urgent {
		urgency = webpush.UrgencyHigh
	}
	sent := 0
	for _, sub := range subs {
		if !sub.Follows(projectID) {
			continue
		}
		if s.sendToSubscription(ctx, sub, data, urgency) {
			sent++
		}
	}
	return sent
}

func (s *Sender) sendToSubscription(ctx context.Context, sub *pushsubscription.Subscription, data []byte, urgency webpush.Urgency) bool {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, wpSub, &webpush.Options{
		HTTPClient:      s.httpClient,
		VAPIDPublicKey:  s.vapidEnv.PublicKey,
		VAPIDPrivateKey: s.vapidEnv.PrivateKey,
		Subscriber:      s.vapidEnv.Contact,
		TTL:             ttlSeconds,
		Urgency:         urgency,
	})
	if err != nil {
		slog.ErrorContext(ctx, "push notification: failed to send", "endpoint", sub.Endpoint, clog.ErrorAttributeKey, err)
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		slog.InfoContext(ctx, "push notification: subscription expired, removing", "endpoint", sub.Endpoint)
		if err := s.repo.Delete(ctx, sub.ID); err != nil {
			slog.ErrorContext(ctx, "push notification: failed to delete expired subscription", "id", sub.ID, clog.ErrorAttributeKey, err)
		}
		return false
	case resp.StatusCode >= 400:
		slog.WarnContext(ctx, "push notification: unexpected status", "endpoint", sub.Endpoint, "status", resp.StatusCode)
		return false
	}
	return true
}
