package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/logger"
)

// Compile-time interface check.
var _ domain.Notifier = (*PushNotifier)(nil)

// Payload is the JSON body delivered to the browser service worker.
type Payload struct {
	Title              string `json:"title"`
	Body               string `json:"body"`
	Tag                string `json:"tag,omitempty"`
	RequireInteraction bool   `json:"requireInteraction,omitempty"`
}

// VAPID holds the application server keys.
type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subject    string // mailto: or https: contact
}

// sendFunc matches webpush.SendNotificationWithContext.
type sendFunc func(ctx context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// PushNotifier sends notifications to every stored browser subscription.
// Subscriptions the push service reports as gone are removed.
type PushNotifier struct {
	subs  domain.SubscriptionStore
	vapid VAPID
	log   *logger.Logger
	send  sendFunc
}

// NewPushNotifier creates a web push notifier.
func NewPushNotifier(subs domain.SubscriptionStore, vapid VAPID, log *logger.Logger) *PushNotifier {
	return &PushNotifier{
		subs:  subs,
		vapid: vapid,
		log:   log,
		send:  webpush.SendNotificationWithContext,
	}
}

// Notify pushes a normal message.
func (p *PushNotifier) Notify(ctx context.Context, message string) error {
	return p.push(ctx, Payload{Title: "ottoclock", Body: message, Tag: "ottoclock"})
}

// NotifyUrgent pushes a message that stays on screen until dismissed.
func (p *PushNotifier) NotifyUrgent(ctx context.Context, message string) error {
	return p.push(ctx, Payload{Title: "ottoclock", Body: message, Tag: "ottoclock-urgent", RequireInteraction: true})
}

func (p *PushNotifier) options() *webpush.Options {
	return &webpush.Options{
		Subscriber:      p.vapid.Subject,
		VAPIDPublicKey:  p.vapid.PublicKey,
		VAPIDPrivateKey: p.vapid.PrivateKey,
		TTL:             60,
		Urgency:         webpush.UrgencyHigh,
	}
}

func (p *PushNotifier) push(ctx context.Context, payload Payload) error {
	subs, err := p.subs.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("listing push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		p.log.Debug("push: no subscriptions, skipping")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding push payload: %w", err)
	}

	opts := p.options()
	sent, failed := 0, 0
	for _, sub := range subs {
		if err := p.sendOne(ctx, body, sub, opts); err != nil {
			p.log.Warn("push to %s: %v", shortEndpoint(sub.Endpoint), err)
			failed++
			continue
		}
		sent++
	}

	p.log.Debug("push summary: subscriptions=%d sent=%d failed=%d", len(subs), sent, failed)
	if sent == 0 {
		return fmt.Errorf("push failed for all %d subscriptions", failed)
	}
	return nil
}

func (p *PushNotifier) sendOne(ctx context.Context, body []byte, sub domain.PushSubscription, opts *webpush.Options) error {
	resp, err := p.send(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		p.prune(ctx, sub.Endpoint, "expired")
		return fmt.Errorf("subscription expired (%d)", resp.StatusCode)
	case resp.StatusCode == http.StatusForbidden:
		// Keys changed since the browser subscribed; it must subscribe again.
		p.prune(ctx, sub.Endpoint, "VAPID mismatch")
		return fmt.Errorf("forbidden (%d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (p *PushNotifier) prune(ctx context.Context, endpoint, why string) {
	if err := p.subs.DeleteSubscription(ctx, endpoint); err != nil && !errors.Is(err, domain.ErrNotFound) {
		p.log.Error("removing subscription %s: %v", shortEndpoint(endpoint), err)
		return
	}
	p.log.Info("removed subscription %s (%s)", shortEndpoint(endpoint), why)
}

func shortEndpoint(e string) string {
	if len(e) > 48 {
		return e[:48] + "..."
	}
	return e
}

// ReadSubscriptionFile parses a browser PushSubscription JSON document
// ({"endpoint": ..., "keys": {"p256dh": ..., "auth": ...}}).
func ReadSubscriptionFile(path string) (domain.PushSubscription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.PushSubscription{}, fmt.Errorf("reading subscription: %w", err)
	}
	var s webpush.Subscription
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.PushSubscription{}, fmt.Errorf("decoding subscription %s: %w", path, err)
	}
	sub := domain.PushSubscription{Endpoint: s.Endpoint, P256dh: s.Keys.P256dh, Auth: s.Keys.Auth}
	if sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
		return domain.PushSubscription{}, &domain.ValidationError{Field: "subscription", Reason: "endpoint and keys are required"}
	}
	return sub, nil
}
