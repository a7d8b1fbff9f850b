package notify

import (
	"context"
	"errors"

	"github.com/hammamikhairi/ottoclock/internal/domain"
)

// Compile-time interface check.
var _ domain.Notifier = Multi(nil)

// Multi delivers every message to all notifiers in order. A failing
// notifier does not stop the others; their errors are joined.
type Multi []domain.Notifier

// Notify sends to every notifier.
func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyUrgent sends to every notifier.
func (m Multi) NotifyUrgent(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyUrgent(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
