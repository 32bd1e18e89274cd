package query

//go:generate mockgen -source=notify.go -destination=mock_notify_test.go -package=query

import (
	"context"
	"log/slog"

	"github.com/phozos/phozos-client/internal/apierr"
)

// Notification is a user-facing error report.
type Notification struct {
	Title   string
	Message string
	Kind    apierr.Kind
}

// Notifier shows notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	l.Logger.WarnContext(ctx, n.Message,
		slog.String("title", n.Title),
		slog.String("kind", string(n.Kind)),
	)
}

// NotificationFor builds the notification for a failed mutation.
func NotificationFor(err error) Notification {
	kind := apierr.KindOf(err)

	return Notification{
		Title:   titleFor(kind),
		Message: UserMessage(err),
		Kind:    kind,
	}
}

func titleFor(kind apierr.Kind) string {
	switch kind {
	case apierr.KindAuth:
		return "Session expired"
	case apierr.KindValidation:
		return "Invalid input"
	case apierr.KindRateLimit:
		return "Too many requests"
	case apierr.KindNetwork:
		return "Connection problem"
	default:
		return "Request failed"
	}
}

// SessionExpiredMessage is shown for every authentication failure.
const SessionExpiredMessage = "Your session has expired. Please log in again."

// UserMessage maps an error to an actionable message. It never changes
// the error's classification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	ae, ok := apierr.As(err)
	if !ok {
		return err.Error()
	}

	switch ae.Kind {
	case apierr.KindAuth:
		return SessionExpiredMessage
	case apierr.KindValidation:
		if ae.Field != "" {
			return ae.Field + ": " + ae.Message
		}

		return ae.Message
	case apierr.KindRateLimit:
		if ae.Hint != "" {
			return ae.Hint
		}

		return ae.Message
	default:
		if ae.Message != "" {
			return ae.Message
		}

		return ae.Error()
	}
}
