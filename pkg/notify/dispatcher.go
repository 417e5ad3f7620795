// Package notify delivers user notifications over the configured channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jordanlanch/leaddesk/pkg/email"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// Priority of a notification.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Notification is addressed to a single user.
type Notification struct {
	RecipientID string
	Title       string
	Message     string
	Priority    Priority
}

// Notifier sends notifications. Implementations may fail; callers treat delivery as best effort.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Channel delivers to a resolved recipient.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, to *models.User, n Notification) error
}

// UserLookup resolves recipients.
type UserLookup interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// Dispatcher resolves the recipient and fans out to every channel.
type Dispatcher struct {
	users    UserLookup
	channels []Channel
	log      logger.Logger
}

// NewDispatcher creates a dispatcher over channels.
func NewDispatcher(users UserLookup, log logger.Logger, channels ...Channel) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{users: users, channels: channels, log: log}
}

// Send delivers n on every channel. Inactive recipients are skipped.
func (d *Dispatcher) Send(ctx context.Context, n Notification) error {
	to, err := d.users.Get(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", n.RecipientID, err)
	}
	if !to.IsActive {
		d.log.Debug("notification skipped for inactive user", "user_id", to.ID)
		return nil
	}

	var errs []error
	for _, ch := range d.channels {
		if err := ch.Deliver(ctx, to, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// EmailSender is the subset of email.Service used by EmailChannel.
type EmailSender interface {
	Send(ctx context.Context, m email.Message) error
}

// EmailChannel sends notifications by email.
type EmailChannel struct {
	sender EmailSender
}

// NewEmailChannel creates an email channel.
func NewEmailChannel(sender EmailSender) *EmailChannel {
	return &EmailChannel{sender: sender}
}

func (c *EmailChannel) Name() string { return "email" }

// Deliver emails the recipient. Users without an address are skipped.
func (c *EmailChannel) Deliver(ctx context.Context, to *models.User, n Notification) error {
	if to.Email == "" {
		return nil
	}
	subject := n.Title
	if n.Priority == PriorityHigh {
		subject = "[Urgent] " + subject
	}
	return c.sender.Send(ctx, email.Message{
		ToEmail:   to.Email,
		ToName:    to.Name,
		Subject:   subject,
		PlainText: n.Message,
	})
}

// LogChannel records notifications in the application log.
type LogChannel struct {
	log logger.Logger
}

// NewLogChannel creates a log channel.
func NewLogChannel(log logger.Logger) *LogChannel {
	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(_ context.Context, to *models.User, n Notification) error {
	c.log.Info("notification", "user_id", to.ID, "title", n.Title, "priority", string(n.Priority))
	return nil
}

// TeamPoster is the subset of slack.Service used by SlackChannel.
type TeamPoster interface {
	Notify(ctx context.Context, recipient, title, message string, urgent bool) error
}

// SlackChannel mirrors notifications into the team Slack channel.
type SlackChannel struct {
	poster TeamPoster
}

// NewSlackChannel creates a Slack channel.
func NewSlackChannel(poster TeamPoster) *SlackChannel {
	return &SlackChannel{poster: poster}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Deliver(ctx context.Context, to *models.User, n Notification) error {
	return c.poster.Notify(ctx, to.Name, n.Title, n.Message, n.Priority == PriorityHigh)
}
