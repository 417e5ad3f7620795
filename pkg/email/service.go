package email

import (
	"context"
	"fmt"

	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Message is a single outbound email.
type Message struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

// sendFunc delivers a prepared SendGrid message.
type sendFunc func(ctx context.Context, msg *mail.SGMailV3) (*rest.Response, error)

// Service handles email sending
type Service struct {
	fromEmail   string
	fromName    string
	useSendGrid bool
	send        sendFunc
	log         logger.Logger
}

// NewService creates a new email service.
// If sendGridAPIKey is provided, emails will be sent via SendGrid.
// Otherwise, emails will be logged (development mode).
func NewService(fromEmail, fromName, sendGridAPIKey string, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	useSendGrid := sendGridAPIKey != ""
	if useSendGrid {
		log.Info("email service initialized with SendGrid")
	} else {
		log.Warn("email service in console-only mode (set SENDGRID_API_KEY for production)")
	}

	client := sendgrid.NewSendClient(sendGridAPIKey)
	return &Service{
		fromEmail:   fromEmail,
		fromName:    fromName,
		useSendGrid: useSendGrid,
		send: func(ctx context.Context, msg *mail.SGMailV3) (*rest.Response, error) {
			return client.SendWithContext(ctx, msg)
		},
		log: log,
	}
}

// Send delivers a message, or logs it when SendGrid is not configured.
func (s *Service) Send(ctx context.Context, m Message) error {
	if m.ToEmail == "" {
		return fmt.Errorf("email recipient is required")
	}
	if !s.useSendGrid {
		return s.logEmailToConsole(m)
	}
	return s.sendViaSendGrid(ctx, m)
}

func (s *Service) sendViaSendGrid(ctx context.Context, m Message) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(m.ToName, m.ToEmail)

	html := m.HTML
	if html == "" {
		html = "<p>" + m.PlainText + "</p>"
	}
	message := mail.NewSingleEmail(from, m.Subject, to, m.PlainText, html)

	response, err := s.send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}

	s.log.Info("email sent", "to", m.ToEmail, "status", response.StatusCode)
	return nil
}

// logEmailToConsole logs email details (development mode)
func (s *Service) logEmailToConsole(m Message) error {
	s.log.Info("email not sent (development mode)",
		"subject", m.Subject,
		"to", m.ToEmail,
		"from", s.fromEmail,
		"body", m.PlainText,
	)
	return nil
}
