package services

import (
	"context"
	"encoding/json"
	"fmt"
	"html"

	"github.com/resend/resend-go/v2"

	"github.com/HammerMeetNail/oasis/internal/logging"
)

// ProximityAlert tells a recipient that one of their friends is close by.
type ProximityAlert struct {
	RecipientID    string  `json:"recipientId"`
	RecipientName  string  `json:"recipientName"`
	RecipientEmail *string `json:"-"`
	SenderID       string  `json:"senderId"`
	SenderName     string  `json:"senderName"`
	DistanceKm     float64 `json:"distanceKm"`
}

func (a ProximityAlert) Title() string {
	return a.SenderName + " is nearby!"
}

func (a ProximityAlert) Body() string {
	return fmt.Sprintf("%s is %s away from you", a.SenderName, FormatDistance(a.DistanceKm))
}

// Notifier delivers proximity alerts.
type Notifier interface {
	NotifyProximity(ctx context.Context, alert ProximityAlert) error
}

// ConsoleNotifier logs alerts instead of delivering them.
type ConsoleNotifier struct {
	logger *logging.Logger
}

func NewConsoleNotifier(logger *logging.Logger) *ConsoleNotifier {
	if logger == nil {
		logger = logging.Default
	}
	return &ConsoleNotifier{logger: logger}
}

func (n *ConsoleNotifier) NotifyProximity(ctx context.Context, alert ProximityAlert) error {
	n.logger.Info("Proximity alert", map[string]interface{}{
		"recipient_id": alert.RecipientID,
		"sender_id":    alert.SenderID,
		"title":        alert.Title(),
		"body":         alert.Body(),
	})
	return nil
}

type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes alerts as JSON for a push gateway to deliver.
type NATSNotifier struct {
	publisher natsPublisher
	subject   string
}

func NewNATSNotifier(publisher natsPublisher, subject string) *NATSNotifier {
	return &NATSNotifier{publisher: publisher, subject: subject}
}

type pushMessage struct {
	ProximityAlert
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (n *NATSNotifier) NotifyProximity(ctx context.Context, alert ProximityAlert) error {
	data, err := json.Marshal(pushMessage{ProximityAlert: alert, Title: alert.Title(), Body: alert.Body()})
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}
	if err := n.publisher.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish push message: %w", err)
	}
	return nil
}

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// EmailNotifier mails alerts through Resend. Recipients without an address
// are skipped.
type EmailNotifier struct {
	sender emailSender
	from   string
}

func NewEmailNotifier(apiKey, fromAddress, fromName string) *EmailNotifier {
	client := resend.NewClient(apiKey)
	return &EmailNotifier{
		sender: client.Emails,
		from:   fmt.Sprintf("%s <%s>", fromName, fromAddress),
	}
}

func (n *EmailNotifier) NotifyProximity(ctx context.Context, alert ProximityAlert) error {
	if alert.RecipientEmail == nil || *alert.RecipientEmail == "" {
		return nil
	}

	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{*alert.RecipientEmail},
		Subject: alert.Title(),
		Html:    fmt.Sprintf("<p>Hi %s,</p><p>%s.</p>", html.EscapeString(alert.RecipientName), html.EscapeString(alert.Body())),
		Text:    fmt.Sprintf("Hi %s,\n\n%s.\n", alert.RecipientName, alert.Body()),
	}
	if _, err := n.sender.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
