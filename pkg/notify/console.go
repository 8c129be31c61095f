package notify

import (
	"context"

	"github.com/keyward-io/keyward/pkg/logx"
)

// ConsoleProvider logs email instead of sending it. Local development only.
type ConsoleProvider struct{}

func NewConsoleProvider() *ConsoleProvider { return &ConsoleProvider{} }

func (p *ConsoleProvider) SendEmail(_ context.Context, msg EmailMessage) error {
	logx.WithFields(logx.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.TextBody,
	}).Info("console email")
	return nil
}
