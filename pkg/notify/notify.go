// Package notify sends transactional email. The reset flow depends only on
// the EmailSender interface; SES and a console printer are provided.
package notify

import (
	"bytes"
	"context"
	"sync"
	"text/template"

	"github.com/keyward-io/keyward/pkg/errx"
)

var registry = errx.NewRegistry("NOTIFY")

var (
	CodeInvalidMessage = registry.Register("INVALID_MESSAGE", errx.TypeValidation, 400, "Invalid email message")
	CodeSendFailed     = registry.Register("SEND_FAILED", errx.TypeExternal, 502, "Failed to send email")
	CodeBadTemplate    = registry.Register("BAD_TEMPLATE", errx.TypeInternal, 500, "Email template error")
)

// EmailMessage is a single outbound email.
type EmailMessage struct {
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// Client routes email through a provider and renders named templates.
type Client struct {
	provider EmailSender

	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewClient creates a notification client on top of a provider.
func NewClient(provider EmailSender) *Client {
	return &Client{
		provider:  provider,
		templates: make(map[string]*template.Template),
	}
}

// SendEmail validates and sends an email through the provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage) error {
	if len(msg.To) == 0 {
		return registry.New(CodeInvalidMessage).WithDetail("reason", "no recipients")
	}
	if msg.Subject == "" {
		return registry.New(CodeInvalidMessage).WithDetail("reason", "empty subject")
	}
	return c.provider.SendEmail(ctx, msg)
}

// RegisterTemplate parses and stores a named body template.
func (c *Client) RegisterTemplate(name, body string) error {
	tmpl, err := template.New(name).Parse(body)
	if err != nil {
		return registry.NewWithCause(CodeBadTemplate, err).WithDetail("template", name)
	}
	c.mu.Lock()
	c.templates[name] = tmpl
	c.mu.Unlock()
	return nil
}

// SendTemplated renders a registered template into the text body and sends.
func (c *Client) SendTemplated(ctx context.Context, templateName string, data any, msg EmailMessage) error {
	c.mu.RLock()
	tmpl, ok := c.templates[templateName]
	c.mu.RUnlock()
	if !ok {
		return registry.New(CodeBadTemplate).WithDetail("template", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return registry.NewWithCause(CodeBadTemplate, err).WithDetail("template", templateName)
	}

	msg.TextBody = buf.String()
	return c.SendEmail(ctx, msg)
}
