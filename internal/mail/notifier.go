// Package mail defines the delivery collaborator consumed by the signup flow.
// Template rendering and transport details are deliberately thin: the auth
// core only depends on whether a message could be handed off.
package mail

import "context"

// TemplateVerificationMail carries the signup OTP.
const TemplateVerificationMail = "verification_mail"

// Fields holds the rendered values a template needs.
type Fields map[string]string

// Notifier delivers a templated message to a recipient. A non-nil error means
// the message was not sent and the calling flow must abort.
type Notifier interface {
	Deliver(ctx context.Context, template, to string, fields Fields) error
}
