package mailer

import "context"

// TemplateKind identifies an outbound email template
type TemplateKind string

const (
	TemplateEmailVerification TemplateKind = "email_verification"
	TemplateEmailChange       TemplateKind = "email_change"
	TemplatePasswordReset     TemplateKind = "password_reset"
)

// Dispatcher sends templated emails. Delivery is fire-and-forget from the
// caller's perspective: failures are logged by the implementation and never
// roll back the transaction that triggered the send.
type Dispatcher interface {
	Send(ctx context.Context, toEmail string, kind TemplateKind, params map[string]string) error
}
