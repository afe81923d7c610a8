package mailer

import "fmt"

type template struct {
	subject string
	body    func(params map[string]string) string
}

var templates = map[TemplateKind]template{
	TemplateEmailVerification: {
		subject: "Verify your email address",
		body: func(p map[string]string) string {
			return fmt.Sprintf("<p>Your verification code is <strong>%s</strong>. It expires in %s.</p>",
				p["token"], p["lifetime"])
		},
	},
	TemplateEmailChange: {
		subject: "Confirm your new email address",
		body: func(p map[string]string) string {
			return fmt.Sprintf("<p>Your email change code is <strong>%s</strong>. It expires in %s.</p>",
				p["token"], p["lifetime"])
		},
	},
	TemplatePasswordReset: {
		subject: "Reset your password",
		body: func(p map[string]string) string {
			return fmt.Sprintf("<p>Use this code to reset your password: <strong>%s</strong>. It expires in %s.</p>",
				p["token"], p["lifetime"])
		},
	},
}

func render(kind TemplateKind, params map[string]string) (subject, body string, err error) {
	tpl, ok := templates[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown email template: %s", kind)
	}
	return tpl.subject, tpl.body(params), nil
}
