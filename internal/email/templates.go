package email

import "strings"

const welcomeSubject = "Welcome to My App"

const verifySubject = "Account Verification OTP"

const resetSubject = "Password Reset OTP"

const welcomeTextTemplate = "Welcome to My App website. Your account has been created with email id: {{email}}"

const verifyHTMLTemplate = `<div style="font-family:Arial,sans-serif;max-width:480px;margin:0 auto">
  <h2>Verify your account</h2>
  <p>You are trying to verify the account linked to <b>{{email}}</b>.</p>
  <p>Use the following code to complete the verification. It expires in 24 hours.</p>
  <p style="font-size:28px;letter-spacing:6px;font-weight:bold">{{otp}}</p>
</div>`

const resetHTMLTemplate = `<div style="font-family:Arial,sans-serif;max-width:480px;margin:0 auto">
  <h2>Reset your password</h2>
  <p>We received a password reset request for <b>{{email}}</b>.</p>
  <p>Use the following code to proceed. It expires in 15 minutes.</p>
  <p style="font-size:28px;letter-spacing:6px;font-weight:bold">{{otp}}</p>
</div>`

func renderTemplate(tpl, toEmail, code string) string {
	out := strings.ReplaceAll(tpl, "{{email}}", toEmail)
	return strings.ReplaceAll(out, "{{otp}}", code)
}
