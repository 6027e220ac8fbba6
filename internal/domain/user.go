package domain

// User is the subset of the user record the notification core reads.
type User struct {
	UserID       string        `json:"id" dynamodbav:"user_id"`
	Name         string        `json:"name" dynamodbav:"name"`
	Email        string        `json:"email" dynamodbav:"email"`
	Role         string        `json:"role" dynamodbav:"role"`
	SMTPOverride *SMTPOverride `json:"smtp_override,omitempty" dynamodbav:"smtp_override,omitempty"`
}

// SMTPOverride is a user's custom outbound mail server. The password is
// stored sealed and only opened by the mailer.
type SMTPOverride struct {
	Host           string `json:"host" dynamodbav:"host"`
	Port           int    `json:"port" dynamodbav:"port"`
	Username       string `json:"username" dynamodbav:"username"`
	SealedPassword string `json:"-" dynamodbav:"sealed_password"`
	From           string `json:"from" dynamodbav:"from"`
	Secure         bool   `json:"secure" dynamodbav:"secure"`
}

// EmailSettingsRequest sets a user's custom SMTP server.
type EmailSettingsRequest struct {
	Host     string `json:"host" validate:"required,hostname|ip"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	From     string `json:"from" validate:"required,email"`
	Secure   bool   `json:"secure"`
}

// Email is one outbound message handed to the mailer.
type Email struct {
	To       string
	Subject  string
	HTML     string
	Override *SMTPOverride
}
