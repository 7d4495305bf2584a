package domain

import "time"

// ContactBucket is the single partition of the newest-first listing index.
const ContactBucket = "contact"

// ContactMessage is a message submitted through the public contact form.
type ContactMessage struct {
	MessageID string    `json:"id" dynamodbav:"message_id"`
	Name      string    `json:"name" dynamodbav:"name"`
	Email     string    `json:"email" dynamodbav:"email"`
	Message   string    `json:"message" dynamodbav:"message"`
	Bucket    string    `json:"-" dynamodbav:"bucket"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}

// ContactRequest is the public contact form payload.
type ContactRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Message string `json:"message" validate:"required,min=10,max=2000"`
}
