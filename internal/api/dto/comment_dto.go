package dto

import "time"

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Text       string `json:"text"`
	IsInternal bool   `json:"is_internal"`
}

// CommentResponse represents a thread entry. AuthorID is null for system
// comments.
type CommentResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	AuthorID   *string   `json:"author_id"`
	Text       string    `json:"text"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// FeedbackRequest payload.
type FeedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// FeedbackResponse represents a rating.
type FeedbackResponse struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}
