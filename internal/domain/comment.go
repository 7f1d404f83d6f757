package domain

import "time"

// Comment is a message on a ticket thread. A nil AuthorID marks a
// system-authored comment.
type Comment struct {
	ID         string
	TicketID   string
	AuthorID   *string
	Text       string
	IsInternal bool
	CreatedAt  time.Time
}

// VisibleTo reports whether the comment may be shown to a principal.
func (c *Comment) VisibleTo(p Principal) bool {
	return !c.IsInternal || p.Role != RoleClient
}
