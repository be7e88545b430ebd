package domain

import "time"

// Message captures one entry in a ticket conversation. AuthorID is nil for
// bot-generated replies.
type Message struct {
	ID           int64
	TicketID     int64
	AuthorID     *int64
	Body         string
	Internal     bool
	BotGenerated bool
	CreatedAt    time.Time
}
