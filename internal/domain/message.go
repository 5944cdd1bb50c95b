package domain

import "time"

type InboundMessage struct {
	Channel     string // platform name, the bus routing key
	ChatID      string
	SenderID    string
	SenderName  string
	DisplayName string
	Content     string
	Timestamp   time.Time
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	Format  string // text | code
	File    *File  // optional upload for oversized output
}
