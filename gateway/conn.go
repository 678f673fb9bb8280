package gateway

import (
	"context"
	"fmt"

	"github.com/botlabs-gg/dshardrelay/resume"
)

type ShardID struct {
	Number int
	Total  int
}

func (s ShardID) String() string {
	return fmt.Sprintf("[%d/%d]", s.Number, s.Total)
}

// CloseCode decides what happens to the session when a connection is closed
type CloseCode int

const (
	// CloseNormal discards the session, the next connection will identify
	CloseNormal CloseCode = iota
	// CloseResume keeps the session so the next connection can resume it
	CloseResume
)

func (c CloseCode) String() string {
	if c == CloseResume {
		return "resume"
	}

	return "normal"
}

// Message is one item received from a connection, exactly one of Event, Closed and Err is set
type Message struct {
	Event  *Event
	Closed bool
	Err    error
}

// Conn is a single gateway connection (one generation of a shard)
type Conn interface {
	ShardID() ShardID

	// Messages is closed after the close confirmation has been delivered
	Messages() <-chan Message

	// Close starts closing the connection, it does not block, a Message with Closed set follows once done
	Close(code CloseCode)

	// ResumeInfo returns the current session, empty if there is nothing to resume
	ResumeInfo() resume.Info
}

// DialFunc opens a new connection for a shard, resuming info if it's not empty
type DialFunc func(ctx context.Context, shard ShardID, info resume.Info) (Conn, error)
