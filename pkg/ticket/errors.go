package ticket

import "errors"

var (
	// ErrNotTicket rejects operations on channels that carry no ticket.
	ErrNotTicket = errors.New("channel is not a valid ticket")

	ErrAlreadyClaimed = errors.New("ticket is already claimed")
	ErrAlreadyClosed  = errors.New("ticket is already closed")
)
