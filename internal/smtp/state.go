package smtp

// State is the position of a session in the mail transaction.
type State int

const (
	// StateInitial is before HELO/EHLO.
	StateInitial State = iota
	// StateGreeted is after HELO/EHLO, RSET or a completed message.
	StateGreeted
	// StateHaveSender is after an accepted MAIL.
	StateHaveSender
	// StateHaveRecipients is after at least one accepted RCPT.
	StateHaveRecipients
	// StateReceivingData is between the 354 reply and the terminator line.
	StateReceivingData
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateGreeted:
		return "Greeted"
	case StateHaveSender:
		return "HaveSender"
	case StateHaveRecipients:
		return "HaveRecipients"
	case StateReceivingData:
		return "ReceivingData"
	}
	return "Unknown"
}
