package ticket

import (
	"regexp"
	"strings"
	"time"

	"github.com/labstack/gommon/random"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/platform"
)

type Status string

const (
	StatusOpen    Status = "open"
	StatusClaimed Status = "claimed"
	StatusClosed  Status = "closed"
)

// Record is the authoritative per-ticket state, keyed by channel id in the
// Store. A record whose CaseId is empty is not a ticket.
type Record struct {
	CaseId      string
	ApplicantId string
	CreatedAt   time.Time

	ClaimedBy string
	ClaimedAt time.Time

	ClosedBy string
	ClosedAt time.Time

	RenamedBy    string
	RenamedAt    time.Time
	OriginalName string

	Status Status

	// Message carrying the application summary and the control row.
	AnnouncementId string
}

func (r *Record) IsTicket() bool {
	return r.CaseId != ""
}

// Case ids use an alphabet without visually confusable characters
// (no I, O, 0, 1) so staff can read them out loud without ambiguity.
const caseAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func MakeCaseId() string {
	return "#T-" + random.String(8, caseAlphabet)
}

// Control identifiers, matched 1:1 by the dispatcher.
const (
	ButtonClaim  = "ticket_claim"
	ButtonRename = "ticket_rename"
	ButtonClose  = "ticket_close"

	ModalRename      = "ticket_rename_modal"
	ModalRenameInput = "new_channel_name"
)

// Buttons derives the control row from the lifecycle state. It is
// recomputed on every render and never persisted.
func Buttons(claimed, closed bool) []platform.Button {
	var row []platform.Button

	if !closed {
		claim := platform.Button{CustomId: ButtonClaim, Label: "Claim", Style: platform.ButtonSuccess, Emoji: "🎯"}
		if claimed {
			claim.Label = "Claimed"
			claim.Style = platform.ButtonSecondary
			claim.Emoji = "✅"
			claim.Disabled = true
		}
		row = append(row, claim)
		row = append(row, platform.Button{CustomId: ButtonRename, Label: "Rename", Style: platform.ButtonPrimary, Emoji: "✏️"})
	}

	closeButton := platform.Button{CustomId: ButtonClose, Label: "Close", Style: platform.ButtonDanger, Emoji: "🔒"}
	if closed {
		closeButton.Label = "Closed"
		closeButton.Style = platform.ButtonSecondary
		closeButton.Disabled = true
	}
	return append(row, closeButton)
}

const (
	// Ticket channels are named ChannelPrefix + sanitized character name +
	// short disambiguating suffix; closing prepends ClosedPrefix.
	ChannelPrefix = "whitelist-"
	ClosedPrefix  = "closed-"

	// Platform limit on channel name length.
	maxChannelNameLen = 100

	fallbackChannelName = "ticket"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	invalidChars  = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRun     = regexp.MustCompile(`-{2,}`)
)

// SanitizeChannelName normalizes applicant-supplied text into a valid
// channel name. Malformed input is repaired, never rejected.
func SanitizeChannelName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = whitespaceRun.ReplaceAllString(name, "-")
	name = invalidChars.ReplaceAllString(name, "-")
	name = hyphenRun.ReplaceAllString(name, "-")
	if len(name) > maxChannelNameLen {
		name = name[:maxChannelNameLen]
	}
	if name == "" {
		return fallbackChannelName
	}
	return name
}
