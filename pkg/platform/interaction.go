package platform

import (
	"context"
	"errors"
)

type InteractionKind int

const (
	KindCommand InteractionKind = iota + 1
	KindButton
	KindModal
)

// ErrInteractionAcked is returned when a second acknowledgment is attempted
// on the single-use reply slot.
var ErrInteractionAcked = errors.New("interaction already acknowledged")

// Modal is a single-input dialog shown in response to a button.
type Modal struct {
	CustomId string
	Title    string
	Input    ModalInput
}

type ModalInput struct {
	CustomId    string
	Label       string
	Placeholder string
	Value       string
	Required    bool
	MinLength   int
	MaxLength   int
}

// Responder delivers acknowledgments back to the trigger origin. Reply and
// ShowModal consume the origin's single-use slot; Followup uses the separate
// follow-up channel and may be called any number of times afterwards.
type Responder interface {
	Reply(ctx context.Context, content string, embeds []Embed) error
	ShowModal(ctx context.Context, modal *Modal) error
	Followup(ctx context.Context, content string, embeds []Embed) error
}

// Interaction is one inbound trigger: a slash command invocation, a button
// click or a modal submit. The reply slot expires a few seconds after the
// trigger fires, so the first acknowledgment must be sent promptly.
type Interaction struct {
	Id        string
	Kind      InteractionKind
	GuildId   string
	ChannelId string

	ActorId      string
	ActorTag     string
	ActorRoleIds []string

	// Command trigger.
	Command string
	Options map[string]string

	// Button or modal trigger.
	CustomId string
	Fields   map[string]string

	// The message carrying the control row, for button triggers.
	MessageId string

	responder Responder
	acked     bool
}

func NewInteraction(id string, kind InteractionKind, responder Responder) *Interaction {
	return &Interaction{
		Id:        id,
		Kind:      kind,
		Options:   map[string]string{},
		Fields:    map[string]string{},
		responder: responder,
	}
}

func (i *Interaction) Acked() bool {
	return i.acked
}

// Reply sends the one allowed acknowledgment. A second call fails with
// ErrInteractionAcked instead of touching the spent slot.
func (i *Interaction) Reply(ctx context.Context, content string) error {
	if i.acked {
		return ErrInteractionAcked
	}
	i.acked = true
	return i.responder.Reply(ctx, content, nil)
}

// ReplyEmbeds is Reply with rich content attached.
func (i *Interaction) ReplyEmbeds(ctx context.Context, content string, embeds []Embed) error {
	if i.acked {
		return ErrInteractionAcked
	}
	i.acked = true
	return i.responder.Reply(ctx, content, embeds)
}

// ShowModal consumes the reply slot by presenting a dialog instead of text.
func (i *Interaction) ShowModal(ctx context.Context, modal *Modal) error {
	if i.acked {
		return ErrInteractionAcked
	}
	i.acked = true
	return i.responder.ShowModal(ctx, modal)
}

// Followup sends additional content after the slot is spent.
func (i *Interaction) Followup(ctx context.Context, content string, embeds []Embed) error {
	return i.responder.Followup(ctx, content, embeds)
}
