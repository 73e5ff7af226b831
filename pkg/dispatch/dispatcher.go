package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/config"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/platform"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/ticket"
)

// Slash command names routed by the dispatcher.
const (
	CommandTest       = "ticket-test"
	CommandInfo       = "ticket-info"
	CommandRename     = "ticket-rename"
	CommandClose      = "ticket-close"
	CommandTranscript = "ticket-transcript"
	CommandAdd        = "add"
	CommandRemove     = "remove"
)

// Dispatcher routes inbound interactions to the lifecycle engine. It owns
// the staff gate, the creation guard for interactive triggers, and the
// contract that every interaction is acknowledged exactly once.
type Dispatcher struct {
	cfg    *config.Config
	client platform.Client
	store  *ticket.Store
	guard  *ticket.Guard
	engine *ticket.Engine
	logger *zap.SugaredLogger
}

func ProvideDispatcher(cfg *config.Config, client platform.Client, store *ticket.Store, guard *ticket.Guard, engine *ticket.Engine, loggerFactory *infra.LoggerFactory) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		client: client,
		store:  store,
		guard:  guard,
		engine: engine,
		logger: loggerFactory.Create("Dispatcher").Sugar(),
	}
}

// Handle is the single entry point for gateway interactions. Panics from
// any handler are funneled into a generic acknowledgment so one bad trigger
// cannot take down the session, and no trigger is left hanging unacked.
func (d *Dispatcher) Handle(ctx context.Context, interaction *platform.Interaction) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("handler panicked kind[%v] id[%v] %v", interaction.Kind, interaction.Id, r)
			d.ack(ctx, interaction, "⚠️ Something went wrong handling that. Please try again.")
		}
	}()

	switch interaction.Kind {
	case platform.KindCommand:
		d.handleCommand(ctx, interaction)
	case platform.KindButton:
		d.handleButton(ctx, interaction)
	case platform.KindModal:
		d.handleModal(ctx, interaction)
	default:
		d.logger.Warnf("unknown interaction kind[%v] id[%v]", interaction.Kind, interaction.Id)
		d.ack(ctx, interaction, "Unsupported interaction.")
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, interaction *platform.Interaction) {
	// The test command is deliberately open to everyone so applicants can
	// verify the bot end to end without staff roles.
	if interaction.Command == CommandTest {
		d.createFromCommand(ctx, interaction)
		return
	}

	if !d.cfg.IsStaff(interaction.ActorRoleIds) {
		d.logger.Infof("non-staff actor[%v] blocked from command[%v]", interaction.ActorId, interaction.Command)
		d.ack(ctx, interaction, "⛔ You need a staff role to use this command.")
		return
	}

	switch interaction.Command {
	case CommandInfo:
		d.commandInfo(ctx, interaction)
	case CommandRename:
		d.commandRename(ctx, interaction)
	case CommandClose:
		d.commandClose(ctx, interaction)
	case CommandTranscript:
		d.commandTranscript(ctx, interaction)
	case CommandAdd:
		d.commandMember(ctx, interaction, true)
	case CommandRemove:
		d.commandMember(ctx, interaction, false)
	default:
		d.logger.Warnf("unknown command[%v] actor[%v]", interaction.Command, interaction.ActorId)
		d.ack(ctx, interaction, "Unknown command.")
	}
}

// createFromCommand runs the guarded creation path for the test command.
// The interaction is acknowledged before the channel provisioning starts,
// then the result arrives as a follow-up.
func (d *Dispatcher) createFromCommand(ctx context.Context, interaction *platform.Interaction) {
	charName := interaction.Options["char_name"]
	if charName == "" {
		charName = "Test Applicant"
	}

	key := ticket.GuardKey("slash", interaction.GuildId, interaction.ActorId, charName)
	admission := d.guard.Admit(key, d.cfg.InteractiveCooldown())
	if !admission.Allowed {
		d.ack(ctx, interaction, rejectionText(admission))
		return
	}

	defer d.guard.Release(key)

	if err := interaction.Reply(ctx, "🎫 Creating your ticket…"); err != nil {
		// The slot is gone; creating a channel nobody gets linked to would
		// just leak it.
		d.logger.Errorf("create ack failed id[%v] %v", interaction.Id, err)
		return
	}

	result, err := d.engine.Create(ctx, &ticket.CreateRequest{
		ApplicantId:  interaction.ActorId,
		ApplicantTag: interaction.ActorTag,
		Form: &ticket.ApplicationForm{
			CharName:   charName,
			DiscordTag: interaction.ActorTag,
			Motivation: "Test ticket created via slash command.",
		},
	})
	if err != nil {
		d.logger.Errorf("creation failed actor[%v] %v", interaction.ActorId, err)
		d.followup(ctx, interaction, "⚠️ Ticket creation failed. Please try again later.")
		return
	}
	d.followup(ctx, interaction, fmt.Sprintf("✅ Ticket %v created: %v", result.CaseId, result.Url))
}

func (d *Dispatcher) commandInfo(ctx context.Context, interaction *platform.Interaction) {
	channel, record, ok := d.resolveTicket(ctx, interaction)
	if !ok {
		return
	}

	embed, err := d.engine.Info(channel, record)
	if err != nil {
		d.ack(ctx, interaction, "This channel is not a ticket.")
		return
	}
	if err := interaction.ReplyEmbeds(ctx, "", []platform.Embed{embed}); err != nil {
		d.logger.Errorf("info reply failed id[%v] %v", interaction.Id, err)
	}
}

func (d *Dispatcher) commandRename(ctx context.Context, interaction *platform.Interaction) {
	channel, record, ok := d.resolveTicket(ctx, interaction)
	if !ok {
		return
	}

	rawName := interaction.Options["name"]
	if rawName == "" {
		d.ack(ctx, interaction, "Provide the new channel name.")
		return
	}

	sanitized, err := d.engine.Rename(ctx, channel, record, interaction.ActorId, rawName)
	if err != nil {
		d.logger.Errorf("rename failed channel[%v] %v", channel.Id, err)
		d.ack(ctx, interaction, "⚠️ Rename failed. Please try again.")
		return
	}
	d.ack(ctx, interaction, fmt.Sprintf("✏️ Channel renamed to `%v`.", sanitized))
}

func (d *Dispatcher) commandClose(ctx context.Context, interaction *platform.Interaction) {
	channel, record, ok := d.resolveTicket(ctx, interaction)
	if !ok {
		return
	}
	d.close(ctx, interaction, channel, record)
}

func (d *Dispatcher) commandTranscript(ctx context.Context, interaction *platform.Interaction) {
	channel, record, ok := d.resolveTicket(ctx, interaction)
	if !ok {
		return
	}

	// Rendering can take a while on long channels; ack first.
	if err := interaction.Reply(ctx, "📄 Rendering transcript…"); err != nil {
		d.logger.Errorf("transcript ack failed id[%v] %v", interaction.Id, err)
		return
	}
	if err := d.engine.PostTranscript(ctx, channel, record); err != nil {
		d.logger.Errorf("transcript failed channel[%v] %v", channel.Id, err)
		d.followup(ctx, interaction, "⚠️ Transcript rendering hit a problem; a partial export may have been posted.")
	}
}

func (d *Dispatcher) commandMember(ctx context.Context, interaction *platform.Interaction, add bool) {
	channel, record, ok := d.resolveTicket(ctx, interaction)
	if !ok {
		return
	}

	userId := interaction.Options["user"]
	if userId == "" {
		d.ack(ctx, interaction, "Provide the user to update.")
		return
	}

	var err error
	var verb string
	if add {
		err = d.engine.AddMember(ctx, channel.Id, record, userId, interaction.ActorId)
		verb = "added to"
	} else {
		err = d.engine.RemoveMember(ctx, channel.Id, record, userId, interaction.ActorId)
		verb = "removed from"
	}
	if err != nil {
		d.logger.Errorf("member update failed channel[%v] user[%v] %v", channel.Id, userId, err)
		d.ack(ctx, interaction, "⚠️ Could not update channel access.")
		return
	}
	d.ack(ctx, interaction, fmt.Sprintf("✅ <@%v> %v the ticket.", userId, verb))
}

func (d *Dispatcher) handleButton(ctx context.Context, interaction *platform.Interaction) {
	if !d.cfg.IsStaff(interaction.ActorRoleIds) {
		d.logger.Infof("non-staff actor[%v] blocked from button[%v]", interaction.ActorId, interaction.CustomId)
		d.ack(ctx, interaction, "⛔ Only staff can operate ticket controls.")
		return
	}

	channel, record, ok := d.resolveTicket(ctx, interaction)
	if !ok {
		return
	}

	switch interaction.CustomId {
	case ticket.ButtonClaim:
		d.claim(ctx, interaction, channel, record)

	case ticket.ButtonRename:
		modal := &platform.Modal{
			CustomId: ticket.ModalRename,
			Title:    "Rename Ticket Channel",
			Input: platform.ModalInput{
				CustomId:    ticket.ModalRenameInput,
				Label:       "New channel name",
				Placeholder: "e.g. whitelist-john-doe",
				Value:       channel.Name,
				Required:    true,
				MinLength:   1,
				MaxLength:   100,
			},
		}
		if err := interaction.ShowModal(ctx, modal); err != nil {
			d.logger.Errorf("modal failed id[%v] %v", interaction.Id, err)
		}

	case ticket.ButtonClose:
		d.close(ctx, interaction, channel, record)

	default:
		// Unknown controls still get acked so the click does not hang.
		d.logger.Warnf("unknown button[%v] channel[%v]", interaction.CustomId, channel.Id)
		d.ack(ctx, interaction, "Unknown control.")
	}
}

func (d *Dispatcher) handleModal(ctx context.Context, interaction *platform.Interaction) {
	if !d.cfg.IsStaff(interaction.ActorRoleIds) {
		d.ack(ctx, interaction, "⛔ Only staff can operate ticket controls.")
		return
	}

	channel, record, ok := d.resolveTicket(ctx, interaction)
	if !ok {
		return
	}

	switch interaction.CustomId {
	case ticket.ModalRename:
		rawName := interaction.Fields[ticket.ModalRenameInput]
		sanitized, err := d.engine.Rename(ctx, channel, record, interaction.ActorId, rawName)
		if err != nil {
			d.logger.Errorf("rename failed channel[%v] %v", channel.Id, err)
			d.ack(ctx, interaction, "⚠️ Rename failed. Please try again.")
			return
		}
		d.ack(ctx, interaction, fmt.Sprintf("✏️ Channel renamed to `%v`.", sanitized))

	default:
		d.logger.Warnf("unknown modal[%v] channel[%v]", interaction.CustomId, channel.Id)
		d.ack(ctx, interaction, "Unknown dialog.")
	}
}

func (d *Dispatcher) claim(ctx context.Context, interaction *platform.Interaction, channel *platform.Channel, record *ticket.Record) {
	err := d.engine.Claim(channel.Id, record, interaction.ActorId)
	switch {
	case errors.Is(err, ticket.ErrAlreadyClaimed):
		d.ack(ctx, interaction, fmt.Sprintf("This ticket is already claimed by <@%v>.", record.ClaimedBy))
	case errors.Is(err, ticket.ErrAlreadyClosed):
		d.ack(ctx, interaction, "This ticket is already closed.")
	case err != nil:
		d.logger.Errorf("claim failed channel[%v] %v", channel.Id, err)
		d.ack(ctx, interaction, "⚠️ Claim failed. Please try again.")
	default:
		d.ack(ctx, interaction, "🎯 Ticket claimed. It's yours now.")
	}
}

func (d *Dispatcher) close(ctx context.Context, interaction *platform.Interaction, channel *platform.Channel, record *ticket.Record) {
	err := d.engine.Close(channel, record, interaction.ActorId)
	switch {
	case errors.Is(err, ticket.ErrAlreadyClosed):
		d.ack(ctx, interaction, "This ticket is already closed.")
	case err != nil:
		d.logger.Errorf("close failed channel[%v] %v", channel.Id, err)
		d.ack(ctx, interaction, "⚠️ Close failed. Please try again.")
	default:
		d.ack(ctx, interaction, "🔒 Ticket closed. Archiving the transcript now.")
	}
}

// resolveTicket loads the channel and its metadata, acking with a friendly
// refusal when the channel is not a ticket. All ticket-scoped operations go
// through here so the not-a-ticket check cannot be bypassed.
func (d *Dispatcher) resolveTicket(ctx context.Context, interaction *platform.Interaction) (*platform.Channel, *ticket.Record, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	channel, err := d.client.FetchChannel(fetchCtx, interaction.ChannelId)
	if err != nil {
		d.logger.Errorf("channel fetch failed channel[%v] %v", interaction.ChannelId, err)
		d.ack(ctx, interaction, "⚠️ Could not load this channel. Please try again.")
		return nil, nil, false
	}

	record := d.store.Resolve(ctx, channel)
	if !record.IsTicket() {
		d.ack(ctx, interaction, "This channel is not a ticket.")
		return nil, nil, false
	}
	return channel, record, true
}

// ack spends the reply slot if it is still available, otherwise falls back
// to the follow-up channel. Either way the actor sees a response.
func (d *Dispatcher) ack(ctx context.Context, interaction *platform.Interaction, content string) {
	err := interaction.Reply(ctx, content)
	if errors.Is(err, platform.ErrInteractionAcked) {
		err = interaction.Followup(ctx, content, nil)
	}
	if err != nil {
		d.logger.Errorf("ack failed id[%v] %v", interaction.Id, err)
	}
}

func (d *Dispatcher) followup(ctx context.Context, interaction *platform.Interaction, content string) {
	if err := interaction.Followup(ctx, content, nil); err != nil {
		d.logger.Errorf("followup failed id[%v] %v", interaction.Id, err)
	}
}

func rejectionText(admission ticket.Admission) string {
	switch admission.Reason {
	case ticket.ReasonInflight:
		return "⏳ Your ticket is already being created, hang on."
	case ticket.ReasonRecent:
		return fmt.Sprintf("🕒 You just created a ticket. Try again in %vs.", admission.RetryAfterSeconds)
	default:
		return "⏳ Please try again in a moment."
	}
}
