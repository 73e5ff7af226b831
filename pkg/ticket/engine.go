package ticket

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/config"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/platform"
)

const (
	memberPerms = platform.PermViewChannel | platform.PermSendMessages | platform.PermReadHistory
	botPerms    = memberPerms | platform.PermManageChannels

	// Deadline for the deferred follow-through after a state transition
	// (button re-render, notices, archival, delayed deletion).
	followThroughTimeout = 5 * time.Minute

	colorSuccess = 0x00FF88
	colorDanger  = 0xFF4444
	colorNotice  = 0xFFA500
)

// Engine owns the ticket lifecycle. Every transition commits its metadata
// mutation synchronously through the Store before any network step, so a
// crash mid-transition loses presentation, never state.
type Engine struct {
	cfg      *config.Config
	client   platform.Client
	store    *Store
	archiver *Archiver
	tasks    *Tasks
	logger   *zap.SugaredLogger
}

func ProvideEngine(cfg *config.Config, client platform.Client, store *Store, archiver *Archiver, tasks *Tasks, loggerFactory *infra.LoggerFactory) *Engine {
	return &Engine{
		cfg:      cfg,
		client:   client,
		store:    store,
		archiver: archiver,
		tasks:    tasks,
		logger:   loggerFactory.Create("TicketEngine").Sugar(),
	}
}

type CreateRequest struct {
	ApplicantId  string
	ApplicantTag string
	Form         *ApplicationForm
}

type CreateResult struct {
	ChannelId string
	CaseId    string
	Url       string
}

// Create provisions a ticket channel with its permission overwrites,
// commits the metadata record, and posts the application summary with the
// control row. Channel creation and the metadata commit are load-bearing;
// the announcement and staff ping are best-effort.
func (e *Engine) Create(ctx context.Context, request *CreateRequest) (*CreateResult, error) {
	form := request.Form
	caseId := MakeCaseId()

	safeName := SanitizeChannelName(form.CharName)
	if len(safeName) > 20 {
		safeName = strings.Trim(safeName[:20], "-")
	}
	channelName := ChannelPrefix + safeName + "-" + shortSuffix(form.WebsiteTicketId, request.ApplicantId)

	overwrites := []platform.Overwrite{
		// The guild id doubles as the @everyone role id.
		{TargetId: e.cfg.GuildId, Deny: platform.PermViewChannel},
	}
	if botId := e.cfg.BotUserId(); botId != "" {
		overwrites = append(overwrites, platform.Overwrite{TargetId: botId, Allow: botPerms})
	}
	for _, roleId := range e.cfg.StaffRoleIds {
		overwrites = append(overwrites, platform.Overwrite{TargetId: roleId, Allow: memberPerms})
	}
	if request.ApplicantId != "" {
		overwrites = append(overwrites, platform.Overwrite{TargetId: request.ApplicantId, Allow: memberPerms})
	}

	channel, err := e.client.CreateChannel(ctx, e.cfg.GuildId, &platform.CreateChannelRequest{
		Name:       channelName,
		ParentId:   e.resolveParent(ctx),
		Overwrites: overwrites,
		Reason:     fmt.Sprintf("Whitelist ticket %v for %v", caseId, applicantLabel(request)),
	})
	if err != nil {
		return nil, fmt.Errorf("create ticket channel: %w", err)
	}

	record := &Record{
		CaseId:      caseId,
		ApplicantId: request.ApplicantId,
		CreatedAt:   time.Now(),
		Status:      StatusOpen,
	}
	e.store.Set(channel.Id, record)

	if sent, err := e.client.SendMessage(ctx, channel.Id, e.announcement(request, caseId)); err != nil {
		e.logger.Warnf("announcement failed for %v channel[%v] %v", caseId, channel.Id, err)
	} else {
		record.AnnouncementId = sent.Id
		e.store.Set(channel.Id, record)
	}

	e.logger.Infof("created ticket %v channel[%v] applicant[%v]", caseId, channel.Id, request.ApplicantId)
	return &CreateResult{
		ChannelId: channel.Id,
		CaseId:    caseId,
		Url:       platform.ChannelLink(e.cfg.GuildId, channel.Id),
	}, nil
}

// Claim assigns the ticket to actorId. First writer wins; losers get
// ErrAlreadyClaimed and the record is untouched.
func (e *Engine) Claim(channelId string, record *Record, actorId string) error {
	if !record.IsTicket() {
		return ErrNotTicket
	}
	if record.Status == StatusClosed {
		return ErrAlreadyClosed
	}
	if record.ClaimedBy != "" {
		return ErrAlreadyClaimed
	}

	record.ClaimedBy = actorId
	record.ClaimedAt = time.Now()
	record.Status = StatusClaimed
	e.store.Set(channelId, record)
	e.logger.Infof("ticket %v claimed by[%v]", record.CaseId, actorId)

	snapshot := *record
	e.tasks.Go("claim-followthrough", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), followThroughTimeout)
		defer cancel()

		e.rerenderButtons(ctx, channelId, &snapshot)
		e.notify(ctx, channelId, platform.Embed{
			Title:       "🎯 Ticket Claimed",
			Description: fmt.Sprintf("%v is now handling this ticket.", userMention(actorId)),
			Color:       colorSuccess,
			Footer:      snapshot.CaseId,
			Timestamp:   time.Now(),
		})
		return nil
	})
	return nil
}

// Rename applies a sanitized name to the channel. The platform call is
// load-bearing here: metadata is only updated once the rename succeeded.
func (e *Engine) Rename(ctx context.Context, channel *platform.Channel, record *Record, actorId, rawName string) (string, error) {
	if !record.IsTicket() {
		return "", ErrNotTicket
	}

	// Capture before the platform call; the client may update the shared
	// channel struct in place.
	previous := channel.Name

	sanitized := SanitizeChannelName(rawName)
	if err := e.client.RenameChannel(ctx, channel.Id, sanitized); err != nil {
		return "", fmt.Errorf("rename ticket channel: %w", err)
	}
	channel.Name = sanitized
	record.RenamedBy = actorId
	record.RenamedAt = time.Now()
	record.OriginalName = previous
	e.store.Set(channel.Id, record)
	e.logger.Infof("ticket %v renamed %v -> %v by[%v]", record.CaseId, previous, sanitized, actorId)

	caseId := record.CaseId
	e.tasks.Go("rename-notice", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), followThroughTimeout)
		defer cancel()

		e.notify(ctx, channel.Id, platform.Embed{
			Title:       "✏️ Channel Renamed",
			Description: fmt.Sprintf("Renamed from `%v` to `%v` by %v.", previous, sanitized, userMention(actorId)),
			Color:       colorNotice,
			Footer:      caseId,
			Timestamp:   time.Now(),
		})
		return nil
	})
	return sanitized, nil
}

// Close moves the ticket to closed, then asynchronously locks the channel,
// archives the transcript and deletes the channel after a grace delay.
// Closing an unclaimed ticket is allowed.
func (e *Engine) Close(channel *platform.Channel, record *Record, actorId string) error {
	if !record.IsTicket() {
		return ErrNotTicket
	}
	if record.Status == StatusClosed {
		return ErrAlreadyClosed
	}

	record.ClosedBy = actorId
	record.ClosedAt = time.Now()
	record.Status = StatusClosed
	e.store.Set(channel.Id, record)
	e.logger.Infof("ticket %v closed by[%v]", record.CaseId, actorId)

	snapshot := *record
	e.tasks.Go("close-followthrough", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), followThroughTimeout)
		defer cancel()

		e.rerenderButtons(ctx, channel.Id, &snapshot)
		e.notify(ctx, channel.Id, platform.Embed{
			Title:       "🔒 Ticket Closed",
			Description: fmt.Sprintf("Closed by %v. A transcript is being archived; this channel will be removed shortly.", userMention(actorId)),
			Color:       colorDanger,
			Footer:      snapshot.CaseId,
			Timestamp:   time.Now(),
		})
		e.lockChannel(ctx, channel, snapshot.ApplicantId)
		return e.archiveAndDelete(ctx, channel, &snapshot)
	})
	return nil
}

// Info summarizes the ticket's lifecycle for staff.
func (e *Engine) Info(channel *platform.Channel, record *Record) (platform.Embed, error) {
	if !record.IsTicket() {
		return platform.Embed{}, ErrNotTicket
	}

	fields := []platform.EmbedField{
		{Name: "Case", Value: record.CaseId, Inline: true},
		{Name: "Status", Value: string(record.Status), Inline: true},
		{Name: "Applicant", Value: mentionOrDash(record.ApplicantId), Inline: true},
		{Name: "Created", Value: record.CreatedAt.UTC().Format("2006-01-02 15:04 MST"), Inline: true},
	}
	if record.ClaimedBy != "" {
		fields = append(fields, platform.EmbedField{Name: "Claimed by", Value: userMention(record.ClaimedBy), Inline: true})
	}
	if record.ClosedBy != "" {
		fields = append(fields, platform.EmbedField{Name: "Closed by", Value: userMention(record.ClosedBy), Inline: true})
	}
	if record.OriginalName != "" {
		fields = append(fields, platform.EmbedField{Name: "Original name", Value: "`" + record.OriginalName + "`", Inline: true})
	}

	return platform.Embed{
		Title:     "ℹ️ Ticket Info",
		Color:     e.cfg.BrandColor,
		Fields:    fields,
		Footer:    fmt.Sprintf("#%v", channel.Name),
		Timestamp: time.Now(),
	}, nil
}

// AddMember grants a user access to the ticket channel.
func (e *Engine) AddMember(ctx context.Context, channelId string, record *Record, userId, actorId string) error {
	if !record.IsTicket() {
		return ErrNotTicket
	}
	if err := e.client.EditOverwrite(ctx, channelId, platform.Overwrite{TargetId: userId, Allow: memberPerms}); err != nil {
		return fmt.Errorf("add ticket member: %w", err)
	}
	caseId := record.CaseId
	e.logger.Infof("ticket %v member added user[%v] by[%v]", caseId, userId, actorId)

	e.tasks.Go("member-notice", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), followThroughTimeout)
		defer cancel()

		e.notify(ctx, channelId, platform.Embed{
			Description: fmt.Sprintf("➕ %v was added to the ticket by %v.", userMention(userId), userMention(actorId)),
			Color:       colorSuccess,
			Footer:      caseId,
			Timestamp:   time.Now(),
		})
		return nil
	})
	return nil
}

// RemoveMember revokes a user's access to the ticket channel.
func (e *Engine) RemoveMember(ctx context.Context, channelId string, record *Record, userId, actorId string) error {
	if !record.IsTicket() {
		return ErrNotTicket
	}
	if err := e.client.EditOverwrite(ctx, channelId, platform.Overwrite{TargetId: userId, Deny: memberPerms}); err != nil {
		return fmt.Errorf("remove ticket member: %w", err)
	}
	caseId := record.CaseId
	e.logger.Infof("ticket %v member removed user[%v] by[%v]", caseId, userId, actorId)

	e.tasks.Go("member-notice", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), followThroughTimeout)
		defer cancel()

		e.notify(ctx, channelId, platform.Embed{
			Description: fmt.Sprintf("➖ %v was removed from the ticket by %v.", userMention(userId), userMention(actorId)),
			Color:       colorDanger,
			Footer:      caseId,
			Timestamp:   time.Now(),
		})
		return nil
	})
	return nil
}

// PostTranscript renders the transcript on demand and posts it into the
// ticket channel itself, without closing the ticket.
func (e *Engine) PostTranscript(ctx context.Context, channel *platform.Channel, record *Record) error {
	if !record.IsTicket() {
		return ErrNotTicket
	}

	document, renderErr := e.archiver.Render(ctx, channel, record)
	message := &platform.OutgoingMessage{
		Embeds: []platform.Embed{{
			Title:     "📄 Transcript",
			Color:     e.cfg.BrandColor,
			Footer:    record.CaseId,
			Timestamp: time.Now(),
		}},
		Files: []platform.File{{Name: transcriptFilename(record), Data: []byte(document)}},
	}
	if _, err := e.client.SendMessage(ctx, channel.Id, message); err != nil {
		return fmt.Errorf("post transcript: %w", err)
	}
	if renderErr != nil {
		return fmt.Errorf("transcript degraded: %w", renderErr)
	}
	return nil
}

// resolveParent probes the configured category before using it. A missing
// or inaccessible category demotes the ticket to the guild root instead of
// failing the creation.
func (e *Engine) resolveParent(ctx context.Context) string {
	if e.cfg.CategoryId == "" {
		return ""
	}
	capability, err := e.client.Capabilities(ctx, e.cfg.CategoryId, botPerms)
	if err != nil {
		e.logger.Warnf("category probe failed, creating at guild root %v", err)
		return ""
	}
	if !capability.Ok {
		e.logger.Warnf("missing %v in category[%v], creating at guild root", capability.Missing, e.cfg.CategoryId)
		return ""
	}
	return e.cfg.CategoryId
}

// rerenderButtons refreshes the control row on the announcement message to
// match the record's lifecycle state.
func (e *Engine) rerenderButtons(ctx context.Context, channelId string, record *Record) {
	if record.AnnouncementId == "" {
		return
	}
	buttons := Buttons(record.ClaimedBy != "", record.Status == StatusClosed)
	if err := e.client.EditMessageButtons(ctx, channelId, record.AnnouncementId, buttons); err != nil {
		e.logger.Warnf("button re-render failed for %v message[%v] %v", record.CaseId, record.AnnouncementId, err)
	}
}

// notify posts a lifecycle notice into the channel, gated by a capability
// probe so a permission gap degrades to a log line instead of an error.
func (e *Engine) notify(ctx context.Context, channelId string, embed platform.Embed) {
	capability, err := e.client.Capabilities(ctx, channelId, platform.PermViewChannel|platform.PermSendMessages)
	if err != nil {
		e.logger.Warnf("notify probe failed channel[%v] %v", channelId, err)
		return
	}
	if !capability.Ok {
		e.logger.Warnf("cannot notify channel[%v], missing %v", channelId, capability.Missing)
		return
	}
	if _, err := e.client.SendMessage(ctx, channelId, &platform.OutgoingMessage{Embeds: []platform.Embed{embed}}); err != nil {
		e.logger.Warnf("notify failed channel[%v] %v", channelId, err)
	}
}

// lockChannel makes a closed ticket read-only and marks it with the closed
// prefix. Every step is best-effort: the channel is deleted soon anyway.
func (e *Engine) lockChannel(ctx context.Context, channel *platform.Channel, applicantId string) {
	capability, err := e.client.Capabilities(ctx, channel.Id, platform.PermManageChannels)
	if err != nil || !capability.Ok {
		e.logger.Warnf("skipping lock of channel[%v], manage permission unavailable", channel.Id)
		return
	}

	if err := e.client.EditOverwrite(ctx, channel.Id, platform.Overwrite{TargetId: e.cfg.GuildId, Deny: platform.PermSendMessages}); err != nil {
		e.logger.Warnf("lock everyone failed channel[%v] %v", channel.Id, err)
	}
	if applicantId != "" {
		if err := e.client.EditOverwrite(ctx, channel.Id, platform.Overwrite{TargetId: applicantId, Allow: platform.PermViewChannel | platform.PermReadHistory, Deny: platform.PermSendMessages}); err != nil {
			e.logger.Warnf("lock applicant failed channel[%v] %v", channel.Id, err)
		}
	}

	if !strings.HasPrefix(channel.Name, ClosedPrefix) {
		locked := ClosedPrefix + strings.TrimPrefix(channel.Name, ChannelPrefix)
		if err := e.client.RenameChannel(ctx, channel.Id, locked); err != nil {
			e.logger.Warnf("closed rename failed channel[%v] %v", channel.Id, err)
		} else {
			channel.Name = locked
		}
	}
}

// archiveAndDelete ships the transcript to the log channel and removes the
// channel after a grace delay. A failed render still ships the fallback
// document and stretches the delay so staff can copy anything important.
func (e *Engine) archiveAndDelete(ctx context.Context, channel *platform.Channel, record *Record) error {
	delay := e.cfg.DeleteDelay()

	document, renderErr := e.archiver.Render(ctx, channel, record)
	if renderErr != nil {
		delay = e.cfg.FallbackDeleteDelay()
	}

	if e.cfg.LogChannelId != "" {
		message := &platform.OutgoingMessage{
			Content: fmt.Sprintf("📥 Closed ticket processed: %v", record.CaseId),
			Embeds: []platform.Embed{{
				Title: "Ticket Archived",
				Color: e.cfg.BrandColor,
				Fields: []platform.EmbedField{
					{Name: "Case", Value: record.CaseId, Inline: true},
					{Name: "Channel", Value: "#" + channel.Name, Inline: true},
					{Name: "Applicant", Value: mentionOrDash(record.ApplicantId), Inline: true},
					{Name: "Closed by", Value: mentionOrDash(record.ClosedBy), Inline: true},
				},
				Timestamp: time.Now(),
			}},
			Files: []platform.File{{Name: transcriptFilename(record), Data: []byte(document)}},
		}
		if _, err := e.client.SendMessage(ctx, e.cfg.LogChannelId, message); err != nil {
			e.logger.Warnf("transcript delivery failed for %v: %v", record.CaseId, err)
			delay = e.cfg.FallbackDeleteDelay()
		}
	}

	time.Sleep(delay)
	if err := e.client.DeleteChannel(ctx, channel.Id, fmt.Sprintf("Ticket %v closed", record.CaseId)); err != nil {
		return fmt.Errorf("delete ticket channel: %w", err)
	}
	e.store.Delete(channel.Id)
	e.logger.Infof("ticket %v archived, channel[%v] removed", record.CaseId, channel.Id)
	return nil
}

// announcement builds the application summary posted into a fresh ticket.
func (e *Engine) announcement(request *CreateRequest, caseId string) *platform.OutgoingMessage {
	form := request.Form

	fields := []platform.EmbedField{
		{Name: "Applicant", Value: applicantLabel(request), Inline: true},
		{Name: "Character", Value: orDash(form.CharName), Inline: true},
		{Name: "Age", Value: intOrDash(form.Age), Inline: true},
		{Name: "Steam Hex", Value: orDash(form.SteamHex), Inline: true},
		{Name: "Discord", Value: orDash(form.DiscordTag), Inline: true},
		{Name: "Timezone", Value: orDash(form.Timezone), Inline: true},
	}
	if form.HowFound != "" {
		fields = append(fields, platform.EmbedField{Name: "How they found us", Value: truncate(form.HowFound, 1024)})
	}
	if form.Motivation != "" {
		fields = append(fields, platform.EmbedField{Name: "Motivation", Value: truncate(form.Motivation, 1024)})
	}
	for i, qa := range form.Answers {
		if i >= 8 {
			break
		}
		fields = append(fields, platform.EmbedField{
			Name:  truncate(orDash(qa.Question), 256),
			Value: "> " + truncate(orDash(qa.Answer), 1000),
		})
	}

	var content string
	var mentions []string
	if len(e.cfg.StaffRoleIds) > 0 {
		parts := make([]string, 0, len(e.cfg.StaffRoleIds))
		for _, roleId := range e.cfg.StaffRoleIds {
			parts = append(parts, roleMention(roleId))
		}
		content = strings.Join(parts, " ") + " — new whitelist application"
		mentions = e.cfg.StaffRoleIds
	}

	return &platform.OutgoingMessage{
		Content: content,
		Embeds: []platform.Embed{{
			Title:       fmt.Sprintf("📋 Whitelist Application — %v", caseId),
			Description: fmt.Sprintf("Welcome %v! A staff member will review your application here.", userMention(request.ApplicantId)),
			Color:       e.cfg.BrandColor,
			Fields:      fields,
			Footer:      fmt.Sprintf("%v • Status: open", caseId),
			AuthorName:  e.cfg.BrandName,
			AuthorIcon:  e.cfg.BrandIconUrl,
			Thumbnail:   e.cfg.BrandIconUrl,
			Image:       e.cfg.BrandBannerUrl,
			Timestamp:   time.Now(),
		}},
		Buttons:        Buttons(false, false),
		MentionRoleIds: mentions,
	}
}

func transcriptFilename(record *Record) string {
	return fmt.Sprintf("transcript-%v-%v.html", strings.TrimPrefix(record.CaseId, "#"), time.Now().UnixMilli())
}

// shortSuffix disambiguates ticket channels sharing a character name. It
// prefers the website ticket id over the applicant id.
func shortSuffix(websiteTicketId, applicantId string) string {
	source := websiteTicketId
	if source == "" {
		source = applicantId
	}
	if source == "" {
		source = "0000"
	}
	source = SanitizeChannelName(source)
	if len(source) > 4 {
		source = source[len(source)-4:]
	}
	return source
}

func applicantLabel(request *CreateRequest) string {
	switch {
	case request.ApplicantId != "" && request.ApplicantTag != "":
		return fmt.Sprintf("%v (%v)", userMention(request.ApplicantId), request.ApplicantTag)
	case request.ApplicantId != "":
		return userMention(request.ApplicantId)
	case request.ApplicantTag != "":
		return request.ApplicantTag
	default:
		return "unknown"
	}
}

func userMention(userId string) string {
	if userId == "" {
		return "someone"
	}
	return fmt.Sprintf("<@%v>", userId)
}

func roleMention(roleId string) string {
	return fmt.Sprintf("<@&%v>", roleId)
}

func mentionOrDash(userId string) string {
	if userId == "" {
		return "—"
	}
	return userMention(userId)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "—"
	}
	return value
}

func intOrDash(value int) string {
	if value <= 0 {
		return "—"
	}
	return strconv.Itoa(value)
}

// truncate caps user-supplied text at max runes, never splitting a
// multibyte character.
func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}
