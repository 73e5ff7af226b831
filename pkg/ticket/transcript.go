package ticket

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/config"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/platform"
)

const historyPageSize = 100

// Archiver renders a closed ticket's message history into a
// self-contained html document.
type Archiver struct {
	cfg    *config.Config
	client platform.Client
	logger *zap.SugaredLogger
}

func ProvideArchiver(cfg *config.Config, client platform.Client, loggerFactory *infra.LoggerFactory) *Archiver {
	return &Archiver{
		cfg:    cfg,
		client: client,
		logger: loggerFactory.Create("Archiver").Sugar(),
	}
}

// Render walks the channel history oldest-first and produces the export.
// On failure it returns a minimal fallback document along with the error;
// archival problems must never block the close transition's teardown.
func (a *Archiver) Render(ctx context.Context, channel *platform.Channel, record *Record) (string, error) {
	messages, err := a.collect(ctx, channel.Id)
	if err != nil {
		a.logger.Errorf("history collection failed for %v: %v", record.CaseId, err)
		return fallbackDocument(record, err), err
	}
	return a.document(channel, record, messages), nil
}

func (a *Archiver) collect(ctx context.Context, channelId string) ([]*platform.Message, error) {
	max := *config.CFG.MaxTranscriptMessages

	var collected []*platform.Message
	beforeId := ""
	for len(collected) < max {
		batch, err := a.client.FetchMessages(ctx, channelId, historyPageSize, beforeId)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		collected = append(collected, batch...)
		beforeId = batch[len(batch)-1].Id
	}
	if len(collected) > max {
		collected = collected[:max]
	}

	// The platform pages newest-first; the transcript reads oldest-first.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

func (a *Archiver) document(channel *platform.Channel, record *Record, messages []*platform.Message) string {
	esc := html.EscapeString

	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\"/>\n")
	b.WriteString(fmt.Sprintf("<title>Transcript %v</title>\n", esc(record.CaseId)))
	b.WriteString(`<style>
  body{font-family:Inter,Segoe UI,Arial,sans-serif;background:#0b1220;color:#e6edf3;margin:0}
  .wrap{max-width:960px;margin:0 auto;padding:24px}
  .title{font-weight:600}
  .meta{display:grid;grid-template-columns:repeat(auto-fit,minmax(220px,1fr));gap:12px;margin:12px 0}
  .meta .card{background:#0f172a;border:1px solid #1e293b;border-radius:10px;padding:12px}
  .msg{padding:12px;border-bottom:1px solid #1e293b}
  .msg .head{font-size:12px;color:#94a3b8}
  .msg .content{white-space:pre-wrap;word-break:break-word;margin-top:2px}
  .attach,.embed{margin-top:8px;font-size:12px;color:#cbd5e1}
  .time{color:#64748b}
</style></head><body><div class="wrap">
`)
	b.WriteString(fmt.Sprintf("<div class=\"title\">%v Ticket Transcript</div>\n", esc(a.cfg.BrandName)))
	b.WriteString(fmt.Sprintf("<div class=\"time\">%v • #%v</div>\n", esc(record.CaseId), esc(channel.Name)))

	b.WriteString("<div class=\"meta\">\n")
	writeCard := func(title, value string) {
		b.WriteString(fmt.Sprintf("<div class=\"card\"><div class=\"title\">%v</div>%v</div>\n", esc(title), esc(value)))
	}
	applicant := record.ApplicantId
	if applicant == "" {
		applicant = "unknown"
	}
	writeCard("Applicant", applicant)
	writeCard("Status", string(record.Status))
	writeCard("Created", record.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	if record.ClaimedBy != "" {
		writeCard("Claimed by", record.ClaimedBy)
	}
	if record.ClosedBy != "" {
		writeCard("Closed by", record.ClosedBy)
	}
	b.WriteString("</div>\n")

	for _, message := range messages {
		author := message.AuthorTag
		if author == "" {
			author = message.AuthorId
		}
		b.WriteString("<div class=\"msg\">")
		b.WriteString(fmt.Sprintf("<div class=\"head\"><span class=\"title\">%v</span> <span class=\"time\">%v</span></div>",
			esc(author), message.CreatedAt.UTC().Format("2006-01-02 15:04:05")))
		if message.Content != "" {
			b.WriteString(fmt.Sprintf("<div class=\"content\">%v</div>", esc(message.Content)))
		}
		for _, embed := range message.Embeds {
			if embed.Title == "" && embed.Description == "" {
				continue
			}
			b.WriteString("<div class=\"embed\">")
			if embed.Title != "" {
				b.WriteString(fmt.Sprintf("<div class=\"title\">%v</div>", esc(embed.Title)))
			}
			if embed.Description != "" {
				b.WriteString(fmt.Sprintf("<div>%v</div>", esc(embed.Description)))
			}
			b.WriteString("</div>")
		}
		for _, attachment := range message.Attachments {
			b.WriteString(fmt.Sprintf("<div class=\"attach\">📎 <a href=\"%v\" target=\"_blank\" rel=\"noopener\">%v</a></div>",
				esc(attachment.Url), esc(attachment.Name)))
		}
		b.WriteString("</div>\n")
	}

	b.WriteString("</div></body></html>\n")
	return b.String()
}

func fallbackDocument(record *Record, renderErr error) string {
	esc := html.EscapeString
	return fmt.Sprintf(
		"<!DOCTYPE html><html><body><h1>Transcript %v</h1><p>Transcript rendering failed: %v</p><p>%v</p></body></html>\n",
		esc(record.CaseId), esc(renderErr.Error()), esc(time.Now().UTC().Format(time.RFC3339)))
}
