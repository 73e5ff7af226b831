package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/imroc/req/v3"
	"go.uber.org/zap"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/config"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
)

type restClient struct {
	api    string
	token  string
	http   *req.Client
	logger *zap.SugaredLogger
}

func ProvideClient(cfg *config.Config, httpClient *req.Client, loggerFactory *infra.LoggerFactory) Client {
	return &restClient{
		api:    cfg.ApiBaseUrl,
		token:  cfg.BotToken,
		http:   httpClient,
		logger: loggerFactory.Create("PlatformClient").Sugar(),
	}
}

func (c *restClient) request(ctx context.Context) *req.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bot "+c.token).
		SetHeader("Content-Type", "application/json")
}

type wireOverwrite struct {
	Id    string `json:"id"`
	Allow uint   `json:"allow"`
	Deny  uint   `json:"deny"`
}

type wireChannel struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Topic    string `json:"topic"`
	ParentId string `json:"parent_id"`
}

func (w *wireChannel) channel() *Channel {
	return &Channel{Id: w.Id, Name: w.Name, Topic: w.Topic, ParentId: w.ParentId}
}

func wireOverwrites(overwrites []Overwrite) []wireOverwrite {
	out := make([]wireOverwrite, 0, len(overwrites))
	for _, ow := range overwrites {
		out = append(out, wireOverwrite{Id: ow.TargetId, Allow: uint(ow.Allow), Deny: uint(ow.Deny)})
	}
	return out
}

func (c *restClient) CreateChannel(ctx context.Context, guildId string, request *CreateChannelRequest) (*Channel, error) {
	body := &struct {
		Name       string          `json:"name"`
		ParentId   string          `json:"parent_id,omitempty"`
		Topic      string          `json:"topic,omitempty"`
		Overwrites []wireOverwrite `json:"permission_overwrites"`
	}{
		Name:       request.Name,
		ParentId:   request.ParentId,
		Topic:      request.Topic,
		Overwrites: wireOverwrites(request.Overwrites),
	}

	created := &wireChannel{}
	resp, err := c.request(ctx).
		SetHeader("X-Audit-Log-Reason", request.Reason).
		SetBody(body).
		SetResult(created).
		Post(fmt.Sprintf("%v/guilds/%v/channels", c.api, guildId))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create channel failed with status[%v]", resp.Status)
	}

	c.logger.Infof("created channel id[%v] name[%v]", created.Id, created.Name)
	return created.channel(), nil
}

func (c *restClient) FetchChannel(ctx context.Context, channelId string) (*Channel, error) {
	fetched := &wireChannel{}
	resp, err := c.request(ctx).
		SetResult(fetched).
		Get(fmt.Sprintf("%v/channels/%v", c.api, channelId))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch channel failed with status[%v]", resp.Status)
	}
	return fetched.channel(), nil
}

func (c *restClient) RenameChannel(ctx context.Context, channelId, name string) error {
	return c.patchChannel(ctx, channelId, map[string]string{"name": name})
}

func (c *restClient) SetTopic(ctx context.Context, channelId, topic string) error {
	return c.patchChannel(ctx, channelId, map[string]string{"topic": topic})
}

func (c *restClient) patchChannel(ctx context.Context, channelId string, body map[string]string) error {
	resp, err := c.request(ctx).
		SetBody(body).
		Patch(fmt.Sprintf("%v/channels/%v", c.api, channelId))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("patch channel failed with status[%v]", resp.Status)
	}
	return nil
}

func (c *restClient) EditOverwrite(ctx context.Context, channelId string, overwrite Overwrite) error {
	body := &struct {
		Allow uint `json:"allow"`
		Deny  uint `json:"deny"`
	}{Allow: uint(overwrite.Allow), Deny: uint(overwrite.Deny)}

	resp, err := c.request(ctx).
		SetBody(body).
		Put(fmt.Sprintf("%v/channels/%v/permissions/%v", c.api, channelId, overwrite.TargetId))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("edit overwrite failed with status[%v]", resp.Status)
	}
	return nil
}

func (c *restClient) DeleteChannel(ctx context.Context, channelId, reason string) error {
	resp, err := c.request(ctx).
		SetHeader("X-Audit-Log-Reason", reason).
		Delete(fmt.Sprintf("%v/channels/%v", c.api, channelId))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("delete channel failed with status[%v]", resp.Status)
	}
	return nil
}

type wireEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type wireEmbedMedia struct {
	Url string `json:"url"`
}

type wireEmbedAuthor struct {
	Name    string `json:"name"`
	IconUrl string `json:"icon_url,omitempty"`
	Url     string `json:"url,omitempty"`
}

type wireEmbedFooter struct {
	Text    string `json:"text"`
	IconUrl string `json:"icon_url,omitempty"`
}

type wireEmbed struct {
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Color       int              `json:"color,omitempty"`
	Fields      []wireEmbedField `json:"fields,omitempty"`
	Author      *wireEmbedAuthor `json:"author,omitempty"`
	Footer      *wireEmbedFooter `json:"footer,omitempty"`
	Thumbnail   *wireEmbedMedia  `json:"thumbnail,omitempty"`
	Image       *wireEmbedMedia  `json:"image,omitempty"`
	Timestamp   string           `json:"timestamp,omitempty"`
}

func encodeEmbed(e Embed) wireEmbed {
	w := wireEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		w.Fields = append(w.Fields, wireEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.AuthorName != "" {
		w.Author = &wireEmbedAuthor{Name: e.AuthorName, IconUrl: e.AuthorIcon, Url: e.AuthorUrl}
	}
	if e.Footer != "" {
		w.Footer = &wireEmbedFooter{Text: e.Footer, IconUrl: e.FooterIcon}
	}
	if e.Thumbnail != "" {
		w.Thumbnail = &wireEmbedMedia{Url: e.Thumbnail}
	}
	if e.Image != "" {
		w.Image = &wireEmbedMedia{Url: e.Image}
	}
	if !e.Timestamp.IsZero() {
		w.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return w
}

type wireButton struct {
	Type     int    `json:"type"`
	CustomId string `json:"custom_id"`
	Label    string `json:"label"`
	Style    int    `json:"style"`
	Disabled bool   `json:"disabled"`
	Emoji    *struct {
		Name string `json:"name"`
	} `json:"emoji,omitempty"`
}

type wireActionRow struct {
	Type       int          `json:"type"`
	Components []wireButton `json:"components"`
}

func encodeButtonRows(buttons []Button) []wireActionRow {
	if len(buttons) == 0 {
		return []wireActionRow{}
	}
	row := wireActionRow{Type: 1}
	for _, b := range buttons {
		wb := wireButton{Type: 2, CustomId: b.CustomId, Label: b.Label, Style: int(b.Style), Disabled: b.Disabled}
		if b.Emoji != "" {
			wb.Emoji = &struct {
				Name string `json:"name"`
			}{Name: b.Emoji}
		}
		row.Components = append(row.Components, wb)
	}
	return []wireActionRow{row}
}

type wireMessage struct {
	Id        string `json:"id"`
	ChannelId string `json:"channel_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		Id       string `json:"id"`
		Username string `json:"username"`
	} `json:"author"`
	Attachments []struct {
		Filename string `json:"filename"`
		Url      string `json:"url"`
	} `json:"attachments"`
	Embeds []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"embeds"`
}

func (w *wireMessage) message() *Message {
	m := &Message{
		Id:        w.Id,
		ChannelId: w.ChannelId,
		AuthorId:  w.Author.Id,
		AuthorTag: w.Author.Username,
		Content:   w.Content,
	}
	if ts, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
		m.CreatedAt = ts
	}
	for _, a := range w.Attachments {
		m.Attachments = append(m.Attachments, Attachment{Name: a.Filename, Url: a.Url})
	}
	for _, e := range w.Embeds {
		m.Embeds = append(m.Embeds, Embed{Title: e.Title, Description: e.Description})
	}
	return m
}

func (c *restClient) SendMessage(ctx context.Context, channelId string, message *OutgoingMessage) (*Message, error) {
	payload := &struct {
		Content         string          `json:"content,omitempty"`
		Embeds          []wireEmbed     `json:"embeds,omitempty"`
		Components      []wireActionRow `json:"components,omitempty"`
		AllowedMentions *struct {
			Roles []string `json:"roles"`
		} `json:"allowed_mentions,omitempty"`
	}{Content: message.Content}
	for _, e := range message.Embeds {
		payload.Embeds = append(payload.Embeds, encodeEmbed(e))
	}
	if len(message.Buttons) > 0 {
		payload.Components = encodeButtonRows(message.Buttons)
	}
	if len(message.MentionRoleIds) > 0 {
		payload.AllowedMentions = &struct {
			Roles []string `json:"roles"`
		}{Roles: message.MentionRoleIds}
	}

	sent := &wireMessage{}
	request := c.request(ctx).SetResult(sent)

	if len(message.Files) > 0 {
		// File uploads go as multipart with the json payload alongside.
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		request.SetHeader("Content-Type", "")
		request.SetFormData(map[string]string{"payload_json": string(raw)})
		for i, f := range message.Files {
			request.SetFileBytes("files["+strconv.Itoa(i)+"]", f.Name, f.Data)
		}
	} else {
		request.SetBody(payload)
	}

	resp, err := request.Post(fmt.Sprintf("%v/channels/%v/messages", c.api, channelId))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("send message failed with status[%v]", resp.Status)
	}
	return sent.message(), nil
}

func (c *restClient) EditMessageButtons(ctx context.Context, channelId, messageId string, buttons []Button) error {
	body := &struct {
		Components []wireActionRow `json:"components"`
	}{Components: encodeButtonRows(buttons)}

	resp, err := c.request(ctx).
		SetBody(body).
		Patch(fmt.Sprintf("%v/channels/%v/messages/%v", c.api, channelId, messageId))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("edit message failed with status[%v]", resp.Status)
	}
	return nil
}

func (c *restClient) FetchMessages(ctx context.Context, channelId string, limit int, beforeId string) ([]*Message, error) {
	var page []*wireMessage
	request := c.request(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&page)
	if beforeId != "" {
		request.SetQueryParam("before", beforeId)
	}

	resp, err := request.Get(fmt.Sprintf("%v/channels/%v/messages", c.api, channelId))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch messages failed with status[%v]", resp.Status)
	}

	messages := make([]*Message, 0, len(page))
	for _, w := range page {
		messages = append(messages, w.message())
	}
	return messages, nil
}

func (c *restClient) Capabilities(ctx context.Context, channelId string, need Permission) (*Capability, error) {
	probe := &struct {
		Permissions uint `json:"permissions"`
	}{}
	resp, err := c.request(ctx).
		SetResult(probe).
		Get(fmt.Sprintf("%v/channels/%v/permissions/@me", c.api, channelId))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("capability probe failed with status[%v]", resp.Status)
	}

	have := Permission(probe.Permissions)
	missing := need &^ have
	return &Capability{Ok: missing == 0, Missing: missing.Names()}, nil
}
