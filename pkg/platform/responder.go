package platform

import (
	"context"
	"fmt"

	"github.com/imroc/req/v3"
	"go.uber.org/zap"
)

const (
	callbackReply = 4
	callbackModal = 9

	// Acknowledgments are only visible to the actor who triggered them.
	flagEphemeral = 64
)

// restResponder answers one interaction over the platform's callback
// endpoint. The callback slot is single-use and expires within seconds;
// the Interaction wrapper enforces the single use, this type just delivers.
type restResponder struct {
	api           string
	http          *req.Client
	interactionId string
	token         string
	logger        *zap.SugaredLogger
}

func NewRestResponder(api string, http *req.Client, logger *zap.SugaredLogger, interactionId, token string) Responder {
	return &restResponder{
		api:           api,
		http:          http,
		interactionId: interactionId,
		token:         token,
		logger:        logger,
	}
}

type callbackData struct {
	Content string      `json:"content,omitempty"`
	Embeds  []wireEmbed `json:"embeds,omitempty"`
	Flags   int         `json:"flags,omitempty"`

	CustomId   string         `json:"custom_id,omitempty"`
	Title      string         `json:"title,omitempty"`
	Components []wireInputRow `json:"components,omitempty"`
}

type wireTextInput struct {
	Type        int    `json:"type"`
	CustomId    string `json:"custom_id"`
	Label       string `json:"label"`
	Style       int    `json:"style"`
	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value,omitempty"`
	Required    bool   `json:"required"`
	MinLength   int    `json:"min_length,omitempty"`
	MaxLength   int    `json:"max_length,omitempty"`
}

type wireInputRow struct {
	Type       int             `json:"type"`
	Components []wireTextInput `json:"components"`
}

type callbackBody struct {
	Type int           `json:"type"`
	Data *callbackData `json:"data"`
}

func (r *restResponder) post(ctx context.Context, url string, body interface{}) error {
	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("interaction response failed with status[%v]", resp.Status)
	}
	return nil
}

func (r *restResponder) Reply(ctx context.Context, content string, embeds []Embed) error {
	data := &callbackData{Content: content, Flags: flagEphemeral}
	for _, e := range embeds {
		data.Embeds = append(data.Embeds, encodeEmbed(e))
	}
	url := fmt.Sprintf("%v/interactions/%v/%v/callback", r.api, r.interactionId, r.token)
	return r.post(ctx, url, &callbackBody{Type: callbackReply, Data: data})
}

func (r *restResponder) ShowModal(ctx context.Context, modal *Modal) error {
	input := modal.Input
	// A text input rides in an action row the same way a button does.
	body := &callbackBody{
		Type: callbackModal,
		Data: &callbackData{
			CustomId: modal.CustomId,
			Title:    modal.Title,
			Components: []wireInputRow{{
				Type: 1,
				Components: []wireTextInput{{
					Type:        4,
					CustomId:    input.CustomId,
					Label:       input.Label,
					Style:       1,
					Placeholder: input.Placeholder,
					Value:       input.Value,
					Required:    input.Required,
					MinLength:   input.MinLength,
					MaxLength:   input.MaxLength,
				}},
			}},
		},
	}
	url := fmt.Sprintf("%v/interactions/%v/%v/callback", r.api, r.interactionId, r.token)
	return r.post(ctx, url, body)
}

func (r *restResponder) Followup(ctx context.Context, content string, embeds []Embed) error {
	data := &callbackData{Content: content, Flags: flagEphemeral}
	for _, e := range embeds {
		data.Embeds = append(data.Embeds, encodeEmbed(e))
	}
	url := fmt.Sprintf("%v/interactions/%v/%v/followup", r.api, r.interactionId, r.token)
	return r.post(ctx, url, data)
}
