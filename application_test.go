package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/config"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/platform"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/ticket"
)

// memClient fakes the platform for webhook tests.
type memClient struct {
	mu       sync.Mutex
	nextId   int
	channels map[string]*platform.Channel
	sent     map[string][]*platform.OutgoingMessage
	topics   map[string]string

	failCreate bool
}

func newMemClient() *memClient {
	return &memClient{
		channels: map[string]*platform.Channel{},
		sent:     map[string][]*platform.OutgoingMessage{},
		topics:   map[string]string{},
	}
}

func (m *memClient) CreateChannel(ctx context.Context, guildId string, request *platform.CreateChannelRequest) (*platform.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return nil, errors.New("create refused")
	}
	m.nextId++
	channel := &platform.Channel{Id: fmt.Sprintf("chan-%v", m.nextId), Name: request.Name}
	m.channels[channel.Id] = channel
	return channel, nil
}

func (m *memClient) FetchChannel(ctx context.Context, channelId string) (*platform.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if channel, ok := m.channels[channelId]; ok {
		return channel, nil
	}
	return nil, errors.New("unknown channel")
}

func (m *memClient) RenameChannel(ctx context.Context, channelId, name string) error { return nil }

func (m *memClient) SetTopic(ctx context.Context, channelId, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[channelId] = topic
	return nil
}

func (m *memClient) EditOverwrite(ctx context.Context, channelId string, overwrite platform.Overwrite) error {
	return nil
}

func (m *memClient) DeleteChannel(ctx context.Context, channelId, reason string) error { return nil }

func (m *memClient) SendMessage(ctx context.Context, channelId string, message *platform.OutgoingMessage) (*platform.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextId++
	m.sent[channelId] = append(m.sent[channelId], message)
	return &platform.Message{Id: fmt.Sprintf("msg-%v", m.nextId), ChannelId: channelId}, nil
}

func (m *memClient) EditMessageButtons(ctx context.Context, channelId, messageId string, buttons []platform.Button) error {
	return nil
}

func (m *memClient) FetchMessages(ctx context.Context, channelId string, limit int, beforeId string) ([]*platform.Message, error) {
	return nil, nil
}

func (m *memClient) Capabilities(ctx context.Context, channelId string, need platform.Permission) (*platform.Capability, error) {
	return &platform.Capability{Ok: true}, nil
}

const testSecret = "hush"

func newTestApplication(client *memClient) (*Application, *ticket.Tasks) {
	cfg := &config.Config{
		GuildId:       "guild-1",
		StaffRoleIds:  []string{"staff-role"},
		BotToken:      "token",
		WebhookSecret: testSecret,
		BrandName:     "Whitelist",
		BrandColor:    0x00A2FF,
	}
	loggerFactory := infra.ProvideLoggerFactory()
	tasks := ticket.ProvideTasks(loggerFactory)
	guard := ticket.ProvideGuard(loggerFactory)
	store := ticket.ProvideStore(client, tasks, loggerFactory)
	archiver := ticket.ProvideArchiver(cfg, client, loggerFactory)
	engine := ticket.ProvideEngine(cfg, client, store, archiver, tasks, loggerFactory)
	return ProvideApplication(cfg, guard, engine, nil, infra.ProvideHttpClient(), loggerFactory), tasks
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWhitelist(t *testing.T, application *Application, body []byte, signature string) (*httptest.ResponseRecorder, *whitelistResponse) {
	t.Helper()

	e := echo.New()
	request := httptest.NewRequest(http.MethodPost, "/whitelist", strings.NewReader(string(body)))
	request.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		request.Header.Set("X-Signature", signature)
	}
	recorder := httptest.NewRecorder()

	if err := application.HandleWhitelist(e.NewContext(request, recorder)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	response := &whitelistResponse{}
	if err := json.Unmarshal(recorder.Body.Bytes(), response); err != nil {
		t.Fatalf("response is not json: %v", err)
	}
	return recorder, response
}

func TestWhitelistRejectsMissingSignature(t *testing.T) {
	application, _ := newTestApplication(newMemClient())

	recorder, response := postWhitelist(t, application, []byte(`{"charName":"John"}`), "")
	if recorder.Code != http.StatusUnauthorized || response.Error != "invalid signature" {
		t.Fatalf("want 401 invalid signature, got %v %+v", recorder.Code, response)
	}
}

func TestWhitelistRejectsBadSignature(t *testing.T) {
	application, _ := newTestApplication(newMemClient())

	body := []byte(`{"charName":"John"}`)
	tampered := sign([]byte(`{"charName":"Jane"}`))
	recorder, _ := postWhitelist(t, application, body, tampered)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("tampered body accepted: %v", recorder.Code)
	}
}

func TestWhitelistRequiresCharName(t *testing.T) {
	application, _ := newTestApplication(newMemClient())

	body := []byte(`{"discordId":"user-1"}`)
	recorder, response := postWhitelist(t, application, body, sign(body))
	if recorder.Code != http.StatusBadRequest || response.Error != "charName required" {
		t.Fatalf("want 400 charName required, got %v %+v", recorder.Code, response)
	}
}

func TestWhitelistCreatesTicket(t *testing.T) {
	client := newMemClient()
	application, tasks := newTestApplication(client)

	body := []byte(`{
		"discordId":"user-1","discordTag":"john#1234","charName":"John Doe",
		"alter":21,"steamHex":"110000112345678","erfahrung":"friend",
		"deskItem":"roleplay","timezone":"Europe/Berlin","websiteTicketId":"WT-1",
		"answers":[{"question":"Why?","answer":"Because."}]
	}`)
	recorder, response := postWhitelist(t, application, body, sign(body))
	tasks.Wait()

	if recorder.Code != http.StatusOK || !response.Ok {
		t.Fatalf("want 200 ok, got %v %+v", recorder.Code, response)
	}
	if !strings.HasPrefix(response.CaseId, "#T-") || response.ChannelId == "" {
		t.Fatalf("response incomplete: %+v", response)
	}
	if !strings.Contains(response.Url, response.ChannelId) {
		t.Fatalf("url %v does not reference channel %v", response.Url, response.ChannelId)
	}

	if len(client.channels) != 1 {
		t.Fatalf("want 1 channel, got %v", len(client.channels))
	}
	announcements := client.sent[response.ChannelId]
	if len(announcements) != 1 {
		t.Fatalf("announcement missing")
	}

	// The German aliases win over their English counterparts.
	var sawExperience, sawMotivation bool
	for _, field := range announcements[0].Embeds[0].Fields {
		if strings.Contains(field.Value, "friend") {
			sawExperience = true
		}
		if strings.Contains(field.Value, "roleplay") {
			sawMotivation = true
		}
	}
	if !sawExperience || !sawMotivation {
		t.Fatalf("aliased fields not reconciled: %+v", announcements[0].Embeds[0].Fields)
	}
}

func TestWhitelistDeduplicatesRetries(t *testing.T) {
	client := newMemClient()
	application, tasks := newTestApplication(client)

	body := []byte(`{"discordId":"user-1","charName":"John Doe","websiteTicketId":"WT-1"}`)
	first, _ := postWhitelist(t, application, body, sign(body))
	if first.Code != http.StatusOK {
		t.Fatalf("first submission failed: %v", first.Code)
	}

	second, response := postWhitelist(t, application, body, sign(body))
	tasks.Wait()

	if second.Code != http.StatusConflict {
		t.Fatalf("retry within cooldown want 409, got %v", second.Code)
	}
	if response.Error == "" {
		t.Fatalf("conflict response missing error text")
	}
	if len(client.channels) != 1 {
		t.Fatalf("retry created a duplicate channel")
	}
}

func TestWhitelistFailureReleasesGuard(t *testing.T) {
	client := newMemClient()
	client.failCreate = true
	application, tasks := newTestApplication(client)

	body := []byte(`{"discordId":"user-1","charName":"John Doe"}`)
	recorder, _ := postWhitelist(t, application, body, sign(body))
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("platform failure want 500, got %v", recorder.Code)
	}

	// The failed attempt must not leave the key stuck inflight. The retry
	// still lands in the cooldown window, but as "recent", not "inflight".
	client.failCreate = false
	retry, response := postWhitelist(t, application, body, sign(body))
	tasks.Wait()

	if retry.Code != http.StatusConflict {
		t.Fatalf("retry within cooldown want 409, got %v", retry.Code)
	}
	if strings.Contains(response.Error, "progress") {
		t.Fatalf("failed attempt left the guard inflight: %+v", response)
	}
}

func TestVersionEndpoint(t *testing.T) {
	application, _ := newTestApplication(newMemClient())

	e := echo.New()
	request := httptest.NewRequest(http.MethodGet, "/version", nil)
	recorder := httptest.NewRecorder()
	if err := application.HandleVersion(e.NewContext(request, recorder)); err != nil {
		t.Fatalf("version handler failed: %v", err)
	}
	if !strings.Contains(recorder.Body.String(), Version) {
		t.Fatalf("version body wrong: %v", recorder.Body.String())
	}
}
