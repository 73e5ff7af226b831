package ticket

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/platform"
)

// fakeClient is an in-memory stand-in for the platform rest client.
type fakeClient struct {
	mu sync.Mutex

	nextId   int
	channels map[string]*platform.Channel

	created  []*platform.CreateChannelRequest
	sent     map[string][]*platform.OutgoingMessage
	edited   map[string][]platform.Button
	grants   map[string][]platform.Overwrite
	deleted  []string
	topics   map[string]string

	// Newest-first pages served by FetchMessages.
	history []*platform.Message

	perms platform.Permission

	failCreate  bool
	failSend    bool
	failRename  bool
	failHistory bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		channels: map[string]*platform.Channel{},
		sent:     map[string][]*platform.OutgoingMessage{},
		edited:   map[string][]platform.Button{},
		grants:   map[string][]platform.Overwrite{},
		topics:   map[string]string{},
		perms:    platform.PermViewChannel | platform.PermSendMessages | platform.PermReadHistory | platform.PermManageChannels,
	}
}

func (f *fakeClient) addChannel(id, name string) *platform.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	channel := &platform.Channel{Id: id, Name: name}
	f.channels[id] = channel
	return channel
}

func (f *fakeClient) CreateChannel(ctx context.Context, guildId string, request *platform.CreateChannelRequest) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate {
		return nil, errors.New("create refused")
	}
	f.nextId++
	channel := &platform.Channel{
		Id:       fmt.Sprintf("chan-%v", f.nextId),
		Name:     request.Name,
		ParentId: request.ParentId,
	}
	f.channels[channel.Id] = channel
	f.created = append(f.created, request)
	return channel, nil
}

func (f *fakeClient) FetchChannel(ctx context.Context, channelId string) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if channel, ok := f.channels[channelId]; ok {
		return channel, nil
	}
	return nil, errors.New("unknown channel")
}

func (f *fakeClient) RenameChannel(ctx context.Context, channelId, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failRename {
		return errors.New("rename refused")
	}
	if channel, ok := f.channels[channelId]; ok {
		channel.Name = name
	}
	return nil
}

func (f *fakeClient) SetTopic(ctx context.Context, channelId, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics[channelId] = topic
	return nil
}

func (f *fakeClient) EditOverwrite(ctx context.Context, channelId string, overwrite platform.Overwrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[channelId] = append(f.grants[channelId], overwrite)
	return nil
}

func (f *fakeClient) DeleteChannel(ctx context.Context, channelId, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelId)
	delete(f.channels, channelId)
	return nil
}

func (f *fakeClient) SendMessage(ctx context.Context, channelId string, message *platform.OutgoingMessage) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSend {
		return nil, errors.New("send refused")
	}
	f.nextId++
	f.sent[channelId] = append(f.sent[channelId], message)
	return &platform.Message{Id: fmt.Sprintf("msg-%v", f.nextId), ChannelId: channelId}, nil
}

func (f *fakeClient) EditMessageButtons(ctx context.Context, channelId, messageId string, buttons []platform.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited[messageId] = buttons
	return nil
}

func (f *fakeClient) FetchMessages(ctx context.Context, channelId string, limit int, beforeId string) ([]*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failHistory {
		return nil, errors.New("history refused")
	}

	start := 0
	if beforeId != "" {
		for i, message := range f.history {
			if message.Id == beforeId {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(f.history) {
		end = len(f.history)
	}
	if start >= len(f.history) {
		return nil, nil
	}
	return f.history[start:end], nil
}

func (f *fakeClient) Capabilities(ctx context.Context, channelId string, need platform.Permission) (*platform.Capability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	missing := need &^ f.perms
	return &platform.Capability{Ok: missing == 0, Missing: missing.Names()}, nil
}

func (f *fakeClient) sentTo(channelId string) []*platform.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[channelId]
}

func (f *fakeClient) topicOf(channelId string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topics[channelId]
}

func (f *fakeClient) deletedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted
}
