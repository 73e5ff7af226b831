package platform

import "context"

// Client is the surface the ticket core needs from the chat platform.
// Gateway/session management, embed rendering details and permission-bit
// semantics stay behind this interface.
type Client interface {
	CreateChannel(ctx context.Context, guildId string, request *CreateChannelRequest) (*Channel, error)
	FetchChannel(ctx context.Context, channelId string) (*Channel, error)
	RenameChannel(ctx context.Context, channelId, name string) error
	SetTopic(ctx context.Context, channelId, topic string) error
	EditOverwrite(ctx context.Context, channelId string, overwrite Overwrite) error
	DeleteChannel(ctx context.Context, channelId, reason string) error

	SendMessage(ctx context.Context, channelId string, message *OutgoingMessage) (*Message, error)
	EditMessageButtons(ctx context.Context, channelId, messageId string, buttons []Button) error
	FetchMessages(ctx context.Context, channelId string, limit int, beforeId string) ([]*Message, error)

	// Capabilities probes the bot's own permissions in a channel or
	// category once, instead of try/catch probing at every call site.
	Capabilities(ctx context.Context, channelId string, need Permission) (*Capability, error)
}
