package msg

type EventCode uint

const (
	HelloCode       EventCode = 2000
	IdentifyCode    EventCode = 2001
	ReadyCode       EventCode = 2002
	HeartbeatCode   EventCode = 2003
	InteractionCode EventCode = 2004
)

type HelloServerEvent struct {
	HeartbeatMsec int64 `json:"heartbeatMsec"`
}

type IdentifyClientEvent struct {
	Token string `json:"token"`
}

type ReadyServerEvent struct {
	SessionId string `json:"sessionId"`
	BotUserId string `json:"botUserId"`
}

// InteractionServerEvent is one inbound trigger from the platform: a slash
// command invocation, a button click or a modal submit. Token is the
// credential for answering through the interaction callback endpoint.
type InteractionServerEvent struct {
	Id    string `json:"id"`
	Token string `json:"token"`
	Kind  string `json:"kind"`

	GuildId   string `json:"guildId"`
	ChannelId string `json:"channelId"`

	ActorId      string   `json:"actorId"`
	ActorTag     string   `json:"actorTag"`
	ActorRoleIds []string `json:"actorRoleIds"`

	Command string            `json:"command,omitempty"`
	Options map[string]string `json:"options,omitempty"`

	CustomId  string            `json:"customId,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	MessageId string            `json:"messageId,omitempty"`
}
