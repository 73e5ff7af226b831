package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/imroc/req/v3"
	"go.uber.org/zap"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/config"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/msg"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/platform"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send heartbeats to the platform with this period.
	heartbeatPeriod = 30 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = heartbeatPeriod * 5 / 2

	// Wait before dialing again after the session drops.
	reconnectDelay = 5 * time.Second
)

// Handler receives each inbound interaction. The platform delivers one
// event at a time; Handle is invoked synchronously in delivery order.
type Handler interface {
	Handle(ctx context.Context, interaction *platform.Interaction)
}

// Session is the websocket event feed from the chat platform. It dials,
// identifies, keeps the heartbeat alive and hands interaction events to the
// dispatcher. Everything else the platform streams is ignored.
type Session struct {
	cfg     *config.Config
	http    *req.Client
	handler Handler
	logger  *zap.SugaredLogger
}

func ProvideSession(cfg *config.Config, httpClient *req.Client, handler Handler, loggerFactory *infra.LoggerFactory) *Session {
	return &Session{
		cfg:     cfg,
		http:    httpClient,
		handler: handler,
		logger:  loggerFactory.Create("GatewaySession").Sugar(),
	}
}

func (s *Session) Run() {
	for {
		if err := s.connectOnce(); err != nil {
			s.logger.Errorf("gateway session ended %v", err)
		}
		time.Sleep(reconnectDelay)
	}
}

func (s *Session) connectOnce() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.cfg.GatewayUrl, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.logger.Infof("gateway connected url[%v]", s.cfg.GatewayUrl)

	if err := s.identify(conn); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go s.writePump(conn, done)

	return s.readPump(conn)
}

func (s *Session) identify(conn *websocket.Conn) error {
	rawEvent, err := json.Marshal(&msg.IdentifyClientEvent{Token: s.cfg.BotToken})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(&msg.WsMessage{
		EventCode: msg.IdentifyCode,
		EventData: rawEvent,
	})
}

func (s *Session) writePump(conn *websocket.Conn, done <-chan struct{}) {
	heartbeatTicker := time.NewTicker(heartbeatPeriod)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-heartbeatTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(&msg.WsMessage{EventCode: msg.HeartbeatCode}); err != nil {
				s.logger.Errorf("heartbeat err: %v", err)
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Errorf("ping err: %v", err)
				return
			}

		case <-done:
			return
		}
	}
}

func (s *Session) readPump(conn *websocket.Conn) error {
	// Heartbeat. Drop the session if the platform stops ponging.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		wsMessage := &msg.WsMessage{}
		if err := conn.ReadJSON(wsMessage); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Errorf("read error: %v", err)
			} else {
				s.logger.Infof("read closing: %v", err)
			}
			return err
		}

		switch wsMessage.EventCode {
		case msg.HelloCode, msg.HeartbeatCode:
			// Keepalive chatter, nothing to do.

		case msg.ReadyCode:
			event := &msg.ReadyServerEvent{}
			if err := json.Unmarshal(wsMessage.EventData, event); err != nil {
				s.logger.Errorf("cannot unmarshal ReadyServerEvent %v", err)
				continue
			}
			s.logger.Infof("gateway ready sessionId[%v] botUserId[%v]", event.SessionId, event.BotUserId)
			s.cfg.LearnBotUserId(event.BotUserId)

		case msg.InteractionCode:
			event := &msg.InteractionServerEvent{}
			if err := json.Unmarshal(wsMessage.EventData, event); err != nil {
				s.logger.Errorf("cannot unmarshal InteractionServerEvent %v", err)
				continue
			}
			s.handler.Handle(context.Background(), s.interaction(event))

		default:
			s.logger.Warnf("invalid eventCode[%v]", wsMessage.EventCode)
		}
	}
}

func (s *Session) interaction(event *msg.InteractionServerEvent) *platform.Interaction {
	var kind platform.InteractionKind
	switch event.Kind {
	case "command":
		kind = platform.KindCommand
	case "button":
		kind = platform.KindButton
	case "modal":
		kind = platform.KindModal
	}

	responder := platform.NewRestResponder(s.cfg.ApiBaseUrl, s.http, s.logger, event.Id, event.Token)
	interaction := platform.NewInteraction(event.Id, kind, responder)
	interaction.GuildId = event.GuildId
	interaction.ChannelId = event.ChannelId
	interaction.ActorId = event.ActorId
	interaction.ActorTag = event.ActorTag
	interaction.ActorRoleIds = event.ActorRoleIds
	interaction.Command = event.Command
	interaction.CustomId = event.CustomId
	interaction.MessageId = event.MessageId
	for k, v := range event.Options {
		interaction.Options[k] = v
	}
	for k, v := range event.Fields {
		interaction.Fields[k] = v
	}
	return interaction
}
