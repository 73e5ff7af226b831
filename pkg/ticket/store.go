package ticket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/hashmap"
	"go.uber.org/zap"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/platform"
)

const topicVersion = 1

// topicPayload is the structured mirror written into the channel topic.
// The in-memory store is the sole authority; the mirror exists so a ticket
// created before a process restart can be partially reconstructed, and so
// humans inspecting the channel see the lifecycle state.
type topicPayload struct {
	V           int    `json:"v"`
	CaseId      string `json:"caseId"`
	ApplicantId string `json:"applicantId,omitempty"`
	Status      Status `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
	ClaimedBy   string `json:"claimedBy,omitempty"`
	ClosedBy    string `json:"closedBy,omitempty"`
}

// Store owns all TicketRecords, keyed by channel id.
type Store struct {
	mu      sync.Mutex
	records *hashmap.Map
	client  platform.Client
	tasks   *Tasks
	logger  *zap.SugaredLogger
}

func ProvideStore(client platform.Client, tasks *Tasks, loggerFactory *infra.LoggerFactory) *Store {
	return &Store{
		records: hashmap.New(),
		client:  client,
		tasks:   tasks,
		logger:  loggerFactory.Create("TicketStore").Sugar(),
	}
}

// Get never returns nil: unknown channels yield a skeleton whose empty
// CaseId marks it as not-a-ticket.
func (s *Store) Get(channelId string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, ok := s.records.Get(channelId); ok {
		return value.(*Record)
	}
	return &Record{Status: StatusOpen, CreatedAt: time.Now()}
}

// Set commits the record in memory synchronously; callers observe the new
// value on the next Get with no delay. The topic mirror runs as a tracked
// background task and its failure is logged and swallowed. The mirror gets
// a value snapshot so later transitions on the live record cannot race the
// in-flight write.
func (s *Store) Set(channelId string, record *Record) {
	s.mu.Lock()
	s.records.Put(channelId, record)
	snapshot := *record
	s.mu.Unlock()

	s.tasks.Go("topic-mirror", func() error {
		return s.mirror(channelId, &snapshot)
	})
}

func (s *Store) Delete(channelId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records.Remove(channelId)
}

// Resolve is the read-through path used by the dispatcher: memory first,
// then the structured topic payload, then, for channels that carry the
// ticket naming prefix, a synthesized fresh record. The synthesis is a
// degraded recovery path for tickets that predate a process restart, not
// a source of truth.
func (s *Store) Resolve(ctx context.Context, channel *platform.Channel) *Record {
	s.mu.Lock()
	if value, ok := s.records.Get(channel.Id); ok {
		s.mu.Unlock()
		return value.(*Record)
	}
	s.mu.Unlock()

	if record := parseTopic(channel.Topic); record != nil {
		s.logger.Infof("recovered ticket %v from topic of channel[%v]", record.CaseId, channel.Id)
		s.mu.Lock()
		s.records.Put(channel.Id, record)
		s.mu.Unlock()
		return record
	}

	if !strings.HasPrefix(channel.Name, ChannelPrefix) && !strings.HasPrefix(channel.Name, ClosedPrefix) {
		return &Record{Status: StatusOpen, CreatedAt: time.Now()}
	}

	record := &Record{
		CaseId:    MakeCaseId(),
		Status:    StatusOpen,
		CreatedAt: time.Now(),
	}
	s.logger.Warnf("synthesized metadata for ticket channel[%v] name[%v]", channel.Id, channel.Name)
	s.Set(channel.Id, record)
	return record
}

func (s *Store) mirror(channelId string, record *Record) error {
	payload := &topicPayload{
		V:           topicVersion,
		CaseId:      record.CaseId,
		ApplicantId: record.ApplicantId,
		Status:      record.Status,
		CreatedAt:   record.CreatedAt.UnixMilli(),
		ClaimedBy:   record.ClaimedBy,
		ClosedBy:    record.ClosedBy,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.SetTopic(ctx, channelId, string(raw))
}

func parseTopic(topic string) *Record {
	if !strings.HasPrefix(strings.TrimSpace(topic), "{") {
		return nil
	}
	payload := &topicPayload{}
	if err := json.Unmarshal([]byte(topic), payload); err != nil {
		return nil
	}
	if payload.CaseId == "" {
		return nil
	}

	record := &Record{
		CaseId:      payload.CaseId,
		ApplicantId: payload.ApplicantId,
		Status:      payload.Status,
		CreatedAt:   time.UnixMilli(payload.CreatedAt),
		ClaimedBy:   payload.ClaimedBy,
		ClosedBy:    payload.ClosedBy,
	}
	if record.Status == "" {
		record.Status = StatusOpen
	}
	return record
}
