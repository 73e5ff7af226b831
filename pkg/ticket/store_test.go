package ticket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/platform"
)

func newTestStore() (*Store, *fakeClient, *Tasks) {
	loggerFactory := infra.ProvideLoggerFactory()
	client := newFakeClient()
	tasks := ProvideTasks(loggerFactory)
	return ProvideStore(client, tasks, loggerFactory), client, tasks
}

func TestStoreGetUnknownIsSkeleton(t *testing.T) {
	store, _, _ := newTestStore()

	record := store.Get("nope")
	if record == nil {
		t.Fatalf("Get must never return nil")
	}
	if record.IsTicket() {
		t.Fatalf("unknown channel must not resolve to a ticket")
	}
	if record.Status != StatusOpen {
		t.Fatalf("skeleton status %v, want open", record.Status)
	}
}

func TestStoreSetIsImmediatelyVisible(t *testing.T) {
	store, _, tasks := newTestStore()

	record := &Record{CaseId: "#T-AAAA2222", ApplicantId: "user-1", Status: StatusOpen, CreatedAt: time.Now()}
	store.Set("chan-1", record)

	got := store.Get("chan-1")
	if got.CaseId != "#T-AAAA2222" {
		t.Fatalf("Set not visible on next Get: %+v", got)
	}
	tasks.Wait()
}

func TestStoreSetMirrorsTopic(t *testing.T) {
	store, client, tasks := newTestStore()

	record := &Record{CaseId: "#T-AAAA2222", ApplicantId: "user-1", Status: StatusClaimed, ClaimedBy: "staff-1", CreatedAt: time.Now()}
	store.Set("chan-1", record)
	tasks.Wait()

	topic := client.topicOf("chan-1")
	if topic == "" {
		t.Fatalf("topic mirror never written")
	}
	payload := &topicPayload{}
	if err := json.Unmarshal([]byte(topic), payload); err != nil {
		t.Fatalf("topic is not json: %v", err)
	}
	if payload.V != topicVersion || payload.CaseId != "#T-AAAA2222" || payload.ClaimedBy != "staff-1" {
		t.Fatalf("topic payload wrong: %+v", payload)
	}
}

func TestStoreSetMirrorsSnapshot(t *testing.T) {
	store, client, tasks := newTestStore()

	record := &Record{CaseId: "#T-AAAA2222", ApplicantId: "user-1", Status: StatusOpen, CreatedAt: time.Now()}
	store.Set("chan-1", record)

	// Transitions on the live record after Set must not leak into the
	// mirror write that Set queued.
	record.Status = StatusClaimed
	record.ClaimedBy = "staff-1"
	tasks.Wait()

	payload := &topicPayload{}
	if err := json.Unmarshal([]byte(client.topicOf("chan-1")), payload); err != nil {
		t.Fatalf("topic is not json: %v", err)
	}
	if payload.Status != StatusOpen || payload.ClaimedBy != "" {
		t.Fatalf("mirror observed a later transition: %+v", payload)
	}
}

func TestStoreDelete(t *testing.T) {
	store, _, tasks := newTestStore()

	store.Set("chan-1", &Record{CaseId: "#T-AAAA2222", Status: StatusOpen, CreatedAt: time.Now()})
	store.Delete("chan-1")
	tasks.Wait()

	if store.Get("chan-1").IsTicket() {
		t.Fatalf("deleted record still resolves")
	}
}

func TestStoreResolvePrefersMemory(t *testing.T) {
	store, _, tasks := newTestStore()

	record := &Record{CaseId: "#T-AAAA2222", Status: StatusOpen, CreatedAt: time.Now()}
	store.Set("chan-1", record)
	tasks.Wait()

	channel := &platform.Channel{Id: "chan-1", Name: "whitelist-john-1234", Topic: `{"v":1,"caseId":"#T-OTHER999","status":"open","createdAt":1}`}
	if got := store.Resolve(context.Background(), channel); got.CaseId != "#T-AAAA2222" {
		t.Fatalf("memory must win over topic, got %v", got.CaseId)
	}
}

func TestStoreResolveRecoversFromTopic(t *testing.T) {
	store, _, tasks := newTestStore()
	defer tasks.Wait()

	created := time.Now().Add(-time.Hour).UnixMilli()
	channel := &platform.Channel{
		Id:    "chan-2",
		Name:  "whitelist-john-1234",
		Topic: `{"v":1,"caseId":"#T-BBBB3333","applicantId":"user-2","status":"claimed","createdAt":` + jsonInt(created) + `,"claimedBy":"staff-9"}`,
	}

	record := store.Resolve(context.Background(), channel)
	if record.CaseId != "#T-BBBB3333" || record.Status != StatusClaimed || record.ClaimedBy != "staff-9" {
		t.Fatalf("topic recovery wrong: %+v", record)
	}

	// Backfilled into memory, not re-parsed every time.
	if got := store.Get("chan-2"); got.CaseId != "#T-BBBB3333" {
		t.Fatalf("recovered record not cached: %+v", got)
	}
}

func TestStoreResolveSynthesizesForTicketChannels(t *testing.T) {
	store, _, tasks := newTestStore()

	channel := &platform.Channel{Id: "chan-3", Name: "whitelist-orphan-0001", Topic: "no structure here"}
	record := store.Resolve(context.Background(), channel)
	tasks.Wait()

	if !record.IsTicket() {
		t.Fatalf("prefixed channel must synthesize a ticket record")
	}
	if record.Status != StatusOpen {
		t.Fatalf("synthesized status %v, want open", record.Status)
	}
}

func TestStoreResolveIgnoresRegularChannels(t *testing.T) {
	store, _, _ := newTestStore()

	channel := &platform.Channel{Id: "chan-4", Name: "general", Topic: "chit chat"}
	if store.Resolve(context.Background(), channel).IsTicket() {
		t.Fatalf("regular channel must not become a ticket")
	}
}

func TestParseTopicRejectsGarbage(t *testing.T) {
	for _, topic := range []string{"", "hello", "{not json", `{"v":1,"status":"open"}`} {
		if parseTopic(topic) != nil {
			t.Fatalf("parseTopic(%q) must fail", topic)
		}
	}
}

func jsonInt(v int64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
