package sync

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"snipchat/internal/feed"
	"snipchat/internal/model"
)

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type pushed struct {
	name    string
	payload any
}

type recordingPusher struct {
	mu     stdsync.Mutex
	events []pushed
}

func (p *recordingPusher) Push(name string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushed{name: name, payload: payload})
}

func (p *recordingPusher) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.name == name {
			n++
		}
	}
	return n
}

func (p *recordingPusher) last(name string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].name == name {
			return p.events[i].payload, true
		}
	}
	return nil, false
}

type stubConversationStore struct {
	convs  []model.Conversation
	err    error
	member map[string]bool
}

func (s *stubConversationStore) ListForUser(_ context.Context, _ string) ([]model.Conversation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.convs, nil
}

// IsParticipant answers from the member map; a nil map admits everyone so
// tests that never configure membership are unaffected by the gate.
func (s *stubConversationStore) IsParticipant(_ context.Context, conversationID, _ string) (bool, error) {
	if s.member == nil {
		return true, nil
	}
	return s.member[conversationID], nil
}

type stubMessageStore struct {
	mu        stdsync.Mutex
	msgs      map[string][]model.Message
	summaries map[string]model.MessageSummary
	listErr   error
	inserted  []model.Message
	deleted   [][2]string
	receiptCh chan []model.MessageReceipt
}

func newStubMessageStore() *stubMessageStore {
	return &stubMessageStore{
		msgs:      make(map[string][]model.Message),
		summaries: make(map[string]model.MessageSummary),
		receiptCh: make(chan []model.MessageReceipt, 8),
	}
}

func (s *stubMessageStore) ListByConversation(_ context.Context, conversationID string) ([]model.Message, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[conversationID], nil
}

func (s *stubMessageStore) LatestSummaries(_ context.Context, _ []string) (map[string]model.MessageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaries, nil
}

func (s *stubMessageStore) Insert(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, *msg)
	return nil
}

func (s *stubMessageStore) Delete(_ context.Context, messageID, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, [2]string{messageID, senderID})
	return nil
}

func (s *stubMessageStore) InsertReceipts(_ context.Context, receipts []model.MessageReceipt) error {
	s.receiptCh <- receipts
	return nil
}

type stubTypingStore struct {
	rows     []model.TypingStatus
	upsertCh chan model.TypingStatus
	deleteCh chan [2]string
}

func newStubTypingStore() *stubTypingStore {
	return &stubTypingStore{
		upsertCh: make(chan model.TypingStatus, 8),
		deleteCh: make(chan [2]string, 8),
	}
}

func (s *stubTypingStore) Upsert(_ context.Context, conversationID, userID string, at time.Time) error {
	s.upsertCh <- model.TypingStatus{ConversationID: conversationID, UserID: userID, LastTypedAt: at}
	return nil
}

func (s *stubTypingStore) Delete(_ context.Context, conversationID, userID string) error {
	s.deleteCh <- [2]string{conversationID, userID}
	return nil
}

func (s *stubTypingStore) List(_ context.Context, _ string) ([]model.TypingStatus, error) {
	return s.rows, nil
}

type stubCallStore struct {
	mu          stdsync.Mutex
	active      *model.Call
	activeErr   error
	created     []model.Call
	createErr   error
	statusErr   error
	statusCalls [][2]string
}

func (s *stubCallStore) ActiveForConversation(_ context.Context, _ string) (*model.Call, error) {
	return s.active, s.activeErr
}

func (s *stubCallStore) Create(_ context.Context, call *model.Call) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, *call)
	return nil
}

func (s *stubCallStore) SetStatus(_ context.Context, callID, status string) (*model.Call, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCalls = append(s.statusCalls, [2]string{callID, status})
	return &model.Call{ID: callID, Status: status}, nil
}

type stubAdmin struct {
	createResult *model.Conversation
	createErr    error
	deleted      [][2]string
	deleteErr    error
}

func (s *stubAdmin) Create(_ context.Context, _ string, _ *string, _ []string) (*model.Conversation, error) {
	return s.createResult, s.createErr
}

func (s *stubAdmin) Delete(_ context.Context, conversationID, requesterID string) error {
	s.deleted = append(s.deleted, [2]string{conversationID, requesterID})
	return s.deleteErr
}

type stubLinker struct{}

func (stubLinker) MintURL(conversationID, _ string) (string, error) {
	return "https://calls.example.com/rooms/" + conversationID, nil
}

func newTestView(t *testing.T, stores Stores) (*View, *recordingPusher) {
	t.Helper()

	if stores.Conversations == nil {
		stores.Conversations = &stubConversationStore{}
	}
	if stores.Messages == nil {
		stores.Messages = newStubMessageStore()
	}
	if stores.Typing == nil {
		stores.Typing = newStubTypingStore()
	}
	if stores.Calls == nil {
		stores.Calls = &stubCallStore{}
	}
	if stores.Admin == nil {
		stores.Admin = &stubAdmin{}
	}
	if stores.Links == nil {
		stores.Links = stubLinker{}
	}

	user := model.User{ID: "me", FirstName: "Mel", LastName: "Ortiz"}
	push := &recordingPusher{}
	v := NewView(user, feed.New(zap.NewNop()), stores, push, zap.NewNop())
	v.now = func() time.Time { return testBase }
	t.Cleanup(v.Close)
	return v, push
}

// waitLoad receives the next load result a fetch goroutine delivered.
func waitLoad(t *testing.T, v *View, kind loadKind) loadResult {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case res := <-v.loads:
			if res.kind == kind {
				return res
			}
		case <-deadline:
			t.Fatalf("timed out waiting for load result of kind %d", kind)
		}
	}
}

func waitReceipts(t *testing.T, ch chan []model.MessageReceipt) []model.MessageReceipt {
	t.Helper()
	select {
	case receipts := <-ch:
		return receipts
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for receipt batch")
		return nil
	}
}
