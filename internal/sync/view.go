// Package sync keeps one connected client's view state consistent with the
// backend of record. Each websocket connection owns a View: a single event
// loop that applies loaded snapshots, change-feed notifications, and client
// intents, in arrival order, to per-entity state cells, and pushes the
// resulting state back over the connection.
//
// The loop is the only goroutine that touches view state. Reads that can be
// slow (conversation list, message history) run in helper goroutines and
// deliver their results back into the loop as loadResult values; every load
// carries a generation number so a superseded fetch that resolves late is
// discarded instead of clobbering newer state.
package sync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"snipchat/internal/event"
	"snipchat/internal/feed"
	"snipchat/internal/model"
)

const (
	intentBuffer = 16
	writeTimeout = 5 * time.Second
)

// Pusher delivers state events to the connected client. Implementations
// must not block the caller indefinitely.
type Pusher interface {
	Push(name string, payload any)
}

// ConversationStore is the slice of the conversation repository the view
// reads from.
type ConversationStore interface {
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// MessageStore is the slice of the message repository the view uses.
type MessageStore interface {
	ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	LatestSummaries(ctx context.Context, conversationIDs []string) (map[string]model.MessageSummary, error)
	Insert(ctx context.Context, msg *model.Message) error
	Delete(ctx context.Context, messageID, senderID string) error
	InsertReceipts(ctx context.Context, receipts []model.MessageReceipt) error
}

// TypingStore is the slice of the typing repository the view uses.
type TypingStore interface {
	Upsert(ctx context.Context, conversationID, userID string, at time.Time) error
	Delete(ctx context.Context, conversationID, userID string) error
	List(ctx context.Context, conversationID string) ([]model.TypingStatus, error)
}

// CallStore is the slice of the call repository the view uses.
type CallStore interface {
	ActiveForConversation(ctx context.Context, conversationID string) (*model.Call, error)
	Create(ctx context.Context, call *model.Call) error
	SetStatus(ctx context.Context, callID, status string) (*model.Call, error)
}

// ConversationAdmin performs the privileged conversation operations on
// behalf of the client.
type ConversationAdmin interface {
	Create(ctx context.Context, creatorID string, name *string, participantIDs []string) (*model.Conversation, error)
	Delete(ctx context.Context, conversationID, requesterID string) error
}

// CallLinker mints external conferencing room links.
type CallLinker interface {
	MintURL(conversationID, identity string) (string, error)
}

// Stores bundles everything the view reads and writes through.
type Stores struct {
	Conversations ConversationStore
	Messages      MessageStore
	Typing        TypingStore
	Calls         CallStore
	Admin         ConversationAdmin
	Links         CallLinker
}

// View is the synchronization state machine for one connected client.
type View struct {
	user   model.User
	feed   *feed.Feed
	stores Stores
	push   Pusher
	logger *zap.Logger

	// now is replaceable so staleness windows can be tested without
	// sleeping.
	now func() time.Time

	// onSessionEnd is invoked when the user's session is revoked; the hub
	// uses it to drop the connection.
	onSessionEnd func()

	intents chan event.WsEvent
	loads   chan loadResult
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	convSub    *feed.Subscription
	authSub    *feed.Subscription
	userSub    *feed.Subscription
	callSub    *feed.Subscription
	msgSub     *feed.Subscription
	receiptSub *feed.Subscription
	typingSub  *feed.Subscription

	conversations convListState
	messages      messageState
	typing        typingState
	typingOut     typingWriter
	call          callState
}

type loadKind int

const (
	loadConversationList loadKind = iota
	loadMessageHistory
	loadTypingRows
)

// loadResult is a loaded(snapshot) event delivered back into the loop by a
// fetch goroutine.
type loadResult struct {
	kind           loadKind
	gen            uint64
	conversationID string

	views    []event.ConversationView
	messages []model.Message
	typing   []model.TypingStatus
	err      error
}

func NewView(user model.User, changes *feed.Feed, stores Stores, push Pusher, logger *zap.Logger) *View {
	return &View{
		user:    user,
		feed:    changes,
		stores:  stores,
		push:    push,
		logger:  logger.With(zap.String("userId", user.ID)),
		now:     time.Now,
		intents: make(chan event.WsEvent, intentBuffer),
		loads:   make(chan loadResult, 8),
		done:    make(chan struct{}),
	}
}

// OnSessionEnd registers the callback fired when the session is revoked.
// Must be called before Start.
func (v *View) OnSessionEnd(fn func()) {
	v.onSessionEnd = fn
}

// Start opens the view's standing subscriptions and begins the event loop.
// Conversation-scoped subscriptions (receipts, typing) are opened lazily on
// selection.
func (v *View) Start(ctx context.Context) {
	v.convSub = v.feed.Subscribe(feed.RelationConversations, v.user.ID)
	v.authSub = v.feed.Subscribe(feed.RelationAuth, v.user.ID)
	v.userSub = v.feed.Subscribe(feed.RelationUsers, v.user.ID)

	// The calls and messages feeds carry no per-user filter, so the view
	// subscribes wide and filters by conversation membership itself.
	v.callSub = v.feed.Subscribe(feed.RelationCalls, feed.AllKeys)
	v.msgSub = v.feed.Subscribe(feed.RelationMessages, feed.AllKeys)

	v.wg.Add(1)
	go v.run(ctx)

	v.push.Push(event.SessionMe, v.user)
	v.reloadConversations(ctx)
}

// Close tears the view down: stops the loop, then releases every
// subscription. Safe to call more than once.
func (v *View) Close() {
	v.once.Do(func() {
		close(v.done)
		v.wg.Wait()

		for _, sub := range []*feed.Subscription{
			v.convSub, v.authSub, v.userSub, v.callSub,
			v.msgSub, v.receiptSub, v.typingSub,
		} {
			if sub != nil {
				sub.Close()
			}
		}
	})
}

// HandleIntent enqueues a client intent for the loop. A client flooding
// intents faster than the loop drains them has the overflow dropped.
func (v *View) HandleIntent(ev event.WsEvent) {
	select {
	case v.intents <- ev:
	case <-v.done:
	default:
		v.logger.Warn("intent buffer full, dropping intent", zap.String("event", ev.Event))
	}
}

func subEvents(s *feed.Subscription) <-chan feed.Event {
	if s == nil {
		return nil
	}
	return s.C
}

func (v *View) run(ctx context.Context) {
	defer v.wg.Done()

	sweep := time.NewTicker(typingSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.done:
			return
		case it := <-v.intents:
			v.handleIntent(ctx, it)
		case res := <-v.loads:
			v.commitLoad(ctx, res)
		case ev := <-v.convSub.C:
			v.onConversationEvent(ctx, ev)
		case ev := <-v.msgSub.C:
			v.onMessageEvent(ctx, ev)
		case ev := <-subEvents(v.receiptSub):
			v.onReceiptEvent(ev)
		case ev := <-subEvents(v.typingSub):
			v.onTypingEvent(ev)
		case ev := <-v.callSub.C:
			v.onCallEvent(ctx, ev)
		case ev := <-v.authSub.C:
			v.onAuthEvent(ev)
		case ev := <-v.userSub.C:
			v.onUserEvent(ev)
		case <-sweep.C:
			v.sweepTyping()
		case <-v.typingOut.timerEvents():
			v.flushTyping(ctx)
		}
	}
}

func (v *View) commitLoad(ctx context.Context, res loadResult) {
	switch res.kind {
	case loadConversationList:
		v.commitConversations(ctx, res)
	case loadMessageHistory:
		v.commitMessages(ctx, res)
	case loadTypingRows:
		v.commitTypingRows(res)
	}
}

func (v *View) handleIntent(ctx context.Context, ev event.WsEvent) {
	switch ev.Event {
	case event.ConversationSelect:
		var p event.SelectConversationPayload
		if !v.decode(ev, &p) {
			return
		}
		v.selectConversation(ctx, p.ConversationID)
	case event.ConversationCreate:
		var p event.CreateConversationPayload
		if !v.decode(ev, &p) {
			return
		}
		v.createConversation(ctx, p)
	case event.ConversationDelete:
		var p event.DeleteConversationPayload
		if !v.decode(ev, &p) {
			return
		}
		v.deleteConversation(ctx, p.ConversationID)
	case event.MessageSend:
		var p event.SendMessagePayload
		if !v.decode(ev, &p) {
			return
		}
		v.sendMessage(ctx, p)
	case event.MessageDelete:
		var p event.DeleteMessagePayload
		if !v.decode(ev, &p) {
			return
		}
		v.deleteMessage(ctx, p.MessageID)
	case event.TypingInput:
		v.onTypingInput()
	case event.TypingStop:
		v.onTypingStop(ctx)
	case event.CallStart:
		v.startCall(ctx)
	case event.CallAccept:
		var p event.CallRefPayload
		if !v.decode(ev, &p) {
			return
		}
		v.acceptCall(ctx, p.CallID)
	case event.CallDecline:
		var p event.CallRefPayload
		if !v.decode(ev, &p) {
			return
		}
		v.declineCall(ctx, p.CallID)
	case event.CallEnd:
		var p event.CallRefPayload
		if !v.decode(ev, &p) {
			return
		}
		v.endCall(ctx, p.CallID)
	default:
		v.logger.Warn("unknown intent", zap.String("event", ev.Event))
	}
}

func (v *View) decode(ev event.WsEvent, out any) bool {
	if err := json.Unmarshal(ev.Payload, out); err != nil {
		v.logger.Warn("malformed intent payload",
			zap.String("event", ev.Event), zap.Error(err))
		return false
	}
	return true
}

func (v *View) notifyError(text string) {
	v.push.Push(event.Notification, event.NotificationPayload{Level: "error", Text: text})
}

func (v *View) notifyInfo(text string) {
	v.push.Push(event.Notification, event.NotificationPayload{Level: "info", Text: text})
}

func (v *View) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, writeTimeout)
}
