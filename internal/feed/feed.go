// Package feed implements the change-feed subscription mechanism the
// synchronizers consume: typed insert/update/delete notifications for rows
// of a named relation, filtered by an equality key. Delivery order is only
// meaningful within a single (relation, key) stream; consumers re-derive
// state rather than assuming cross-relation ordering.
package feed

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"snipchat/internal/metrics"
)

// Op is the kind of change carried by an event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Relation names published by the repositories.
const (
	RelationConversations = "conversations"
	RelationMessages      = "messages"
	RelationReceipts      = "message_receipts"
	RelationTyping        = "typing_status"
	RelationCalls         = "calls"
	RelationUsers         = "users"
	RelationAuth          = "auth_state"
)

// AllKeys subscribes to every key of a relation. Call events are consumed
// this way: the feed carries no participant filter, so each subscriber
// verifies conversation membership itself before acting.
const AllKeys = "*"

// Event is one change notification. Row carries the new row for inserts and
// updates, Old the previous row for updates and deletes. Insert payloads
// carry raw columns without joined profiles, so consumers resolve
// embedded data from state they already hold.
type Event struct {
	Relation string          `json:"relation"`
	Op       Op              `json:"op"`
	Key      string          `json:"key"`
	Row      json.RawMessage `json:"row,omitempty"`
	Old      json.RawMessage `json:"old,omitempty"`
}

// subscription buffer size. A subscriber that falls this far behind has its
// events dropped; synchronizers recover by re-deriving on their next load.
const subscriptionBuffer = 64

// Subscription is a scoped resource: every subscriber must Close it on
// shutdown or the slot leaks and events are duplicated on reconnect.
type Subscription struct {
	C chan Event

	feed      *Feed
	relation  string
	key       string
	closeOnce sync.Once
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.feed.unsubscribe(s)
	})
}

// Feed fans change events out to subscribers.
type Feed struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger *zap.Logger
}

func New(logger *zap.Logger) *Feed {
	return &Feed{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

func streamKey(relation, key string) string {
	return relation + "/" + key
}

// Subscribe registers for events on relation whose Key equals key, or for
// all events on the relation when key is AllKeys.
func (f *Feed) Subscribe(relation, key string) *Subscription {
	sub := &Subscription{
		C:        make(chan Event, subscriptionBuffer),
		feed:     f,
		relation: relation,
		key:      key,
	}

	sk := streamKey(relation, key)
	f.mu.Lock()
	set, ok := f.subs[sk]
	if !ok {
		set = make(map[*Subscription]struct{})
		f.subs[sk] = set
	}
	set[sub] = struct{}{}
	f.mu.Unlock()

	return sub
}

func (f *Feed) unsubscribe(sub *Subscription) {
	sk := streamKey(sub.relation, sub.key)
	f.mu.Lock()
	if set, ok := f.subs[sk]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(f.subs, sk)
		}
	}
	f.mu.Unlock()
}

// Publish delivers ev to subscribers of (relation, ev.Key) and to wildcard
// subscribers of the relation. Delivery never blocks the publisher: a full
// subscriber buffer drops the event with a warning.
func (f *Feed) Publish(ev Event) {
	metrics.FeedEventsTotal.WithLabelValues(ev.Relation, string(ev.Op)).Inc()

	f.mu.RLock()
	targets := make([]*Subscription, 0, 4)
	for sub := range f.subs[streamKey(ev.Relation, ev.Key)] {
		targets = append(targets, sub)
	}
	if ev.Key != AllKeys {
		for sub := range f.subs[streamKey(ev.Relation, AllKeys)] {
			targets = append(targets, sub)
		}
	}
	f.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.C <- ev:
		default:
			f.logger.Warn("feed subscriber buffer full, dropping event",
				zap.String("relation", ev.Relation),
				zap.String("op", string(ev.Op)),
				zap.String("key", ev.Key),
			)
		}
	}
}

// Insert marshals row and publishes an insert event. Marshal failures are
// logged and the event is skipped; rows are our own model types, so a
// failure here is a programming error, not an operational one.
func (f *Feed) Insert(relation, key string, row any) {
	raw, err := json.Marshal(row)
	if err != nil {
		f.logger.Error("failed to marshal feed row", zap.String("relation", relation), zap.Error(err))
		return
	}
	f.Publish(Event{Relation: relation, Op: OpInsert, Key: key, Row: raw})
}

// Update marshals the new row and publishes an update event.
func (f *Feed) Update(relation, key string, row any) {
	raw, err := json.Marshal(row)
	if err != nil {
		f.logger.Error("failed to marshal feed row", zap.String("relation", relation), zap.Error(err))
		return
	}
	f.Publish(Event{Relation: relation, Op: OpUpdate, Key: key, Row: raw})
}

// Delete marshals the deleted row and publishes a delete event.
func (f *Feed) Delete(relation, key string, old any) {
	raw, err := json.Marshal(old)
	if err != nil {
		f.logger.Error("failed to marshal feed row", zap.String("relation", relation), zap.Error(err))
		return
	}
	f.Publish(Event{Relation: relation, Op: OpDelete, Key: key, Old: raw})
}
