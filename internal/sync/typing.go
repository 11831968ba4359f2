package sync

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"snipchat/internal/event"
	"snipchat/internal/feed"
	"snipchat/internal/model"
)

const (
	// typingDebounce coalesces keystroke signals so the store sees one
	// upsert per burst, not one per keystroke.
	typingDebounce = 300 * time.Millisecond

	// typingSweepInterval re-evaluates staleness at half the expiry window,
	// so a row whose owner crashed without deleting it still disappears
	// within one window of going stale.
	typingSweepInterval = model.TypingStaleAfter / 2
)

type typingWriterState int

const (
	typingIdle typingWriterState = iota
	typingPending
	typingSent
)

// typingWriter is the debounced side of the typing signal: a timer-backed
// idle/pending/sent machine owned by the view loop. Input signals arm the
// timer; the timer firing performs the upsert.
type typingWriter struct {
	state          typingWriterState
	conversationID string
	timer          *time.Timer

	// wrote tracks whether any row went out since the last stop, so the
	// stop transition knows whether there is anything to delete.
	wrote bool
}

func (w *typingWriter) timerEvents() <-chan time.Time {
	if w.timer == nil {
		return nil
	}
	return w.timer.C
}

func (w *typingWriter) arm() {
	if w.timer == nil {
		w.timer = time.NewTimer(typingDebounce)
		return
	}
	if !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
	w.timer.Reset(typingDebounce)
}

func (w *typingWriter) disarm() {
	if w.timer == nil {
		return
	}
	if !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
}

// onTypingInput is the idle→typing transition. Input while the timer is
// already armed coalesces into it rather than pushing it out, so the flush
// happens one debounce interval after the burst started and continuous
// typing keeps the row fresh in debounce-sized steps.
func (v *View) onTypingInput() {
	conversationID := v.conversations.selectedID
	if conversationID == "" {
		return
	}

	if v.typingOut.conversationID != conversationID {
		// Selection changed mid-burst; the old conversation's row goes
		// stale on its own.
		v.typingOut.disarm()
		v.typingOut.state = typingIdle
		v.typingOut.wrote = false
	}
	v.typingOut.conversationID = conversationID

	if v.typingOut.state != typingPending {
		v.typingOut.state = typingPending
		v.typingOut.arm()
	}
}

// flushTyping runs when the debounce timer fires: write the row. Fire and
// forget, logged only.
func (v *View) flushTyping(ctx context.Context) {
	if v.typingOut.state == typingIdle || v.typingOut.conversationID == "" {
		return
	}
	v.typingOut.state = typingSent
	v.typingOut.wrote = true

	conversationID := v.typingOut.conversationID
	at := v.now()
	go func() {
		wctx, cancel := v.writeCtx(ctx)
		defer cancel()
		if err := v.stores.Typing.Upsert(wctx, conversationID, v.user.ID, at); err != nil {
			v.logger.Warn("typing upsert failed",
				zap.String("conversationId", conversationID), zap.Error(err))
		}
	}()
}

// onTypingStop is the explicit typing→idle transition, fired on send and
// on input cleared. The delete is best effort; readers expire the row by
// staleness regardless.
func (v *View) onTypingStop(ctx context.Context) {
	conversationID := v.typingOut.conversationID
	wrote := v.typingOut.wrote

	v.typingOut.disarm()
	v.typingOut.state = typingIdle
	v.typingOut.wrote = false

	if !wrote || conversationID == "" {
		return
	}
	go func() {
		wctx, cancel := v.writeCtx(ctx)
		defer cancel()
		if err := v.stores.Typing.Delete(wctx, conversationID, v.user.ID); err != nil {
			v.logger.Warn("typing delete failed",
				zap.String("conversationId", conversationID), zap.Error(err))
		}
	}()
}

// typingState is the reader side: who else is typing in the selected
// conversation. rows keeps every observed row; staleness is applied at
// render time so a row can expire without any delete ever arriving.
type typingState struct {
	conversationID string
	rows           map[string]time.Time
	visible        []string
}

// resetTyping clears reader and writer state on selection change.
func (v *View) resetTyping(ctx context.Context, conversationID string) {
	v.onTypingStop(ctx)
	v.typingOut.conversationID = conversationID

	v.typing = typingState{
		conversationID: conversationID,
		rows:           make(map[string]time.Time),
	}
}

func (v *View) loadTypingRows(ctx context.Context, conversationID string) {
	gen := v.messages.gen
	go func() {
		rows, err := v.stores.Typing.List(ctx, conversationID)
		v.deliver(loadResult{
			kind:           loadTypingRows,
			gen:            gen,
			conversationID: conversationID,
			typing:         rows,
			err:            err,
		})
	}()
}

func (v *View) commitTypingRows(res loadResult) {
	if res.conversationID != v.typing.conversationID {
		return
	}
	if res.err != nil {
		// Not worth a user-facing notification; the feed catches us up.
		v.logger.Warn("failed to load typing rows", zap.Error(res.err))
		return
	}

	for _, row := range res.typing {
		if row.UserID == v.user.ID {
			continue
		}
		v.typing.rows[row.UserID] = row.LastTypedAt
	}
	v.refreshTyping()
}

func (v *View) onTypingEvent(ev feed.Event) {
	switch ev.Op {
	case feed.OpInsert, feed.OpUpdate:
		var row model.TypingStatus
		if err := json.Unmarshal(ev.Row, &row); err != nil {
			v.logger.Warn("malformed typing event", zap.Error(err))
			return
		}
		if row.ConversationID != v.typing.conversationID || row.UserID == v.user.ID {
			return
		}
		v.typing.rows[row.UserID] = row.LastTypedAt
	case feed.OpDelete:
		var row model.TypingStatus
		if err := json.Unmarshal(ev.Old, &row); err != nil {
			v.logger.Warn("malformed typing event", zap.Error(err))
			return
		}
		if row.ConversationID != v.typing.conversationID {
			return
		}
		delete(v.typing.rows, row.UserID)
	}
	v.refreshTyping()
}

// sweepTyping re-derives the visible set on the periodic timer, so rows
// expire even when no event ever arrives for them.
func (v *View) sweepTyping() {
	if len(v.typing.rows) == 0 && len(v.typing.visible) == 0 {
		return
	}
	v.refreshTyping()
}

// refreshTyping recomputes who counts as typing right now and pushes the
// set when it changed. A row at or past the staleness window is never
// rendered, delete notification or not.
func (v *View) refreshTyping() {
	now := v.now()

	visible := make([]string, 0, len(v.typing.rows))
	for userID, at := range v.typing.rows {
		row := model.TypingStatus{LastTypedAt: at}
		if row.Expired(now) {
			delete(v.typing.rows, userID)
			continue
		}
		visible = append(visible, userID)
	}
	sort.Strings(visible)

	if equalStrings(visible, v.typing.visible) {
		return
	}
	v.typing.visible = visible
	v.push.Push(event.TypingUpdate, event.TypingUpdatePayload{
		ConversationID: v.typing.conversationID,
		UserIDs:        visible,
	})
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
