package sync

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"snipchat/internal/event"
	"snipchat/internal/feed"
	"snipchat/internal/metrics"
	"snipchat/internal/model"
	"snipchat/internal/repo"
)

// callState tracks at most one outgoing-or-joined call and one incoming
// prompt. Terminal transitions observed on the feed clear whichever slot
// matches by id.
type callState struct {
	active   *model.Call
	incoming *model.Call
}

// startCall creates a ringing call for the selected conversation. The
// non-terminal pre-check runs before the insert; the window between check
// and insert is a known race, narrowed again by the store's own re-check.
func (v *View) startCall(ctx context.Context) {
	conversationID := v.conversations.selectedID
	if conversationID == "" {
		return
	}

	wctx, cancel := v.writeCtx(ctx)
	defer cancel()

	existing, err := v.stores.Calls.ActiveForConversation(wctx, conversationID)
	if err != nil {
		v.logger.Error("failed to check for an active call", zap.Error(err))
		v.notifyError("Could not start the call.")
		metrics.CallsStartedTotal.WithLabelValues("error").Inc()
		return
	}
	if existing != nil {
		v.notifyError("A call is already ringing or active in this conversation.")
		metrics.CallsStartedTotal.WithLabelValues("rejected").Inc()
		return
	}

	callURL, err := v.stores.Links.MintURL(conversationID, v.user.ID)
	if err != nil {
		v.logger.Error("failed to mint call link", zap.Error(err))
		v.notifyError("Could not start the call.")
		metrics.CallsStartedTotal.WithLabelValues("error").Inc()
		return
	}

	call := &model.Call{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		CallerID:       v.user.ID,
		Status:         model.CallStatusRinging,
		CallURL:        callURL,
		CreatedAt:      v.now(),
	}
	if err := v.stores.Calls.Create(wctx, call); err != nil {
		if errors.Is(err, repo.ErrCallInProgress) {
			v.notifyError("A call is already ringing or active in this conversation.")
			metrics.CallsStartedTotal.WithLabelValues("rejected").Inc()
			return
		}
		v.logger.Error("failed to create call", zap.Error(err))
		v.notifyError("Could not start the call.")
		metrics.CallsStartedTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.CallsStartedTotal.WithLabelValues("ok").Inc()

	v.call.active = call
	v.push.Push(event.CallState, call)
}

func (v *View) acceptCall(ctx context.Context, callID string) {
	wctx, cancel := v.writeCtx(ctx)
	defer cancel()

	call, err := v.stores.Calls.SetStatus(wctx, callID, model.CallStatusActive)
	if err != nil {
		v.logger.Error("failed to accept call", zap.String("callId", callID), zap.Error(err))
		v.notifyError("Could not join the call.")
		return
	}

	if v.call.incoming != nil && v.call.incoming.ID == callID {
		v.call.incoming = nil
	}
	v.call.active = call
	v.push.Push(event.CallState, call)
}

func (v *View) declineCall(ctx context.Context, callID string) {
	wctx, cancel := v.writeCtx(ctx)
	defer cancel()

	if _, err := v.stores.Calls.SetStatus(wctx, callID, model.CallStatusDeclined); err != nil {
		v.logger.Error("failed to decline call", zap.String("callId", callID), zap.Error(err))
		v.notifyError("Could not decline the call.")
	}
	// Local state clears when the update notification comes back around.
}

func (v *View) endCall(ctx context.Context, callID string) {
	wctx, cancel := v.writeCtx(ctx)
	defer cancel()

	if _, err := v.stores.Calls.SetStatus(wctx, callID, model.CallStatusEnded); err != nil {
		v.logger.Error("failed to end call", zap.String("callId", callID), zap.Error(err))
		v.notifyError("Could not end the call.")
	}
}

// onCallEvent reconciles call notifications from the wide calls stream.
// Inserts from other users become incoming-call prompts only after a
// membership check on the referenced conversation; the stream itself has
// no participant filter.
func (v *View) onCallEvent(ctx context.Context, ev feed.Event) {
	raw := ev.Row
	if ev.Op == feed.OpDelete {
		raw = ev.Old
	}

	var call model.Call
	if err := json.Unmarshal(raw, &call); err != nil {
		v.logger.Warn("malformed call event", zap.Error(err))
		return
	}

	switch ev.Op {
	case feed.OpInsert:
		v.onCallInsert(ctx, call)
	case feed.OpUpdate:
		v.onCallUpdate(call)
	case feed.OpDelete:
		v.clearCall(call.ID, "")
	}
}

func (v *View) onCallInsert(ctx context.Context, call model.Call) {
	if call.CallerID == v.user.ID {
		// Our own call echoing back, or placed from another device.
		if v.call.active == nil {
			v.call.active = &call
			v.push.Push(event.CallState, call)
		}
		return
	}

	if !v.isMember(ctx, call.ConversationID) {
		return
	}

	v.call.incoming = &call
	v.push.Push(event.CallIncoming, call)
}

func (v *View) onCallUpdate(call model.Call) {
	if call.IsTerminal() {
		v.clearCall(call.ID, call.Status)
		return
	}

	if v.call.active != nil && v.call.active.ID == call.ID {
		v.call.active = &call
		v.push.Push(event.CallState, call)
	}
	if v.call.incoming != nil && v.call.incoming.ID == call.ID && call.Status == model.CallStatusActive {
		// Answered on another device; retire the prompt.
		v.call.incoming = nil
		v.push.Push(event.CallCleared, event.CallClearedPayload{CallID: call.ID, Status: call.Status})
	}
}

// clearCall removes a finished call from whichever slot holds it and
// raises the one-shot notification, distinguishing an ended call from a
// declined or missed one.
func (v *View) clearCall(callID, status string) {
	matched := false
	if v.call.active != nil && v.call.active.ID == callID {
		v.call.active = nil
		matched = true
	}
	if v.call.incoming != nil && v.call.incoming.ID == callID {
		v.call.incoming = nil
		matched = true
	}
	if !matched {
		return
	}

	v.push.Push(event.CallCleared, event.CallClearedPayload{CallID: callID, Status: status})
	switch status {
	case model.CallStatusDeclined:
		v.notifyInfo("Call declined.")
	case model.CallStatusEnded:
		v.notifyInfo("Call ended.")
	}
}
