package sync

import (
	"encoding/json"

	"go.uber.org/zap"

	"snipchat/internal/event"
	"snipchat/internal/feed"
	"snipchat/internal/model"
)

// onAuthEvent reacts to auth-state changes for this user. A sign-out from
// any device revokes the session everywhere: the client is told, then the
// connection is dropped.
func (v *View) onAuthEvent(ev feed.Event) {
	var auth model.AuthEvent
	if err := json.Unmarshal(ev.Row, &auth); err != nil {
		v.logger.Warn("malformed auth event", zap.Error(err))
		return
	}

	if auth.Event == model.AuthEventSignOut {
		v.push.Push(event.SessionEnded, nil)
		if v.onSessionEnd != nil {
			v.onSessionEnd()
		}
	}
}

// onUserEvent keeps the session's own profile current, so an avatar or
// name change made over HTTP shows up on every open connection.
func (v *View) onUserEvent(ev feed.Event) {
	if ev.Op != feed.OpUpdate {
		return
	}

	var user model.User
	if err := json.Unmarshal(ev.Row, &user); err != nil {
		v.logger.Warn("malformed user event", zap.Error(err))
		return
	}
	if user.ID != v.user.ID {
		return
	}

	v.user.FirstName = user.FirstName
	v.user.LastName = user.LastName
	v.user.AvatarURL = user.AvatarURL
	v.push.Push(event.SessionMe, v.user)
}
