package service

import (
	"fmt"
	"net/url"
	"time"

	"github.com/livekit/protocol/auth"
	"go.uber.org/zap"
)

// CallLinkService mints the opaque external-conferencing room links stored
// on call records. The room name embeds the conversation id and a
// timestamp; the joining identity gets a signed room-scoped token. Media
// itself never touches this service.
type CallLinkService struct {
	apiKey    string
	apiSecret string
	baseURL   string
	logger    *zap.Logger
}

func NewCallLinkService(apiKey, apiSecret, baseURL string, logger *zap.Logger) *CallLinkService {
	return &CallLinkService{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// MintURL returns a join link for a fresh room tied to the conversation.
func (s *CallLinkService) MintURL(conversationID, identity string) (string, error) {
	room := fmt.Sprintf("%s-%d", conversationID, time.Now().Unix())

	at := auth.NewAccessToken(s.apiKey, s.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.AddGrant(grant).SetIdentity(identity).SetValidFor(time.Hour)

	token, err := at.ToJWT()
	if err != nil {
		s.logger.Error("failed to mint room token",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return "", fmt.Errorf("mint room token: %w", err)
	}

	return fmt.Sprintf("%s/rooms/%s?token=%s", s.baseURL, room, url.QueryEscape(token)), nil
}
