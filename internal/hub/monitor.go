package hub

import (
	"sort"

	"snipchat/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	users := ms.getUserConnections()

	total := 0
	for _, u := range users {
		total += u.Connections
	}

	status := "healthy"
	if total == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status: status,
		Connections: model.ConnectionStats{
			TotalConnections: total,
			UniqueUsers:      len(users),
		},
		Users: users,
	}
}

func (ms *MonitorService) getUserConnections() []model.UserConnectionInfo {
	users := make([]model.UserConnectionInfo, 0)

	for _, bucket := range ms.hub.shards {
		bucket.RLock()
		for userID, clients := range bucket.users {
			info := model.UserConnectionInfo{
				UserID:      userID,
				ClientIDs:   make([]string, 0, len(clients)),
				Connections: len(clients),
			}
			for clientID := range clients {
				info.ClientIDs = append(info.ClientIDs, clientID)
			}
			sort.Strings(info.ClientIDs)
			users = append(users, info)
		}
		bucket.RUnlock()
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].UserID < users[j].UserID
	})

	return users
}
