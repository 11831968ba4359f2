package model

// MonitorResponse is the hub statistics payload served to operators.
type MonitorResponse struct {
	Status      string               `json:"status"`
	Connections ConnectionStats      `json:"connections"`
	Users       []UserConnectionInfo `json:"users"`
}

type ConnectionStats struct {
	TotalConnections int `json:"totalConnections"`
	UniqueUsers      int `json:"uniqueUsers"`
}

// UserConnectionInfo lists one online user's live connections.
type UserConnectionInfo struct {
	UserID      string   `json:"userId"`
	ClientIDs   []string `json:"clientIds"`
	Connections int      `json:"connections"`
}
