package domain

import "time"

// ConnHandle is the routing address of a user's active connection.
// One handle per user at any time; registering a new connection for the
// same user overwrites the previous handle (single-active-session).
type ConnHandle struct {
	UserID      UserID    `json:"userId"`
	ConnID      string    `json:"connId"`
	GatewayID   string    `json:"gatewayId"`
	ConnectedAt time.Time `json:"connectedAt"`
}
