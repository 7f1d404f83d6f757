// Package realtime pushes server events to connected clients over
// websockets. Delivery is best effort: nothing here is retried or persisted.
package realtime

import (
	"fmt"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Transport is the push channel used by the notification router.
type Transport interface {
	Join(connID, channel string)
	Publish(channel, event string, payload any)
	PublishToConnection(connID, event string, payload any)
}

// Event names pushed to clients.
const (
	EventConnected       = "connected"
	EventNewNotification = "new_notification"
	EventDashboardUpdate = "dashboard_update"
	EventNewComment      = "newComment"
	EventCommentDeleted  = "commentDeleted"
)

// Frame is the wire envelope for every pushed message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func UserChannel(userID string) string { return "user:" + userID }

func RoleChannel(role domain.Role) string { return fmt.Sprintf("role:%s", role) }

func DepartmentChannel(departmentID string) string { return "department:" + departmentID }

// ChannelsFor lists the channels a principal joins on connect.
func ChannelsFor(p domain.Principal) []string {
	channels := []string{UserChannel(p.ID), RoleChannel(p.Role)}
	if p.Role.IsStaff() && p.DepartmentID != "" {
		channels = append(channels, DepartmentChannel(p.DepartmentID))
	}
	return channels
}

// Nop discards everything.
type Nop struct{}

func (Nop) Join(string, string)                     {}
func (Nop) Publish(string, string, any)             {}
func (Nop) PublishToConnection(string, string, any) {}
