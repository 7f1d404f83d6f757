package worker

import (
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// SubscribeSideEffects registers the notification router and the audit log
// on the dispatcher that carries ticket events.
func SubscribeSideEffects(d events.Dispatcher, router *service.NotificationRouter, audit *service.ActivityAuditLog) {
	if d == nil {
		return
	}
	if router != nil {
		d.Subscribe("notifications", router)
	}
	if audit != nil {
		d.Subscribe("activity", audit)
	}
}
