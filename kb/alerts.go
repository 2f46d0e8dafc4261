package kb

import (
	"fmt"

	"github.com/signalsfoundry/fleet-simulator/model"
)

// AddAlerts appends alerts to the log and notifies subscribers once per alert.
func (kb *KnowledgeBase) AddAlerts(alerts ...model.Alert) {
	if len(alerts) == 0 {
		return
	}

	kb.mu.Lock()
	kb.alerts = append(kb.alerts, alerts...)
	if kb.maxAlerts > 0 && len(kb.alerts) > kb.maxAlerts {
		kb.alerts = append([]model.Alert(nil), kb.alerts[len(kb.alerts)-kb.maxAlerts:]...)
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	events := make([]Event, 0, len(alerts))
	for _, a := range alerts {
		events = append(events, Event{Type: EventAlertRaised, Alert: a})
	}
	notify(subs, events...)
}

// ListAlerts returns alerts newest first. Resolved alerts are included only
// when includeResolved is set.
func (kb *KnowledgeBase) ListAlerts(includeResolved bool) []model.Alert {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Alert, 0, len(kb.alerts))
	for i := len(kb.alerts) - 1; i >= 0; i-- {
		a := kb.alerts[i]
		if a.Resolved && !includeResolved {
			continue
		}
		res = append(res, a)
	}
	return res
}

// UnreadCount counts alerts that are neither read nor resolved.
func (kb *KnowledgeBase) UnreadCount() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	n := 0
	for _, a := range kb.alerts {
		if !a.Read && !a.Resolved {
			n++
		}
	}
	return n
}

// MarkAlertRead flags an alert as read.
func (kb *KnowledgeBase) MarkAlertRead(id string) (model.Alert, error) {
	return kb.mutateAlert(id, func(a *model.Alert) { a.Read = true })
}

// ResolveAlert resolves an alert; resolving also marks it read.
func (kb *KnowledgeBase) ResolveAlert(id string) (model.Alert, error) {
	return kb.mutateAlert(id, func(a *model.Alert) {
		a.Read = true
		a.Resolved = true
	})
}

// DismissAlert removes an alert from the log.
func (kb *KnowledgeBase) DismissAlert(id string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	for i := range kb.alerts {
		if kb.alerts[i].ID == id {
			kb.alerts = append(kb.alerts[:i], kb.alerts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrAlertNotFound, id)
}

func (kb *KnowledgeBase) mutateAlert(id string, fn func(*model.Alert)) (model.Alert, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	for i := range kb.alerts {
		if kb.alerts[i].ID == id {
			fn(&kb.alerts[i])
			return kb.alerts[i], nil
		}
	}
	return model.Alert{}, fmt.Errorf("%w: %q", ErrAlertNotFound, id)
}
