package alert

import (
	"anoa.com/noticeboard/internal/entity"
)

// Permission mirrors the browser Notification.permission states.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDefault Permission = "default"
	PermissionDenied  Permission = "denied"
)

// ParsePermission maps unknown values to PermissionDefault.
func ParsePermission(s string) Permission {
	switch Permission(s) {
	case PermissionGranted, PermissionDenied:
		return Permission(s)
	default:
		return PermissionDefault
	}
}

// Settings are the two user-controlled alert channels.
type Settings struct {
	Sound  bool `json:"sound"`
	System bool `json:"system"`
}

// Assets are the sound files played per priority tier.
type Assets struct {
	Default string
	High    string
	Urgent  string
	Volume  float64
}

var DefaultAssets = Assets{
	Default: "/sounds/notification.mp3",
	High:    "/sounds/notification-high.mp3",
	Urgent:  "/sounds/notification-urgent.mp3",
	Volume:  0.5,
}

func (a Assets) For(priority entity.Priority) string {
	switch priority {
	case entity.PriorityUrgent:
		return a.Urgent
	case entity.PriorityHigh:
		return a.High
	default:
		return a.Default
	}
}

// Alert is a system-level notification. Tag is the record id, so a
// repeated delivery replaces the alert already on screen.
type Alert struct {
	Tag                string `json:"tag"`
	Title              string `json:"title"`
	Body               string `json:"body"`
	RequireInteraction bool   `json:"require_interaction"`
	ActionURL          string `json:"action_url,omitempty"`
}

func AlertFor(n entity.Notification) Alert {
	return Alert{
		Tag:                n.ID.String(),
		Title:              n.Title,
		Body:               n.Message,
		RequireInteraction: n.Priority == entity.PriorityUrgent,
		ActionURL:          n.ActionURL,
	}
}

type ActionKind int

const (
	ActionPlaySound ActionKind = iota
	ActionShowAlert
	ActionRequestPermission
)

func (k ActionKind) String() string {
	switch k {
	case ActionPlaySound:
		return "play_sound"
	case ActionShowAlert:
		return "show_alert"
	case ActionRequestPermission:
		return "request_permission"
	default:
		return "unknown"
	}
}

// Action is one side effect for one record. ActionRequestPermission
// carries the alert to raise if the request is granted.
type Action struct {
	Kind   ActionKind
	Record entity.Notification
	Sound  string
	Volume float64
	Alert  Alert
}

// Plan turns a batch of newly visible records into alert actions. It is
// a pure function of its inputs; records are planned independently and
// in batch order.
func Plan(batch []entity.Notification, settings Settings, permission Permission, assets Assets) []Action {
	var actions []Action
	for _, n := range batch {
		if settings.Sound {
			actions = append(actions, Action{
				Kind:   ActionPlaySound,
				Record: n,
				Sound:  assets.For(n.Priority),
				Volume: assets.Volume,
			})
		}
		if !settings.System {
			continue
		}
		switch permission {
		case PermissionGranted:
			actions = append(actions, Action{Kind: ActionShowAlert, Record: n, Alert: AlertFor(n)})
		case PermissionDenied:
		default:
			actions = append(actions, Action{Kind: ActionRequestPermission, Record: n, Alert: AlertFor(n)})
		}
	}
	return actions
}
