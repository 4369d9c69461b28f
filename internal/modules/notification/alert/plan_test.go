package alert

import (
	"testing"

	"anoa.com/noticeboard/internal/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notification(priority entity.Priority) entity.Notification {
	return entity.Notification{
		ID:        uuid.New(),
		Type:      entity.NotificationTypeQuote,
		Title:     "Quote request",
		Message:   "A new quote request arrived",
		Priority:  priority,
		ActionURL: "/admin/quotes",
	}
}

func TestAssetsForPriority(t *testing.T) {
	assert.Equal(t, DefaultAssets.Urgent, DefaultAssets.For(entity.PriorityUrgent))
	assert.Equal(t, DefaultAssets.High, DefaultAssets.For(entity.PriorityHigh))
	assert.Equal(t, DefaultAssets.Default, DefaultAssets.For(entity.PriorityNormal))
	assert.Equal(t, DefaultAssets.Default, DefaultAssets.For(entity.PriorityLow))
}

func TestAlertFor(t *testing.T) {
	urgent := notification(entity.PriorityUrgent)
	a := AlertFor(urgent)

	assert.Equal(t, urgent.ID.String(), a.Tag)
	assert.Equal(t, urgent.Title, a.Title)
	assert.Equal(t, urgent.Message, a.Body)
	assert.Equal(t, "/admin/quotes", a.ActionURL)
	assert.True(t, a.RequireInteraction)

	assert.False(t, AlertFor(notification(entity.PriorityHigh)).RequireInteraction)
}

func TestPlanBothChannelsGranted(t *testing.T) {
	batch := []entity.Notification{notification(entity.PriorityLow), notification(entity.PriorityUrgent)}

	actions := Plan(batch, Settings{Sound: true, System: true}, PermissionGranted, DefaultAssets)

	require.Len(t, actions, 4)
	assert.Equal(t, ActionPlaySound, actions[0].Kind)
	assert.Equal(t, DefaultAssets.Default, actions[0].Sound)
	assert.Equal(t, 0.5, actions[0].Volume)
	assert.Equal(t, ActionShowAlert, actions[1].Kind)
	assert.Equal(t, ActionPlaySound, actions[2].Kind)
	assert.Equal(t, DefaultAssets.Urgent, actions[2].Sound)
	assert.Equal(t, ActionShowAlert, actions[3].Kind)
	assert.True(t, actions[3].Alert.RequireInteraction)
}

func TestPlanPermissionStates(t *testing.T) {
	batch := []entity.Notification{notification(entity.PriorityNormal)}
	systemOnly := Settings{System: true}

	denied := Plan(batch, systemOnly, PermissionDenied, DefaultAssets)
	assert.Empty(t, denied)

	pending := Plan(batch, systemOnly, PermissionDefault, DefaultAssets)
	require.Len(t, pending, 1)
	assert.Equal(t, ActionRequestPermission, pending[0].Kind)
	assert.Equal(t, batch[0].ID.String(), pending[0].Alert.Tag)

	unknown := Plan(batch, systemOnly, ParsePermission("prompt"), DefaultAssets)
	require.Len(t, unknown, 1)
	assert.Equal(t, ActionRequestPermission, unknown[0].Kind)
}

func TestPlanChannelsDisabled(t *testing.T) {
	batch := []entity.Notification{notification(entity.PriorityUrgent)}

	assert.Empty(t, Plan(batch, Settings{}, PermissionGranted, DefaultAssets))

	soundOnly := Plan(batch, Settings{Sound: true}, PermissionGranted, DefaultAssets)
	require.Len(t, soundOnly, 1)
	assert.Equal(t, ActionPlaySound, soundOnly[0].Kind)
}

func TestPlanEmptyBatch(t *testing.T) {
	assert.Empty(t, Plan(nil, Settings{Sound: true, System: true}, PermissionGranted, DefaultAssets))
}
