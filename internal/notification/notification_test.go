package notification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/snapshot"
)

type captureSink struct {
	keys []snapshot.Key
}

func (c *captureSink) Enqueue(key snapshot.Key, _ any) {
	c.keys = append(c.keys, key)
}

func TestNotifyAndList(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	svc := NewService(sink, nil, nil)
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	require.NoError(t, svc.Notify(ctx, "patient-1", "Requested", "first", KindStatusChange))
	require.NoError(t, svc.Notify(ctx, StaffInbox, "New request", "inbox", KindStatusChange))
	require.NoError(t, svc.Notify(ctx, "patient-1", "Reminder", "second", KindReminder))

	feed := svc.ListFor(ctx, "patient-1")
	require.Len(t, feed, 2)
	assert.Equal(t, "second", feed[0].Message)
	assert.Equal(t, "first", feed[1].Message)
	assert.Len(t, svc.ListFor(ctx, StaffInbox), 1)
	assert.Equal(t, 2, svc.UnreadCount(ctx, "patient-1"))
	assert.Len(t, sink.keys, 3)
	assert.Equal(t, snapshot.KeyNotifications, sink.keys[0])
}

func TestNotifyValidation(t *testing.T) {
	svc := NewService(nil, nil, nil)
	require.ErrorIs(t, svc.Notify(context.Background(), "", "t", "m", KindSystem), ErrMissingRecipient)
	require.ErrorIs(t, svc.Notify(context.Background(), "u", "t", "m", Kind("sms")), ErrInvalidKind)
	assert.Empty(t, svc.Snapshot())
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, nil, nil)
	require.NoError(t, svc.Notify(ctx, "p", "a", "a", KindSystem))
	require.NoError(t, svc.Notify(ctx, "p", "b", "b", KindSystem))
	require.NoError(t, svc.Notify(ctx, "q", "c", "c", KindSystem))

	id := svc.ListFor(ctx, "p")[0].ID
	require.ErrorIs(t, svc.MarkRead(ctx, "q", id), ErrNotFound)
	require.NoError(t, svc.MarkRead(ctx, "p", id))
	assert.Equal(t, 1, svc.UnreadCount(ctx, "p"))

	assert.Equal(t, 1, svc.MarkAllRead(ctx, "p"))
	assert.Equal(t, 0, svc.UnreadCount(ctx, "p"))
	assert.Equal(t, 1, svc.UnreadCount(ctx, "q"))

	require.ErrorIs(t, svc.MarkRead(ctx, "p", uuid.New()), ErrNotFound)
}

func TestReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, nil, nil)
	items := []Notification{
		{ID: uuid.New(), Recipient: "p", Title: "x", Kind: KindSystem},
		{ID: uuid.New(), Recipient: StaffInbox, Title: "y", Kind: KindReminder},
	}
	require.NoError(t, svc.Replace(items))
	assert.Len(t, svc.Snapshot(), 2)

	svc.DeleteFor(ctx, "p")
	assert.Empty(t, svc.ListFor(ctx, "p"))
	assert.Len(t, svc.Snapshot(), 1)

	require.Error(t, svc.Replace([]Notification{{ID: uuid.New(), Recipient: "p", Kind: "bogus"}}))
	assert.Len(t, svc.Snapshot(), 1)
}
