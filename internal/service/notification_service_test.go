package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func TestInboxIsScopedToRecipient(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.openTicket(t)
	h.openTicket(t)

	count, err := h.inbox.UnreadCount(ctx, h.agent)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	list, err := h.inbox.List(ctx, h.agent, repository.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	err = h.inbox.MarkRead(ctx, h.agent2, list[0].ID)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.ToDomainError(err).Code, "someone else's notification")

	require.NoError(t, h.inbox.MarkRead(ctx, h.agent, list[0].ID))
	unread, err := h.inbox.List(ctx, h.agent, repository.NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	changed, err := h.inbox.MarkAllRead(ctx, h.agent)
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)

	require.NoError(t, h.inbox.Delete(ctx, h.agent, list[1].ID))
	err = h.inbox.Delete(ctx, h.agent, list[1].ID)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.ToDomainError(err).Code)

	count, err = h.inbox.UnreadCount(ctx, h.agent2)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "other inboxes untouched")
}
