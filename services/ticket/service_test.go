package ticket

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
	"smmpanel/services/testutil"
)

func newTestService(t *testing.T) Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Ticket{}, &Message{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{
		Node:      node,
		Sequences: &testutil.SequenceStub{},
		Tickets:   repository.ProvideStore[Ticket](db),
		Messages:  repository.ProvideStore[Message](db),
	})
}

func TestTicketLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, "u1", CreateInput{Subject: "Order stuck", Body: "It is pending for hours"})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, view.Status)
	require.Len(t, view.Messages, 1)

	answered, err := svc.Reply(ctx, "admin1", view.ID, true, ReplyInput{Body: "Looking into it"})
	require.NoError(t, err)
	require.Equal(t, StatusAnswered, answered.Status)

	reopened, err := svc.Reply(ctx, "u1", view.ID, false, ReplyInput{Body: "Still stuck"})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, reopened.Status)
	require.Len(t, reopened.Messages, 3)

	closed, err := svc.Close(ctx, "u1", view.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)

	_, err = svc.Reply(ctx, "u1", view.ID, false, ReplyInput{Body: "One more thing"})
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, errutil.CodeOf(err))
}

func TestTicketOwnerScope(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, "u1", CreateInput{Subject: "Hello", Body: "Hi"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "u2", view.ID)
	require.Error(t, err)
	require.Equal(t, errutil.StatusNotFound, errutil.CodeOf(err))

	// Staff scope sees everything.
	got, err := svc.Get(ctx, "", view.ID)
	require.NoError(t, err)
	require.Equal(t, view.ID, got.ID)
}
