package ticket

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"smmpanel/pkg/db/option"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
	"smmpanel/pkg/sequence"
)

type CreateInput struct {
	Subject string `json:"subject" binding:"required"`
	Body    string `json:"body" binding:"required"`
}

type ReplyInput struct {
	Body string `json:"body" binding:"required"`
}

// TicketView is a ticket with its conversation.
type TicketView struct {
	Ticket
	Messages []*Message `json:"messages"`
}

type Service interface {
	Create(ctx context.Context, userID string, in CreateInput) (*TicketView, error)
	Get(ctx context.Context, userID, id string) (*TicketView, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*Ticket, error)
	Reply(ctx context.Context, userID, id string, staff bool, in ReplyInput) (*TicketView, error)
	Close(ctx context.Context, userID, id string) (*Ticket, error)
}

type service struct {
	node      *snowflake.Node
	sequences sequence.Generator
	tickets   repository.Repository[Ticket]
	messages  repository.Repository[Message]
}

type ServiceParams struct {
	fx.In

	Node      *snowflake.Node
	Sequences sequence.Generator
	Tickets   repository.Repository[Ticket]
	Messages  repository.Repository[Message]
}

func NewService(p ServiceParams) Service {
	return &service{
		node:      p.Node,
		sequences: p.Sequences,
		tickets:   p.Tickets,
		messages:  p.Messages,
	}
}

func (s *service) Create(ctx context.Context, userID string, in CreateInput) (*TicketView, error) {
	code, err := s.sequences.NextTicketCode(ctx)
	if err != nil {
		return nil, err
	}

	t := &Ticket{
		ID:      s.node.Generate().String(),
		Code:    code,
		UserID:  userID,
		Subject: strings.TrimSpace(in.Subject),
		Status:  StatusOpen,
	}
	if err := s.tickets.Create(ctx, t); err != nil {
		return nil, err
	}

	msg := &Message{
		ID:       s.node.Generate().String(),
		TicketID: t.ID,
		AuthorID: userID,
		Body:     in.Body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return &TicketView{Ticket: *t, Messages: []*Message{msg}}, nil
}

// Get scopes to the owner unless userID is empty (staff path).
func (s *service) Get(ctx context.Context, userID, id string) (*TicketView, error) {
	t, err := s.tickets.FindOne(ctx, &Ticket{ID: id})
	if err != nil {
		return nil, err
	}
	if t == nil || (userID != "" && t.UserID != userID) {
		return nil, errutil.NotFound("Ticket not found")
	}

	messages, err := s.messages.Find(ctx, &Message{TicketID: t.ID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}),
	)
	if err != nil {
		return nil, err
	}
	return &TicketView{Ticket: *t, Messages: messages}, nil
}

func (s *service) List(ctx context.Context, userID string, limit, offset int) ([]*Ticket, error) {
	return s.tickets.Find(ctx, &Ticket{UserID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
}

// Reply reopens the conversation from whoever writes: staff replies mark the
// ticket answered, user replies put it back to open.
func (s *service) Reply(ctx context.Context, userID, id string, staff bool, in ReplyInput) (*TicketView, error) {
	scope := userID
	if staff {
		scope = ""
	}
	view, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if view.Status == StatusClosed {
		return nil, errutil.Conflict("Ticket is closed")
	}

	msg := &Message{
		ID:       s.node.Generate().String(),
		TicketID: view.ID,
		AuthorID: userID,
		Staff:    staff,
		Body:     in.Body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	status := StatusOpen
	if staff {
		status = StatusAnswered
	}
	if err := s.tickets.Update(ctx, view.ID, map[string]any{"status": status}); err != nil {
		return nil, err
	}
	view.Status = status
	view.Messages = append(view.Messages, msg)
	return view, nil
}

func (s *service) Close(ctx context.Context, userID, id string) (*Ticket, error) {
	view, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if view.Status == StatusClosed {
		return &view.Ticket, nil
	}
	if err := s.tickets.Update(ctx, view.ID, map[string]any{"status": StatusClosed}); err != nil {
		return nil, err
	}
	view.Status = StatusClosed
	return &view.Ticket, nil
}
