package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
	"github.com/spec-kit/helpdesk-service/pkg/util/validation"
)

// TicketService coordinates ticket workflows that are not status changes:
// creation, reads, deletion, comments and feedback.
type TicketService struct {
	tickets     repository.TicketRepository
	comments    repository.CommentRepository
	feedback    repository.FeedbackRepository
	departments repository.DepartmentRepository
	users       repository.UserRepository
	dispatcher  events.Dispatcher
	validator   *validation.Validator
	logger      *zap.Logger
	clock       func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	CommentRepo    repository.CommentRepository
	FeedbackRepo   repository.FeedbackRepository
	DepartmentRepo repository.DepartmentRepository
	UserRepo       repository.UserRepository
	Dispatcher     events.Dispatcher
	Validator      *validation.Validator
	Logger         *zap.Logger
	Clock          func() time.Time
}

// TicketCreateInput describes ticket creation payload. OwnerUserID is only
// honoured for staff filing on a client's behalf.
type TicketCreateInput struct {
	Title        string                `json:"title" validate:"required,max=200"`
	Description  string                `json:"description" validate:"required,max=10000"`
	Priority     domain.TicketPriority `json:"priority" validate:"ticket_priority"`
	DepartmentID string                `json:"department_id" validate:"required"`
	CategoryID   *string               `json:"category_id"`
	LocationID   *string               `json:"location_id"`
	OwnerUserID  string                `json:"owner_user_id"`
}

// TicketListFilter describes listing filters. The caller's role narrows the
// result further.
type TicketListFilter struct {
	DepartmentID *string
	AssigneeID   *string
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// CommentInput is a new comment.
type CommentInput struct {
	Text       string `json:"text" validate:"required,max=5000"`
	IsInternal bool   `json:"is_internal"`
}

// FeedbackInput is a client's rating.
type FeedbackInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	v := deps.Validator
	if v == nil {
		v = validation.New()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		feedback:    deps.FeedbackRepo,
		departments: deps.DepartmentRepo,
		users:       deps.UserRepo,
		dispatcher:  deps.Dispatcher,
		validator:   v,
		logger:      logger,
		clock:       clock,
	}
}

// CreateTicket opens a ticket. Clients always own what they file; staff must
// name the client they file for.
func (s *TicketService) CreateTicket(ctx context.Context, principal domain.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validator.Struct(input); err != nil {
		return nil, err
	}

	ownerID, err := s.resolveOwner(ctx, principal, input.OwnerUserID)
	if err != nil {
		return nil, err
	}

	dept, err := s.departments.GetByID(ctx, input.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": input.DepartmentID})
		}
		return nil, err
	}
	if !dept.IsActive {
		return nil, apperrors.NewValidationError("department inactive", map[string]any{"department_id": dept.ID})
	}

	ticket := &domain.Ticket{
		Title:        input.Title,
		Description:  input.Description,
		Priority:     input.Priority,
		Status:       domain.TicketStatusOpen,
		CategoryID:   input.CategoryID,
		DepartmentID: dept.ID,
		LocationID:   input.LocationID,
		OwnerUserID:  ownerID,
		CreatedAt:    s.now(),
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	s.publish(ctx, events.TicketCreated{
		Meta:   events.NewMeta(ticket.ID, principal, ticket.CreatedAt),
		Ticket: *ticket,
	})
	return ticket, nil
}

// ListTickets returns the tickets the caller may see.
func (s *TicketService) ListTickets(ctx context.Context, principal domain.Principal, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		DepartmentID:    filter.DepartmentID,
		AssignedAgentID: filter.AssigneeID,
		Statuses:        filter.Statuses,
		Priorities:      filter.Priorities,
		SearchTerm:      filter.SearchTerm,
		CreatedFrom:     filter.CreatedFrom,
		CreatedTo:       filter.CreatedTo,
		Limit:           filter.Limit,
		Offset:          filter.Offset,
	}
	switch principal.Role {
	case domain.RoleAdmin:
	case domain.RoleAgent:
		repoFilter.AgentScope = &repository.AgentScope{AgentID: principal.ID, DepartmentID: principal.DepartmentID}
	case domain.RoleClient:
		owner := principal.ID
		repoFilter.OwnerUserID = &owner
	default:
		return nil, apperrors.NewForbidden("unknown role")
	}
	return s.tickets.List(ctx, repoFilter)
}

// GetTicket returns a ticket the caller may view.
func (s *TicketService) GetTicket(ctx context.Context, principal domain.Principal, ticketID string) (*domain.Ticket, error) {
	return s.visibleTicket(ctx, principal, ticketID)
}

// DeleteTicket hard-deletes a ticket and its comments.
func (s *TicketService) DeleteTicket(ctx context.Context, principal domain.Principal, ticketID string) error {
	ticket, err := loadTicket(ctx, s.tickets, ticketID)
	if err != nil {
		return err
	}
	if err := auth.Authorize(principal, ticket, auth.Delete); err != nil {
		return err
	}
	affected, err := s.tickets.Delete(ctx, ticket.ID)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	if affected == 0 {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	s.publish(ctx, events.TicketDeleted{
		Meta:   events.NewMeta(ticket.ID, principal, s.now()),
		Ticket: *ticket,
	})
	return nil
}

// AddComment posts to a ticket thread and restarts its idle clock.
func (s *TicketService) AddComment(ctx context.Context, principal domain.Principal, ticketID string, input CommentInput) (*domain.Comment, error) {
	input.Text = strings.TrimSpace(input.Text)
	if err := s.validator.Struct(input); err != nil {
		return nil, err
	}
	ticket, err := loadTicket(ctx, s.tickets, ticketID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(principal, ticket, auth.Comment); err != nil {
		return nil, err
	}
	if input.IsInternal && !principal.Role.IsStaff() {
		return nil, apperrors.NewForbidden("clients cannot post internal comments")
	}

	authorID := principal.ID
	comment := &domain.Comment{
		TicketID:   ticket.ID,
		AuthorID:   &authorID,
		Text:       input.Text,
		IsInternal: input.IsInternal,
		CreatedAt:  s.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	if err := s.tickets.Touch(ctx, ticket.ID, comment.CreatedAt); err != nil {
		s.logger.Warn("touch ticket after comment", zap.String("ticket_id", ticket.ID), zap.Error(err))
	} else {
		ticket.UpdatedAt = comment.CreatedAt
	}

	s.publish(ctx, events.CommentAdded{
		Meta:       events.NewMeta(ticket.ID, principal, comment.CreatedAt),
		Ticket:     *ticket,
		Comment:    *comment,
		AuthorRole: principal.Role,
	})
	return comment, nil
}

// ListComments returns the thread in creation order. Clients never see
// internal comments.
func (s *TicketService) ListComments(ctx context.Context, principal domain.Principal, ticketID string) ([]domain.Comment, error) {
	ticket, err := s.visibleTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	return s.comments.ListByTicket(ctx, ticket.ID, principal.Role.IsStaff())
}

// DeleteComment removes a comment. Only its author or an admin may do so.
func (s *TicketService) DeleteComment(ctx context.Context, principal domain.Principal, ticketID, commentID string) error {
	ticket, err := s.visibleTicket(ctx, principal, ticketID)
	if err != nil {
		return err
	}
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
		}
		return err
	}
	if comment.TicketID != ticket.ID || !comment.VisibleTo(principal) {
		return apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
	}
	isAuthor := comment.AuthorID != nil && *comment.AuthorID == principal.ID
	if !isAuthor && principal.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("only the author or an admin can delete a comment")
	}

	affected, err := s.comments.Delete(ctx, comment.ID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if affected == 0 {
		return apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
	}

	s.publish(ctx, events.CommentDeleted{
		Meta:       events.NewMeta(ticket.ID, principal, s.now()),
		Ticket:     *ticket,
		Comment:    *comment,
		AuthorRole: s.authorRole(ctx, principal, comment),
	})
	return nil
}

// SubmitFeedback records the owner's one-time rating of a finished ticket.
func (s *TicketService) SubmitFeedback(ctx context.Context, principal domain.Principal, ticketID string, input FeedbackInput) (*domain.Feedback, error) {
	input.Comment = strings.TrimSpace(input.Comment)
	if err := s.validator.Struct(input); err != nil {
		return nil, err
	}
	ticket, err := s.visibleTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.OwnerUserID != principal.ID {
		return nil, apperrors.NewForbidden("only the ticket owner can leave feedback")
	}
	if ticket.Status != domain.TicketStatusResolved && ticket.Status != domain.TicketStatusClosed {
		return nil, conflict("feedback requires a resolved or closed ticket", ticket)
	}

	fb := &domain.Feedback{
		TicketID:  ticket.ID,
		UserID:    principal.ID,
		Rating:    input.Rating,
		Comment:   input.Comment,
		CreatedAt: s.now(),
	}
	if err := s.feedback.Create(ctx, fb); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict("feedback already submitted", ticket)
		}
		return nil, fmt.Errorf("create feedback: %w", err)
	}
	s.publish(ctx, events.FeedbackSubmitted{
		Meta:     events.NewMeta(ticket.ID, principal, fb.CreatedAt),
		Ticket:   *ticket,
		Feedback: *fb,
	})
	return fb, nil
}

// GetFeedback returns the rating left on a ticket.
func (s *TicketService) GetFeedback(ctx context.Context, principal domain.Principal, ticketID string) (*domain.Feedback, error) {
	ticket, err := s.visibleTicket(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}
	fb, err := s.feedback.GetByTicket(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("feedback", map[string]any{"ticket_id": ticket.ID})
		}
		return nil, err
	}
	return fb, nil
}

func (s *TicketService) visibleTicket(ctx context.Context, principal domain.Principal, ticketID string) (*domain.Ticket, error) {
	ticket, err := loadTicket(ctx, s.tickets, ticketID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(principal, ticket, auth.View); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) resolveOwner(ctx context.Context, principal domain.Principal, requested string) (string, error) {
	switch principal.Role {
	case domain.RoleClient:
		return principal.ID, nil
	case domain.RoleAgent, domain.RoleAdmin:
		requested = strings.TrimSpace(requested)
		if requested == "" {
			return "", apperrors.NewValidationError("owner_user_id is required when filing for a client",
				map[string]any{"owner_user_id": "required"})
		}
		owner, err := s.users.GetByID(ctx, requested)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", apperrors.NewNotFound("user", map[string]any{"owner_user_id": requested})
			}
			return "", err
		}
		if owner.Role != domain.RoleClient || !owner.IsActive {
			return "", apperrors.NewValidationError("owner must be an active client",
				map[string]any{"owner_user_id": requested})
		}
		return owner.ID, nil
	default:
		return "", apperrors.NewForbidden("unknown role")
	}
}

// authorRole finds the role of a comment's author, which may differ from the
// admin deleting it.
func (s *TicketService) authorRole(ctx context.Context, principal domain.Principal, comment *domain.Comment) domain.Role {
	if comment.AuthorID == nil {
		return ""
	}
	if *comment.AuthorID == principal.ID {
		return principal.Role
	}
	author, err := s.users.GetByID(ctx, *comment.AuthorID)
	if err != nil {
		s.logger.Warn("load comment author", zap.String("comment_id", comment.ID), zap.Error(err))
		return ""
	}
	return author.Role
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Error("publish event",
			zap.String("event_kind", string(event.Kind())),
			zap.String("ticket_id", event.Metadata().TicketID),
			zap.Error(err))
	}
}

func (s *TicketService) now() time.Time {
	return s.clock().UTC()
}
