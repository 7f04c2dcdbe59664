package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
)

type messageRepo interface {
	Create(ctx context.Context, msg *models.Message) error
	ListAll(ctx context.Context) ([]models.MessageSummary, error)
	ListForTeams(ctx context.Context, teamIDs []string) ([]models.MessageSummary, error)
}

type messageTeamRepo interface {
	TeamIDsByMentor(ctx context.Context, email string) ([]string, error)
	TeamIDsByMember(ctx context.Context, email string) ([]string, error)
}

// BroadcastRequest is a teacher broadcast payload. The recipient teams are
// not part of the request; they are always the sender's assigned teams.
type BroadcastRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// MessageService handles teacher broadcasts and their admin/student views.
type MessageService struct {
	messages messageRepo
	teams    messageTeamRepo
	logger   *zap.Logger
}

// NewMessageService constructs a MessageService.
func NewMessageService(messages messageRepo, teams messageTeamRepo, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{messages: messages, teams: teams, logger: logger}
}

// Broadcast sends a message to every team currently mentored by the acting
// teacher and returns it with the recipient snapshot attached.
func (s *MessageService) Broadcast(ctx context.Context, req BroadcastRequest, actor models.UserInfo) (*models.Message, error) {
	title := strings.TrimSpace(req.Title)
	content := strings.TrimSpace(req.Content)
	if title == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	if content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is required")
	}

	email := strings.ToLower(strings.TrimSpace(actor.Email))
	teamIDs, err := s.teams.TeamIDsByMentor(ctx, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve assigned teams")
	}
	if len(teamIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no assigned teams to broadcast to")
	}

	msg := &models.Message{
		SenderID:    actor.ID,
		SenderEmail: email,
		Title:       title,
		Content:     content,
		TeamIDs:     teamIDs,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create message")
	}
	return msg, nil
}

// ListAll returns every broadcast, newest first, for the admin surface.
func (s *MessageService) ListAll(ctx context.Context) ([]models.MessageSummary, error) {
	messages, err := s.messages.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, nil
}

// ListForStudent returns broadcasts addressed to any team the student
// belongs to, across all years and subjects.
func (s *MessageService) ListForStudent(ctx context.Context, studentEmail string) ([]models.MessageSummary, error) {
	teamIDs, err := s.teams.TeamIDsByMember(ctx, strings.ToLower(strings.TrimSpace(studentEmail)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student teams")
	}
	if len(teamIDs) == 0 {
		return []models.MessageSummary{}, nil
	}

	messages, err := s.messages.ListForTeams(ctx, teamIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, nil
}
