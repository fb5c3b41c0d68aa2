package dispatch

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// SendMessage posts a chat message between the requester and the assigned
// provider and pushes it to the other side.
func (c *coordinator) SendMessage(ctx context.Context, p domain.Principal, params domain.SendMessageParams) (*domain.Message, error) {
	const op = "dispatch.send_message"

	msgType := params.MessageType
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	content := strings.TrimSpace(params.Content)

	var verr *domain.ValidationError
	if !msgType.IsValid() || msgType == domain.MessageTypeSystem {
		verr = domain.NewValidationError(op, "message_type", "must be text or image")
	}
	switch {
	case content == "":
		verr = addField(verr, op, "content", "is required")
	case utf8.RuneCountInString(content) > domain.MaxMessageLength:
		verr = addField(verr, op, "content", "is too long")
	}
	if verr != nil {
		return nil, verr
	}

	req, err := c.load(ctx, op, params.RequestID)
	if err != nil {
		return nil, err
	}

	var to domain.Recipient
	switch {
	case p.Role == domain.RoleRequester && p.ID == req.RequesterID:
		if req.ProviderID == nil {
			return nil, domain.Conflict(op, "no provider has accepted this request yet")
		}
		to = domain.ProviderRecipient(*req.ProviderID)
	case p.Role == domain.RoleProvider && req.IsAssignedTo(p.ID):
		to = domain.RequesterRecipient(req.RequesterID)
	default:
		return nil, domain.Forbidden(op, "only the requester and the assigned provider can message")
	}

	msg := domain.Message{
		ID:          uuid.New(),
		RequestID:   req.ID,
		SenderID:    p.ID,
		SenderRole:  p.Role,
		MessageType: msgType,
		Content:     content,
		CreatedAt:   c.now(),
	}
	if err := c.store.CreateMessage(ctx, msg); err != nil {
		return nil, domain.Internal(err, op, "failed to save message")
	}

	c.notify(to, domain.EventNewMessage, req.ID, msg)
	c.logger.Debug("message sent",
		"request_id", req.ID,
		"message_id", msg.ID,
		"sender_role", p.Role,
	)
	return &msg, nil
}

// ListMessages returns a request's conversation, oldest first.
func (c *coordinator) ListMessages(ctx context.Context, p domain.Principal, id uuid.UUID) ([]domain.Message, error) {
	const op = "dispatch.list_messages"

	req, err := c.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if !canView(p, req) {
		return nil, domain.NotFound(op, "request", id.String())
	}

	msgs, err := c.store.ListMessages(ctx, id)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list messages")
	}
	return msgs, nil
}

func addField(verr *domain.ValidationError, op, field, msg string) *domain.ValidationError {
	if verr == nil {
		return domain.NewValidationError(op, field, msg)
	}
	return verr.Add(field, msg)
}
