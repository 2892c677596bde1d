package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"calorieTracker/internal/chatbot"
	"calorieTracker/models"
)

type chatbotRequest struct {
	Query string `json:"query"`
}

type chatbotResponse struct {
	Response string `json:"response"`
}

func (a *API) handleChatbot(w http.ResponseWriter, r *http.Request) error {
	p, err := currentUser(r)
	if err != nil {
		return err
	}
	var req chatbotRequest
	if err := decodeJSON(r, &req); err != nil {
		return ErrBadRequestWrap("Query is required", err)
	}
	if strings.TrimSpace(req.Query) == "" {
		return ErrBadRequest("Query is required")
	}
	if a.deps.Assistant == nil {
		return ErrInternal("Failed to start agent")
	}

	token, err := a.deps.Tokens.GenerateWithTTL(models.User{ID: p.UserID, Username: p.Username}, a.deps.AssistantTokenTTL)
	if err != nil {
		return ErrInternalWrap("mint assistant token", err)
	}
	answer, err := a.deps.Assistant.Ask(r.Context(), req.Query, p.UserID, token)
	if err != nil {
		return assistantError(err)
	}
	respondJSON(w, http.StatusOK, chatbotResponse{Response: answer})
	return nil
}

func assistantError(err error) *HTTPError {
	var exitErr *chatbot.ExitError
	switch {
	case errors.Is(err, chatbot.ErrTimeout):
		return NewHTTPErrorWrap(http.StatusInternalServerError, "Agent timed out", err)
	case errors.As(err, &exitErr):
		return NewHTTPErrorWrap(http.StatusInternalServerError, "Agent processing failed", err).WithDetails(exitErr.Stderr)
	default:
		return NewHTTPErrorWrap(http.StatusInternalServerError, "Failed to start agent", err).WithDetails(err.Error())
	}
}
