package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/services"
	"loancounselor-backend/pkg/httputil"

	"github.com/rs/zerolog/log"
)

// Counselor is the agent behind the chat endpoints.
type Counselor interface {
	GetLoanRecommendation(ctx context.Context, details models.StudentDetails, message, userID string) (*models.Recommendation, error)
	ResetConversation(ctx context.Context, userID string) error
}

var _ Counselor = (*services.CounselorService)(nil)

// resetKeyword sent as a chat message clears the conversation instead of asking the agent.
const resetKeyword = "reset"

// CounselorHandlers handles the chat and reset endpoints.
type CounselorHandlers struct {
	counselor Counselor
}

func NewCounselorHandlers(counselor Counselor) *CounselorHandlers {
	return &CounselorHandlers{counselor: counselor}
}

// HandleChat answers one student message.
func (h *CounselorHandlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	reqPtr := &req
	if req.Message == nil && req.StudentDetails == nil && req.UserID == nil {
		reqPtr = nil
	}
	if err := services.ValidateChatRequest(reqPtr); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	message, userID := *req.Message, *req.UserID
	req.StudentDetails["userId"] = userID

	if strings.EqualFold(strings.TrimSpace(message), resetKeyword) {
		if err := h.counselor.ResetConversation(r.Context(), userID); err != nil {
			respondServiceError(w, err, "Internal server error")
			return
		}
		httputil.RespondJSON(w, http.StatusOK, models.ChatResetResponse{Response: "Conversation reset successfully"})
		return
	}

	rec, err := h.counselor.GetLoanRecommendation(r.Context(), req.StudentDetails, message, userID)
	if err != nil {
		respondRecommendationError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.ChatResponse{Response: rec})
}

// HandleReset clears a user's conversation.
func (h *CounselorHandlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req models.ResetRequest
	// An empty body falls through to the missing userId error.
	if err := httputil.DecodeJSON(r, &req); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		decodeFailed(w, err)
		return
	}
	if err := services.ValidateResetRequest(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.counselor.ResetConversation(r.Context(), *req.UserID); err != nil {
		respondServiceError(w, err, "Error clearing conversation histories")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.MessageResponse{Message: "Conversation history cleared successfully"})
}

// decodeBody decodes the JSON body into dst, writing a 400/413 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := httputil.DecodeJSON(r, dst)
	if err == nil {
		return true
	}
	if errors.Is(err, httputil.ErrEmptyBody) {
		httputil.RespondError(w, http.StatusBadRequest, "Request body is empty")
		return false
	}
	decodeFailed(w, err)
	return false
}

// decodeFailed writes the response for a malformed or oversized body.
func decodeFailed(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httputil.RespondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	httputil.RespondError(w, http.StatusBadRequest, "Invalid JSON body")
}

// respondRecommendationError reports a failed answer inside the normal chat envelope.
// Validation errors and timeouts keep their own status codes.
func respondRecommendationError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrValidation) || errors.Is(err, context.DeadlineExceeded) {
		respondServiceError(w, err, "Internal server error")
		return
	}
	log.Error().Err(err).Msg("[CounselorHandlers] Recommendation failed")
	httputil.RespondJSON(w, http.StatusOK, models.ChatFailureResponse{
		Response: models.ErrorResponse{Error: services.RecommendationFailure(err)},
	})
}

// respondServiceError maps service errors to HTTP status codes.
func respondServiceError(w http.ResponseWriter, err error, prefix string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, context.DeadlineExceeded):
		httputil.RespondError(w, http.StatusGatewayTimeout, "The counselor took too long to respond, please try again")
	case errors.Is(err, services.ErrModelCall):
		httputil.RespondError(w, http.StatusBadGateway, "The counselor is unavailable right now: "+err.Error())
	default:
		log.Error().Err(err).Msg("[CounselorHandlers] Unhandled service error")
		httputil.RespondError(w, http.StatusInternalServerError, prefix+": "+err.Error())
	}
}

func validationMessage(err error) string {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}
