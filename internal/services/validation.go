package services

import (
	"errors"
	"fmt"
	"strings"

	"loancounselor-backend/internal/models"
)

// Custom errors for the counselor service
var (
	ErrValidation = errors.New("input validation failed")
	ErrModelCall  = errors.New("model call failed")
)

// ValidationError carries the message shown to the client. It matches ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ValidateChatRequest checks the top-level fields and the required student details.
func ValidateChatRequest(req *models.ChatRequest) error {
	if req == nil {
		return validationErrorf("Request body is empty")
	}

	var missing []string
	if req.Message == nil {
		missing = append(missing, "message")
	}
	if req.StudentDetails == nil {
		missing = append(missing, "student_details")
	}
	if req.UserID == nil {
		missing = append(missing, "userId")
	}
	if len(missing) > 0 {
		return validationErrorf("Missing required fields: %s", strings.Join(missing, ", "))
	}

	if absent := req.StudentDetails.Missing(models.RequiredStudentFields); len(absent) > 0 {
		return validationErrorf("Missing required student details: %s", strings.Join(absent, ", "))
	}
	return nil
}

// ValidateResetRequest checks that a reset names the user.
func ValidateResetRequest(req *models.ResetRequest) error {
	if req == nil || req.UserID == nil || strings.TrimSpace(*req.UserID) == "" {
		return validationErrorf("Missing userId in request")
	}
	return nil
}
