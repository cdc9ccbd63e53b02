package models

// --- Request Structs ---

// ChatRequest defines the expected body for the chat endpoint.
// Pointers distinguish a missing field from an empty one.
type ChatRequest struct {
	Message        *string        `json:"message"`
	StudentDetails StudentDetails `json:"student_details"`
	UserID         *string        `json:"userId"`
}

// ResetRequest defines the expected body for the reset endpoint.
type ResetRequest struct {
	UserID *string `json:"userId"`
}

// --- Response Structs ---

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// Recommendation is the agent's answer to one student message.
type Recommendation struct {
	Response            string `json:"response"`
	QueryRecommendation string `json:"query_recommendation"`
}

// ChatResponse wraps a recommendation for the chat endpoint.
type ChatResponse struct {
	Response *Recommendation `json:"response"`
}

// ChatFailureResponse is returned by the chat endpoint, with status 200, when the agent
// could not produce an answer.
type ChatFailureResponse struct {
	Response ErrorResponse `json:"response"`
}

// ChatResetResponse is returned by the chat endpoint when the message asks for a reset.
type ChatResetResponse struct {
	Response string `json:"response"`
}

// ListLendersResponse defines the response for the lender catalogue.
type ListLendersResponse struct {
	Lenders []Lender `json:"lenders"`
}

// SearchLendersResponse defines the response for a lender similarity search.
type SearchLendersResponse struct {
	Query   string   `json:"query"`
	Lenders []Lender `json:"lenders"`
}
