package http

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StoreEntryRequest is the request body for POST /api/v1/entries.
type StoreEntryRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// StoreEntryResponse is the response body for POST /api/v1/entries.
type StoreEntryResponse struct {
	ID string `json:"id"`
}

// FeedbackRequest is the request body for POST /api/v1/feedback. The
// response is an analysis.Feedback.
type FeedbackRequest struct {
	Text string `json:"text"`
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	Answer string `json:"answer"`
}
