package models

import (
	"github.com/anime-shed/profile-image-analyzer/internal/analyzer"
	"github.com/anime-shed/profile-image-analyzer/internal/observer"
)

// AnalyzeRequest is the JSON body of the URL based endpoints
type AnalyzeRequest struct {
	ImageURL string `json:"image_url"`
}

// NSFWModelStatus reports whether the classifier served the request
type NSFWModelStatus struct {
	Available bool   `json:"available"`
	ModelUsed string `json:"model_used"`
}

// AnalysisResponse is returned by the analyze endpoints
type AnalysisResponse struct {
	Success         bool            `json:"success"`
	Analysis        analyzer.Result `json:"analysis"`
	NSFWModelStatus NSFWModelStatus `json:"nsfw_model_status"`
	RequestID       string          `json:"request_id,omitempty"`
}

// NSFWCheckResponse is returned by the content check endpoints. The report
// fields are inlined at the top level.
type NSFWCheckResponse struct {
	Success bool `json:"success"`
	analyzer.NsfwReport
	AboveThreshold bool    `json:"above_threshold"`
	Threshold      float64 `json:"threshold"`
	RequestID      string  `json:"request_id,omitempty"`
}

// HealthStatus is returned by the health endpoint
type HealthStatus struct {
	Status             string         `json:"status"`
	NSFWModelAvailable bool           `json:"nsfw_model_available"`
	NSFWModelName      string         `json:"nsfw_model_name"`
	NSFWThreshold      float64        `json:"nsfw_threshold"`
	Message            string         `json:"message"`
	Stats              observer.Stats `json:"stats"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
