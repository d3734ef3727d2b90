// Package api is the HTTP client for the inspection backend.
package api

import "fmt"

// HTTPError represents an HTTP error response from the backend.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// LoginRequest is the body of POST v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the token pair issued at login.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       int64  `json:"userId"`
}

// RefreshRequest is the body of POST v1/auth/token/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse carries the replacement access token. The refresh
// token is not rotated by the backend.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// MachineResponse is one machine in GET v1/machine.
type MachineResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// OilBrandResponse is one brand in GET v1/oil/brand.
type OilBrandResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// InspectionRequest is the body of POST v1/inspection.
type InspectionRequest struct {
	MachineID        int64  `json:"machineId"`
	UserID           int64  `json:"userId"`
	EngineStatus     string `json:"engineStatus"`
	HydraulicsStatus string `json:"hydraulicsStatus"`
	BrakesStatus     string `json:"brakesStatus"`
	TracksStatus     string `json:"tracksStatus"`
	ElectricalStatus string `json:"electricalStatus"`
	Notes            string `json:"notes"`
	IsUnexpected     bool   `json:"isUnexpected"`
	ReportedAt       string `json:"reportedAt"`
}

// InspectionResponse carries the server-assigned inspection id.
type InspectionResponse struct {
	ID int64 `json:"id"`
}

// OilChangeRequest is the body of the oil-changes endpoints. Motor and
// hydraulic changes share one shape and differ only in path.
type OilChangeRequest struct {
	MachineID          int64   `json:"machineId"`
	OilBrandID         int64   `json:"oilBrandId"`
	Quantity           float64 `json:"quantity"`
	CurrentHours       int64   `json:"currentHours"`
	AverageHoursChange int64   `json:"averageHoursChange"`
}
