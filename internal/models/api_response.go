package models

import "time"

// DeployListResponse is a page of journaled deploys for one wallet
type DeployListResponse struct {
	Wallet  string          `json:"wallet"`
	Deploys []*DeployRecord `json:"deploys"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// HealthResponse reports service and journal health
type HealthResponse struct {
	Status    string    `json:"status"`
	Journal   string    `json:"journal"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
