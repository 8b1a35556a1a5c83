package domain

import "time"

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Location    string    `json:"location,omitempty"`
	ClientID    string    `json:"client_id,omitempty"`
	Budget      float64   `json:"budget,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

type QuoteRequest struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	ProjectType string    `json:"project_type"`
	ZipCode     string    `json:"zip_code,omitempty"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

type NewsletterSignup struct {
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CostEstimate struct {
	ID          string             `json:"id"`
	ProjectType string             `json:"project_type"`
	SquareFeet  float64            `json:"square_feet"`
	Quality     string             `json:"quality"`
	Features    []string           `json:"features,omitempty"`
	Base        float64            `json:"base"`
	FeatureCost float64            `json:"feature_cost"`
	Total       float64            `json:"total"`
	Low         float64            `json:"low"`
	High        float64            `json:"high"`
	Breakdown   map[string]float64 `json:"breakdown,omitempty"`
	ComputedAt  time.Time          `json:"computed_at"`
}

type PerformanceMetric struct {
	Name       string        `json:"name"`
	Duration   time.Duration `json:"duration"`
	RecordedAt time.Time     `json:"recorded_at"`
}

type ErrorEntry struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
