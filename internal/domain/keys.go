package domain

// Claves fijas del key-value store. Cada una guarda un blob JSON independiente.
const (
	KeyToken              = "auth_token"
	KeyUser               = "user_data"
	KeySession            = "session_data"
	KeyUsers              = "users"
	KeyRememberMe         = "remember_me"
	KeyErrorLog           = "error_log"
	KeyPerformanceMetrics = "performance_metrics"
	KeyFeedbackQueue      = "feedback_queue"

	KeyProjects             = "projects"
	KeyPendingQuotes        = "pending_quotes"
	KeyPendingNewsletter    = "pending_newsletter"
	KeyPendingCostEstimates = "pending_cost_estimates"
)
