package domain

import "time"

// SessionState es el estado del ciclo de vida de la sesion de un origen.
type SessionState string

const (
	SessionLoggedOut SessionState = "logged_out"
	SessionActive    SessionState = "active"
	SessionWarned    SessionState = "warned"
	SessionExpired   SessionState = "expired"
)

// SessionRecord se guarda bajo KeySession; hay como mucho uno por origen.
type SessionRecord struct {
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	WarningShown bool      `json:"warning_shown"`
	CurrentPath  string    `json:"current_path,omitempty"`
}

// Idle devuelve el tiempo sin actividad hasta now.
func (s SessionRecord) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}
