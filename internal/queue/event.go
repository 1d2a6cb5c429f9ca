package queue

// PasswordResetRequestedEvent is published when a user asks for a
// password reset.  A downstream consumer turns it into a notification;
// in this deployment that is an append to the reset log, in production it
// would be an email carrying the reset link.
type PasswordResetRequestedEvent struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	ResetLink   string `json:"reset_link"`
	ExpiresAt   string `json:"expires_at"`
	RequestedAt string `json:"requested_at"`
}
