package domain

// LoginResult is the outcome of any login path. When PhoneVerificationRequired
// is set, User and Tokens are nil and PendingToken carries the OAuth profile
// forward to the completion step.
type LoginResult struct {
	User                      *User      `json:"user,omitempty"`
	Tokens                    *TokenPair `json:"tokens,omitempty"`
	IsNewUser                 bool       `json:"is_new_user"`
	AccountLinked             bool       `json:"account_linked"`
	PhoneVerificationRequired bool       `json:"phone_verification_required"`
	PendingToken              string     `json:"pending_token,omitempty"`
}
