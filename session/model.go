package session

import "time"

// Record is the persisted state of one widget session.
type Record struct {
	SessionID string `json:"sessionId"`
	PartnerID string `json:"partnerId"`
	UserID    string `json:"userId,omitempty"`

	// CredentialHash is a digest of the partner credential that opened the
	// session, never the credential itself.
	CredentialHash string `json:"credentialHash"`

	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`

	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	UserID         *string
	CredentialHash *string
	LastActivityAt *time.Time
}

func (p Patch) empty() bool {
	return p.UserID == nil && p.CredentialHash == nil && p.LastActivityAt == nil
}
