package audit

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity grades an event.
type Severity string

// Severities.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one audit record.
type Event struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor,omitempty"`
	Resource  string            `json:"resource,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	PartnerID string            `json:"partner_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	IntegrityHash string `json:"integrity_hash"`
}

// ComputeIntegrity returns hex(sha256(eventType|actor|timestamp|resource)),
// with the timestamp in UTC RFC 3339 nanosecond form.
func ComputeIntegrity(e Event) string {
	var b strings.Builder
	b.WriteString(e.EventType)
	b.WriteByte('|')
	b.WriteString(e.Actor)
	b.WriteByte('|')
	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(e.Resource)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether e's hashed fields still match its IntegrityHash.
func Verify(e Event) bool {
	if e.IntegrityHash == "" {
		return false
	}
	want := ComputeIntegrity(e)
	return subtle.ConstantTimeCompare([]byte(want), []byte(e.IntegrityHash)) == 1
}

// Seal fills EventID, Timestamp and Severity when empty and computes the
// integrity hash. now is used only when Timestamp is zero.
func Seal(e Event, now time.Time) Event {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	e.IntegrityHash = ComputeIntegrity(e)
	return e
}
