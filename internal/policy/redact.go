package policy

import (
	"encoding/json"
	"regexp"

	"github.com/wisbric/stratum/internal/domain"
)

func decodeConstraints(raw []byte) ([]domain.Constraint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var constraints []domain.Constraint
	if err := json.Unmarshal(raw, &constraints); err != nil {
		return nil, err
	}
	return constraints, nil
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`)
)

// Redact rewrites detected emails and phone numbers to placeholder
// tokens, per spec §4.3's promotion-path PII redaction.
func Redact(content string) string {
	content = emailPattern.ReplaceAllString(content, "[REDACTED_EMAIL]")
	content = phonePattern.ReplaceAllString(content, "[REDACTED_PHONE]")
	return content
}

// PromotionBlockReason names why a memory was refused promotion.
type PromotionBlockReason string

const (
	BlockReasonSensitive PromotionBlockReason = "sensitive"
	BlockReasonPrivate   PromotionBlockReason = "private"
)

// CheckPromotionGate reports whether a memory may be promoted, given its
// sensitivity metadata. Memories marked sensitive or private never
// promote, regardless of importance.
func CheckPromotionGate(sensitive, private bool) (allowed bool, reason PromotionBlockReason) {
	if sensitive {
		return false, BlockReasonSensitive
	}
	if private {
		return false, BlockReasonPrivate
	}
	return true, ""
}
