package domain

import "time"

// RiskAssessment is a point-in-time risk evaluation of a protocol or
// strategy. An assessment past ExpiresAt must be treated as invalid
// regardless of the stored Valid flag; readers apply the expiry rule
// themselves.
type RiskAssessment struct {
	Subject    string    `json:"subject"`
	Score      uint8     `json:"score"`      // 1 (safest) .. 10
	Confidence uint8     `json:"confidence"` // percent, 0..100
	Tier       string    `json:"tier"`       // human-readable: "low", "medium", "high", "critical"
	AssessedAt time.Time `json:"assessed_at"`
	Assessor   string    `json:"assessor"`
	DataHash   [32]byte  `json:"-"` // keccak hash of the underlying data set
	Valid      bool      `json:"valid"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the assessment is past its expiry at the given
// instant.
func (a RiskAssessment) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// TierForScore maps a numeric risk score to its display tier.
func TierForScore(score uint8) string {
	switch {
	case score <= 3:
		return "low"
	case score <= 5:
		return "medium"
	case score <= 8:
		return "high"
	default:
		return "critical"
	}
}
