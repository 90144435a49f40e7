package services

import "strings"

// SafetyRating is one per-category risk entry attached to a generation candidate.
type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
	Blocked     bool   `json:"blocked,omitempty"`
}

// finish reasons that mean the model refused on safety/policy grounds
var rejectionFinishReasons = map[string]bool{
	"IMAGE_SAFETY":       true,
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
	"RECITATION":         true,
}

var rejectionKeywords = []string{
	"safety",
	"policy",
	"prohibited",
	"sexual",
	"sexually",
	"explicit",
	"nsfw",
	"nudity",
	"nude",
	"blocked",
	"violat",
	"inappropriate",
	"content filter",
	"responsible ai",
}

func containsRejectionKeyword(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range rejectionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsContentRejection decides whether a failed generation attempt was refused on
// content/safety grounds (worth rewriting and retrying) as opposed to a
// transient failure. Pure function, the single source of truth for this call.
// Pass httpStatus 0 when no HTTP error is involved.
func IsContentRejection(finishReason string, httpStatus int, errorText string, ratings []SafetyRating) bool {
	if finishReason != "" && rejectionFinishReasons[strings.ToUpper(finishReason)] {
		return true
	}

	// server errors are transient no matter what the body says, any other
	// status counts as a rejection only when the body carries policy wording
	if httpStatus >= 500 {
		return false
	}
	if httpStatus != 0 {
		return containsRejectionKeyword(errorText)
	}

	for _, rating := range ratings {
		if rating.Blocked {
			return true
		}
		category := strings.ToLower(rating.Category)
		if strings.Contains(category, "sex") || strings.Contains(category, "explicit") {
			return true
		}
		probability := strings.ToUpper(rating.Probability)
		if probability == "MEDIUM" || probability == "HIGH" {
			return true
		}
	}

	return containsRejectionKeyword(errorText)
}
