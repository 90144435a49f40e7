package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsContentRejectionFinishReasons(t *testing.T) {
	assert.True(t, IsContentRejection("IMAGE_SAFETY", 0, "", nil))
	assert.True(t, IsContentRejection("image_safety", 0, "", nil))
	assert.True(t, IsContentRejection("PROHIBITED_CONTENT", 0, "", nil))
	assert.True(t, IsContentRejection("SAFETY", 0, "", nil))
	assert.True(t, IsContentRejection("SPII", 0, "", nil))

	assert.False(t, IsContentRejection("STOP", 0, "", nil))
	assert.False(t, IsContentRejection("MAX_TOKENS", 0, "", nil))
	assert.False(t, IsContentRejection("", 0, "", nil))
}

func TestIsContentRejectionHTTPStatus(t *testing.T) {
	assert.True(t, IsContentRejection("", 400, "request violates our content policy", nil))
	assert.True(t, IsContentRejection("", 403, "blocked for safety reasons", nil))
	assert.True(t, IsContentRejection("", 422, "sexually explicit content is prohibited", nil))
	// any 4xx with policy wording counts, not just the usual trio
	assert.True(t, IsContentRejection("", 451, "blocked for policy reasons", nil))
	assert.True(t, IsContentRejection("", 429, "request rejected as sexually explicit", nil))

	// 4xx without policy wording are plain request errors
	assert.False(t, IsContentRejection("", 400, "invalid argument: contents must not be empty", nil))
	assert.False(t, IsContentRejection("", 429, "quota exceeded, slow down", nil))
	// server errors are transient no matter the wording
	assert.False(t, IsContentRejection("", 500, "internal error while applying safety", nil))
	assert.False(t, IsContentRejection("", 503, "service unavailable", nil))
}

func TestIsContentRejectionSafetyRatings(t *testing.T) {
	assert.True(t, IsContentRejection("STOP", 0, "", []SafetyRating{
		{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Probability: "HIGH"},
	}))
	assert.True(t, IsContentRejection("STOP", 0, "", []SafetyRating{
		{Category: "HARM_CATEGORY_HARASSMENT", Probability: "LOW", Blocked: true},
	}))
	assert.True(t, IsContentRejection("STOP", 0, "", []SafetyRating{
		{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Probability: "MEDIUM"},
	}))

	assert.False(t, IsContentRejection("STOP", 0, "", []SafetyRating{
		{Category: "HARM_CATEGORY_HARASSMENT", Probability: "NEGLIGIBLE"},
	}))
}

func TestIsContentRejectionFreeText(t *testing.T) {
	assert.True(t, IsContentRejection("", 0, "The model refused: this request contains nudity", nil))
	assert.True(t, IsContentRejection("", 0, "Responsible AI practices prevented this generation", nil))
	assert.False(t, IsContentRejection("", 0, "connection reset by peer", nil))
	assert.False(t, IsContentRejection("", 0, "deadline exceeded", nil))
}
