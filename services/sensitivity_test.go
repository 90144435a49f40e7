package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSensitiveMetadata(t *testing.T) {
	assert.False(t, IsSensitiveMetadata(nil, ""))
	assert.False(t, IsSensitiveMetadata(&StylingMetadata{Background: "city street"}, ""))

	assert.True(t, IsSensitiveMetadata(nil, "lingerie"))
	assert.True(t, IsSensitiveMetadata(nil, "Swimwear / Beach"))
	assert.False(t, IsSensitiveMetadata(nil, "outerwear"))

	assert.True(t, IsSensitiveMetadata(&StylingMetadata{WearingInstructions: "wear the sheer slip underneath"}, ""))
	assert.True(t, IsSensitiveMetadata(&StylingMetadata{
		ItemsWearingStyles: map[string]string{"top": "Fishnet overlay"},
	}, ""))
	assert.True(t, IsSensitiveMetadata(&StylingMetadata{
		Extras: map[string]interface{}{
			"notes": map[string]interface{}{"fabric": "see-through mesh panels"},
		},
	}, ""))
	assert.False(t, IsSensitiveMetadata(&StylingMetadata{
		WearingInstructions: "button the coat fully",
		Extras:              map[string]interface{}{"season": "winter"},
	}, ""))
}

type sensitivityLLM struct {
	answer   string
	err      error
	seenMIME *string
}

func (s sensitivityLLM) ClassifyGarment(ctx context.Context, imageBytes []byte, mimeType string) (string, *LLMResponse, error) {
	return "", nil, nil
}
func (s sensitivityLLM) AnalyzeSubjectAttributes(ctx context.Context, imageBytes []byte, mimeType string) (string, *LLMResponse, error) {
	return "", nil, nil
}
func (s sensitivityLLM) RewriteForCompliance(ctx context.Context, metadataJSON, prompt, failureContext, strictness string) (string, error) {
	return "", nil
}
func (s sensitivityLLM) ClassifyGarmentSensitivity(ctx context.Context, garmentBytes []byte, mimeType string) (string, error) {
	if s.seenMIME != nil {
		*s.seenMIME = mimeType
	}
	return s.answer, s.err
}

func TestVisionSensitivityCheck(t *testing.T) {
	ctx := context.Background()
	garment := []byte{1, 2, 3}

	flagged, label := VisionSensitivityCheck(ctx, sensitivityLLM{answer: "```json\n{\"is_intimate\": true, \"label\": \"lingerie\", \"reason\": \"lace bodysuit\"}\n```"}, garment)
	assert.True(t, flagged)
	assert.Equal(t, "lingerie", label)

	flagged, _ = VisionSensitivityCheck(ctx, sensitivityLLM{answer: `{"is_intimate": false, "label": "jacket"}`}, garment)
	assert.False(t, flagged)

	// failures never block generation
	flagged, _ = VisionSensitivityCheck(ctx, sensitivityLLM{err: fmt.Errorf("timeout")}, garment)
	assert.False(t, flagged)
	flagged, _ = VisionSensitivityCheck(ctx, sensitivityLLM{answer: "not json at all"}, garment)
	assert.False(t, flagged)
	flagged, _ = VisionSensitivityCheck(ctx, nil, garment)
	assert.False(t, flagged)
	flagged, _ = VisionSensitivityCheck(ctx, sensitivityLLM{}, nil)
	assert.False(t, flagged)
}

func TestVisionSensitivityCheckSendsImageMIMEType(t *testing.T) {
	var seen string
	llm := sensitivityLLM{answer: `{"is_intimate": false, "label": "jacket"}`, seenMIME: &seen}

	VisionSensitivityCheck(context.Background(), llm, pngHeaderBytes())
	assert.Equal(t, "image/png", seen)

	// the garment's display name must never reach the MIME slot
	VisionSensitivityCheck(context.Background(), llm, []byte("Black lace lingerie set"))
	assert.True(t, strings.HasPrefix(seen, "image/"), "got %q", seen)
}

func pngHeaderBytes() []byte {
	return []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
}
