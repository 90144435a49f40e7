package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"google.golang.org/genai"
)

// LLMModelName picks the Gemini model for a call.
type LLMModelName int32

const (
	Pro25 LLMModelName = iota
	Flash25
	FlashLite25
	Flash20
	Flash25Image
)

func (t LLMModelName) String() string {
	switch t {
	case Pro25:
		return "gemini-2.5-pro"
	case Flash25:
		return "gemini-2.5-flash"
	case FlashLite25:
		return "gemini-2.5-flash-lite-preview-06-17"
	case Flash25Image:
		return "gemini-2.5-flash-image-preview"
	case Flash20:
		return "gemini-2.0-flash"
	default:
		return "gemini-2.0-flash"
	}
}

func floatPointer(f float32) *float32 {
	return &f
}

func Int32Pointer(i int32) *int32 {
	return &i
}

type LLMResponse struct {
	Response           string   `json:"response"`
	Images             [][]byte `json:"images,omitempty"`
	InputTokenCount    int32    `json:"input_token_count"`
	Thoughts           string   `json:"thoughts"`
	ThoughtsTokenCount int32    `json:"thoughts_token_count"`
	OutputTokenCount   int32    `json:"output_token_count"`
	TotalTokenCount    int32    `json:"total_token_count"`
	IsTest             bool     `json:"is_test"`
}

// LLMProcessor covers the text/vision analysis calls the pipeline makes
// around the image generation itself.
type LLMProcessor interface {
	ClassifyGarment(ctx context.Context, imageBytes []byte, mimeType string) (string, *LLMResponse, error)
	ClassifyGarmentSensitivity(ctx context.Context, garmentBytes []byte, mimeType string) (string, error)
	AnalyzeSubjectAttributes(ctx context.Context, imageBytes []byte, mimeType string) (string, *LLMResponse, error)
	RewriteForCompliance(ctx context.Context, metadataJSON string, prompt string, failureContext string, strictness string) (string, error)
}

// ---- REST generateContent transport ----

// HTTPStatusError carries the status code back to the rejection classifier,
// a 400/403/422 with policy wording means rejected content, not an outage.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("generateContent returned status %d: %s", e.StatusCode, e.Body)
}

type RestInlineData struct {
	MIMEType string
	Data     string
}

// RestPart is one content part on the REST wire. Inline image parts are
// emitted under both the snake_case and camelCase keys because different
// API frontends accept different casings, and responses may use either.
type RestPart struct {
	Text   string
	Inline *RestInlineData
}

func (p RestPart) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	if p.Text != "" {
		out["text"] = p.Text
	}
	if p.Inline != nil {
		blob := map[string]string{
			"mime_type": p.Inline.MIMEType,
			"mimeType":  p.Inline.MIMEType,
			"data":      p.Inline.Data,
		}
		out["inline_data"] = blob
		out["inlineData"] = blob
	}
	return json.Marshal(out)
}

func (p *RestPart) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text       string         `json:"text"`
		InlineSnak *restBlobAlias `json:"inline_data"`
		InlineCaml *restBlobAlias `json:"inlineData"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Text = raw.Text
	blob := raw.InlineSnak
	if blob == nil {
		blob = raw.InlineCaml
	}
	if blob != nil {
		mime := blob.MIMETypeSnake
		if mime == "" {
			mime = blob.MIMETypeCamel
		}
		p.Inline = &RestInlineData{MIMEType: mime, Data: blob.Data}
	}
	return nil
}

type restBlobAlias struct {
	MIMETypeSnake string `json:"mime_type"`
	MIMETypeCamel string `json:"mimeType"`
	Data          string `json:"data"`
}

type RestContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []RestPart `json:"parts"`
}

type RestSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type RestGenerationConfig struct {
	Temperature        *float32 `json:"temperature,omitempty"`
	MaxOutputTokens    int32    `json:"maxOutputTokens,omitempty"`
	CandidateCount     int32    `json:"candidateCount,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type GenerateContentRequest struct {
	Contents          []RestContent        `json:"contents"`
	SystemInstruction *RestContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  RestGenerationConfig `json:"generationConfig"`
	SafetySettings    []RestSafetySetting  `json:"safetySettings,omitempty"`
}

type RestSafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
	Blocked     bool   `json:"blocked"`
}

type RestCandidate struct {
	Content       *RestContent       `json:"content"`
	FinishReason  string             `json:"finishReason"`
	FinishMessage string             `json:"finishMessage"`
	SafetyRatings []RestSafetyRating `json:"safetyRatings"`
}

type RestPromptFeedback struct {
	BlockReason        string             `json:"blockReason"`
	BlockReasonMessage string             `json:"blockReasonMessage"`
	SafetyRatings      []RestSafetyRating `json:"safetyRatings"`
}

type RestUsageMetadata struct {
	PromptTokenCount     int32 `json:"promptTokenCount"`
	CandidatesTokenCount int32 `json:"candidatesTokenCount"`
	ThoughtsTokenCount   int32 `json:"thoughtsTokenCount"`
	TotalTokenCount      int32 `json:"totalTokenCount"`
}

type GenerateContentResponse struct {
	Candidates     []RestCandidate     `json:"candidates"`
	PromptFeedback *RestPromptFeedback `json:"promptFeedback"`
	UsageMetadata  *RestUsageMetadata  `json:"usageMetadata"`
}

// FirstInlineImage returns the first inline image part across candidates.
func (r *GenerateContentResponse) FirstInlineImage() ([]byte, string, error) {
	for _, cand := range r.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Inline == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.Inline.Data)
			if err != nil {
				return nil, "", fmt.Errorf("failed to decode inline image base64: %v", err)
			}
			if len(data) > 0 {
				return data, part.Inline.MIMEType, nil
			}
		}
	}
	return nil, "", nil
}

// FirstFinishReason returns the finish reason of the first candidate, or the
// prompt-level block reason when the whole prompt was refused.
func (r *GenerateContentResponse) FirstFinishReason() string {
	for _, cand := range r.Candidates {
		if cand.FinishReason != "" {
			return cand.FinishReason
		}
	}
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return r.PromptFeedback.BlockReason
	}
	return ""
}

// AllSafetyRatings flattens candidate and prompt-feedback ratings into the
// shape the rejection classifier takes.
func (r *GenerateContentResponse) AllSafetyRatings() []SafetyRating {
	var ratings []SafetyRating
	for _, cand := range r.Candidates {
		for _, rating := range cand.SafetyRatings {
			ratings = append(ratings, SafetyRating{Category: rating.Category, Probability: rating.Probability, Blocked: rating.Blocked})
		}
	}
	if r.PromptFeedback != nil {
		for _, rating := range r.PromptFeedback.SafetyRatings {
			ratings = append(ratings, SafetyRating{Category: rating.Category, Probability: rating.Probability, Blocked: rating.Blocked})
		}
	}
	return ratings
}

// GeminiPoster posts a generateContent request. Tests swap in a stub.
type GeminiPoster interface {
	PostGenerateContent(ctx context.Context, model string, request *GenerateContentRequest) (*GenerateContentResponse, error)
}

type HTTPGeminiPoster struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPGeminiPoster() *HTTPGeminiPoster {
	return &HTTPGeminiPoster{
		BaseURL: GetEnv("GEMINI_API_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		Client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *HTTPGeminiPoster) PostGenerateContent(ctx context.Context, model string, request *GenerateContentRequest) (*GenerateContentResponse, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY environment variable is not set")
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generateContent request: %v", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.BaseURL, model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create generateContent request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to post generateContent: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read generateContent response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fmt.Printf("[Gemini] generateContent status %d for model %s\n", resp.StatusCode, model)
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed GenerateContentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse generateContent response: %v", err)
	}
	return &parsed, nil
}

// AggressiveSafetySettings block sexual content at the lowest threshold so a
// borderline render fails fast and the retry ladder can rewrite instead.
func AggressiveSafetySettings() []RestSafetySetting {
	return []RestSafetySetting{
		{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_LOW_AND_ABOVE"},
		{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
		{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
		{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	}
}

// ---- genai SDK calls for the analysis side ----

type GoogleLLMProcessor struct{}

func newGenaiClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GOOGLE_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
}

type ResponseWithThoughts struct {
	Thoughts string `json:"thoughts"`
	Text     string `json:"text"`
}

func GetFirstCandidateTextWithThoughts(result *genai.GenerateContentResponse) (*ResponseWithThoughts, error) {
	var thinkingContent string
	for _, c := range result.Candidates {
		fmt.Println("Finish reason: ", c.FinishReason, " Finish message: ", c.FinishMessage)

		if len(c.SafetyRatings) > 0 {
			fmt.Println("[Safety] Safety ratings present:", len(c.SafetyRatings))
			for _, rating := range c.SafetyRatings {
				fmt.Println("[Safety] rating:", rating.Category, "Score:", rating.Probability, "Severity score:", rating.SeverityScore, " Blocked:", rating.Blocked)
				if rating.Blocked {
					return nil, fmt.Errorf("content violation: analysis blocked because it contains %s", rating.Category)
				}
			}
		}
		for _, part := range c.Content.Parts {
			if part.Thought && part.Text != "" {
				thinkingContent = part.Text
				continue
			}
		}
	}
	return &ResponseWithThoughts{
		Thoughts: thinkingContent,
		Text:     result.Text(),
	}, nil
}

func tokenCounts(result *genai.GenerateContentResponse) (int32, int32, int32, int32) {
	if result.UsageMetadata == nil {
		fmt.Println("UsageMetadata is nil!")
		return 0, 0, 0, 0
	}
	return result.UsageMetadata.PromptTokenCount,
		result.UsageMetadata.ThoughtsTokenCount,
		result.UsageMetadata.CandidatesTokenCount,
		result.UsageMetadata.TotalTokenCount
}

const classifyGarmentSystemInstruction = `You are a fashion catalog analyst. Analyze the garment photo and return JSON only:
{"name": string, "description": string, "category": string, "body_region": string, "layer_order": number, "wearing_instructions": string}
"category" must be one of UPPER_BODY, LOWER_BODY, FULL_BODY, SHOES, ACCESSORIES. "body_region" is a short phrase like "torso" or "feet". "layer_order" is 0 for base layers, higher for outerwear. "wearing_instructions" describes how the item is worn, tucked, layered or fastened. If no garment is visible return {"name": "Unknown item"}.`

func (GoogleLLMProcessor) ClassifyGarment(ctx context.Context, imageBytes []byte, mimeType string) (string, *LLMResponse, error) {
	client, err := newGenaiClient(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create genai client: %v", err)
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: imageBytes}},
		{Text: "Classify this garment."},
	}

	result, err := client.Models.GenerateContent(ctx, Flash25.String(), []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		CandidateCount:   1,
		MaxOutputTokens:  50000,
		Temperature:      floatPointer(0.4),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: classifyGarmentSystemInstruction}},
		},
	})
	if err != nil {
		fmt.Println("Error in GenerateContent:", err)
		return "", nil, fmt.Errorf("%v", err)
	}

	if result.PromptFeedback != nil {
		fmt.Println(result.PromptFeedback.BlockReason)
		fmt.Println(result.PromptFeedback.BlockReasonMessage)
		return "", nil, fmt.Errorf("content violation: %s", result.PromptFeedback.BlockReasonMessage)
	}

	llmResponseText, err := GetFirstCandidateTextWithThoughts(result)
	if err != nil {
		fmt.Println("Error getting first candidate text: ", err)
		return "", nil, fmt.Errorf("error getting first candidate text: %v", err)
	}

	inputTokenCount, thoughtsTokenCount, outputTokenCount, totalTokenCount := tokenCounts(result)
	return llmResponseText.Text, &LLMResponse{
		Response:           llmResponseText.Text,
		Thoughts:           llmResponseText.Thoughts,
		InputTokenCount:    inputTokenCount,
		ThoughtsTokenCount: thoughtsTokenCount,
		OutputTokenCount:   outputTokenCount,
		TotalTokenCount:    totalTokenCount,
	}, nil
}

const sensitivitySystemInstruction = `You are a content moderation assistant for a fashion app. Look at the garment photo and return JSON only:
{"is_intimate": boolean, "label": string, "reason": string}
"is_intimate" is true for lingerie, underwear, swimwear, sheer or otherwise revealing apparel. "label" is a short category like "lingerie" or "casual outerwear".`

func (GoogleLLMProcessor) ClassifyGarmentSensitivity(ctx context.Context, garmentBytes []byte, mimeType string) (string, error) {
	client, err := newGenaiClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %v", err)
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: garmentBytes}},
		{Text: "Is this garment intimate or revealing apparel?"},
	}

	result, err := client.Models.GenerateContent(ctx, FlashLite25.String(), []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		CandidateCount:   1,
		MaxOutputTokens:  2000,
		Temperature:      floatPointer(0),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: sensitivitySystemInstruction}},
		},
	})
	if err != nil {
		fmt.Println("Error in sensitivity GenerateContent:", err)
		return "", fmt.Errorf("%v", err)
	}

	llmResponseText, err := GetFirstCandidateTextWithThoughts(result)
	if err != nil {
		return "", fmt.Errorf("error getting first candidate text: %v", err)
	}
	return llmResponseText.Text, nil
}

const subjectAttributesSystemInstruction = `You are a fashion styling assistant. Look at the person photo and return JSON only:
{"build": string, "skin_tone": string, "hair": string, "height_impression": string, "notable_features": [string]}
Describe only what helps render clothing on this person faithfully. Never guess age, never include anything about identity beyond appearance.`

func (GoogleLLMProcessor) AnalyzeSubjectAttributes(ctx context.Context, imageBytes []byte, mimeType string) (string, *LLMResponse, error) {
	client, err := newGenaiClient(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create genai client: %v", err)
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: imageBytes}},
		{Text: "Describe this person's visual attributes for styling."},
	}

	result, err := client.Models.GenerateContent(ctx, Flash25.String(), []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		CandidateCount:   1,
		MaxOutputTokens:  4000,
		Temperature:      floatPointer(0.4),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: subjectAttributesSystemInstruction}},
		},
	})
	if err != nil {
		fmt.Println("Error in subject attributes GenerateContent:", err)
		return "", nil, fmt.Errorf("%v", err)
	}

	llmResponseText, err := GetFirstCandidateTextWithThoughts(result)
	if err != nil {
		return "", nil, fmt.Errorf("error getting first candidate text: %v", err)
	}

	inputTokenCount, thoughtsTokenCount, outputTokenCount, totalTokenCount := tokenCounts(result)
	return llmResponseText.Text, &LLMResponse{
		Response:           llmResponseText.Text,
		Thoughts:           llmResponseText.Thoughts,
		InputTokenCount:    inputTokenCount,
		ThoughtsTokenCount: thoughtsTokenCount,
		OutputTokenCount:   outputTokenCount,
		TotalTokenCount:    totalTokenCount,
	}, nil
}

const rewriteSystemInstruction = `You rewrite fashion try-on prompts and styling metadata so a render passes content safety filters while keeping the same outfit. Return JSON only:
{"prompt_additions": string, "metadata": object, "changes": [string]}
Keep every garment, keep wearing instructions, keep the person's identity wording intact. Replace provocative vocabulary with neutral catalog wording, prefer opaque fabrics, modest framing and editorial poses. "changes" lists what you altered.`

func (GoogleLLMProcessor) RewriteForCompliance(ctx context.Context, metadataJSON string, prompt string, failureContext string, strictness string) (string, error) {
	client, err := newGenaiClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %v", err)
	}

	userText := fmt.Sprintf(
		"The previous render was refused by the safety filter.\nFailure context: %s\nRequired strictness: %s\n\nCurrent prompt:\n%s\n\nCurrent styling metadata JSON:\n%s",
		failureContext, strictness, prompt, metadataJSON,
	)

	result, err := client.Models.GenerateContent(ctx, Flash25.String(), []*genai.Content{{Parts: []*genai.Part{{Text: userText}}}}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		CandidateCount:   1,
		MaxOutputTokens:  8000,
		Temperature:      floatPointer(0.6),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: rewriteSystemInstruction}},
		},
	})
	if err != nil {
		fmt.Println("Error in rewrite GenerateContent:", err)
		sentry.CaptureException(fmt.Errorf("compliance rewrite call failed: %w", err))
		return "", fmt.Errorf("%v", err)
	}

	llmResponseText, err := GetFirstCandidateTextWithThoughts(result)
	if err != nil {
		return "", fmt.Errorf("error getting first candidate text: %v", err)
	}
	return llmResponseText.Text, nil
}
