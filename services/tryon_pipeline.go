package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	maxGenerationAttempts = 4
	generationCallTimeout = 180 * time.Second
	maxSubjectImages      = 5
	maxGarments           = 5
)

// GarmentInput is one wardrobe item going into a render.
type GarmentInput struct {
	ID                  uint
	Name                string
	Category            string
	LayerOrder          int
	WearingInstructions string
	Image               []byte
}

// GenerationRequest is everything a try-on render needs. SubjectImages holds
// 1 to 5 photos of the person, PrimaryIndex points at the identity-defining
// one. Metadata may be nil.
type GenerationRequest struct {
	SubjectImages         [][]byte
	PrimaryIndex          int
	Garments              []GarmentInput
	Metadata              *StylingMetadata
	SubjectAttributesJSON string
	KnownSensitive        bool
	Model                 LLMModelName
}

// AttemptRecord documents one failed attempt and the rewrite that followed it.
type AttemptRecord struct {
	Attempt  int    `json:"attempt"`
	Strategy string `json:"strategy"`
	Trigger  string `json:"trigger"`
	Summary  string `json:"summary"`
}

type RetryInfo struct {
	Attempts      []AttemptRecord `json:"attempts"`
	TotalAttempts int             `json:"total_attempts"`
	FinalStatus   string          `json:"final_status"`
}

type TryOnResult struct {
	ImageBytes      []byte
	MIMEType        string
	FinishReason    string
	RetryInfo       *RetryInfo
	ModestyApplied  bool
	InputTokenCount int32
	OutputTokens    int32
	TotalTokens     int32
}

type GenerationErrorKind string

const (
	ErrKindConfiguration    GenerationErrorKind = "configuration"
	ErrKindValidation       GenerationErrorKind = "validation"
	ErrKindContentRejection GenerationErrorKind = "content_rejection"
	ErrKindTransient        GenerationErrorKind = "transient"
	ErrKindInternal         GenerationErrorKind = "internal"
)

type GenerationError struct {
	Kind         GenerationErrorKind
	Message      string
	FinishReason string
	RetryInfo    *RetryInfo
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func validationError(format string, args ...interface{}) *GenerationError {
	return &GenerationError{Kind: ErrKindValidation, Message: fmt.Sprintf(format, args...)}
}

// TryOnPipeline owns the generate/classify/rewrite/retry loop. The poster is
// the raw generateContent transport, the processor does the analysis calls.
type TryOnPipeline struct {
	Poster      GeminiPoster
	LLM         LLMProcessor
	MaxAttempts int
}

func NewTryOnPipeline(poster GeminiPoster, llm LLMProcessor) *TryOnPipeline {
	return &TryOnPipeline{Poster: poster, LLM: llm, MaxAttempts: maxGenerationAttempts}
}

func (p *TryOnPipeline) validate(req *GenerationRequest) *GenerationError {
	if req == nil {
		return validationError("generation request is nil")
	}
	if len(req.SubjectImages) == 0 || len(req.SubjectImages) > maxSubjectImages {
		return validationError("need between 1 and %d subject images, got %d", maxSubjectImages, len(req.SubjectImages))
	}
	if req.PrimaryIndex < 0 || req.PrimaryIndex >= len(req.SubjectImages) {
		return validationError("primary image index %d out of range", req.PrimaryIndex)
	}
	if len(req.Garments) == 0 || len(req.Garments) > maxGarments {
		return validationError("need between 1 and %d garments, got %d", maxGarments, len(req.Garments))
	}
	for i, garment := range req.Garments {
		if len(garment.Image) == 0 {
			return validationError("garment %d has no image data", i)
		}
	}
	return nil
}

// Generate runs the render with up to MaxAttempts tries. The first rejection
// triggers a heuristic vocabulary rewrite, the second a model-assisted
// rewrite, the third a model-assisted rewrite at maximum strictness.
// Transient failures retry with the prompt unchanged. Every failed attempt
// that leads to another try is recorded, so a fully exhausted run carries
// MaxAttempts-1 records.
func (p *TryOnPipeline) Generate(ctx context.Context, req *GenerationRequest) (*TryOnResult, error) {
	if verr := p.validate(req); verr != nil {
		return nil, verr
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = maxGenerationAttempts
	}

	meta := req.Metadata.Clone()
	for i := range req.Garments {
		req.Garments[i].Category = NormalizeClothingCategory(req.Garments[i].Category, req.Garments[i].Name)
	}

	sensitive := req.KnownSensitive || IsSensitiveMetadata(meta, garmentHint(req.Garments))
	if !sensitive && p.LLM != nil {
		// one vision call on the outermost garment, the rest ride on the
		// heuristics and per-clothing flags set at upload time
		first := req.Garments[0]
		flagged, label := VisionSensitivityCheck(ctx, p.LLM, first.Image)
		if flagged {
			fmt.Printf("[TryOn] vision check flagged garment %d as sensitive: %s\n", first.ID, label)
			sensitive = true
		}
	}

	modestyApplied := false
	if sensitive {
		var clause string
		meta, clause = ApplyModestyContract(meta)
		fmt.Printf("[TryOn] modesty contract applied: %s\n", clause)
		modestyApplied = true
	}

	rawImages := make([][]byte, 0, len(req.SubjectImages)+len(req.Garments))
	rawImages = append(rawImages, req.SubjectImages...)
	for _, garment := range req.Garments {
		rawImages = append(rawImages, garment.Image)
	}
	encoded, err := EncodeImagesUnderBudget(rawImages, req.PrimaryIndex)
	if err != nil {
		return nil, &GenerationError{Kind: ErrKindInternal, Message: fmt.Sprintf("failed to encode images: %v", err)}
	}
	subjectParts := encoded[:len(req.SubjectImages)]
	garmentParts := encoded[len(req.SubjectImages):]

	prompt := BuildTryOnPrompt(meta, req.Garments, req.SubjectAttributesJSON)

	retryInfo := &RetryInfo{}
	var lastKind GenerationErrorKind
	var lastFinishReason string
	var lastFailure string
	var inputTokens, outputTokens, totalTokens int32

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryInfo.TotalAttempts = attempt
		fmt.Printf("[TryOn] attempt %d/%d, prompt length %d\n", attempt, maxAttempts, len(prompt))

		request := p.buildRequest(subjectParts, garmentParts, req.PrimaryIndex, prompt)
		callCtx, cancel := context.WithTimeout(ctx, generationCallTimeout)
		response, err := p.Poster.PostGenerateContent(callCtx, req.Model.String(), request)
		cancel()

		var rejected bool
		var failureText string

		if err != nil {
			if statusErr, ok := err.(*HTTPStatusError); ok {
				rejected = IsContentRejection("", statusErr.StatusCode, statusErr.Body, nil)
				failureText = statusErr.Body
			} else {
				rejected = IsContentRejection("", 0, err.Error(), nil)
				failureText = err.Error()
			}
			lastFinishReason = ""
		} else {
			if response.UsageMetadata != nil {
				inputTokens += response.UsageMetadata.PromptTokenCount
				outputTokens += response.UsageMetadata.CandidatesTokenCount
				totalTokens += response.UsageMetadata.TotalTokenCount
			}
			imageBytes, mimeType, decodeErr := response.FirstInlineImage()
			finishReason := response.FirstFinishReason()
			if decodeErr != nil {
				rejected = false
				failureText = decodeErr.Error()
			} else if len(imageBytes) > 0 && !IsContentRejection(finishReason, 0, "", nil) {
				retryInfo.FinalStatus = "success"
				return &TryOnResult{
					ImageBytes:      imageBytes,
					MIMEType:        mimeType,
					FinishReason:    finishReason,
					RetryInfo:       retryInfo,
					ModestyApplied:  modestyApplied,
					InputTokenCount: inputTokens,
					OutputTokens:    outputTokens,
					TotalTokens:     totalTokens,
				}, nil
			} else {
				// a safety finish reason voids any image data the response carries
				lastFinishReason = finishReason
				failureText = candidateText(response)
				rejected = IsContentRejection(lastFinishReason, 0, failureText, response.AllSafetyRatings())
			}
		}

		if rejected {
			lastKind = ErrKindContentRejection
		} else {
			lastKind = ErrKindTransient
		}
		lastFailure = failureText
		fmt.Printf("[TryOn] attempt %d failed (%s), finish reason %q: %s\n", attempt, lastKind, lastFinishReason, truncateForLog(failureText, 300))

		if attempt == maxAttempts {
			break
		}

		record := AttemptRecord{Attempt: attempt, Trigger: string(lastKind)}
		if rejected {
			failureContext := failureText
			if lastFinishReason != "" {
				failureContext = fmt.Sprintf("finish reason %s: %s", lastFinishReason, failureText)
			}
			var summary string
			switch attempt {
			case 1:
				record.Strategy = "heuristic"
				meta, prompt, summary = RewriteForModestyHeuristic(meta, prompt, "moderate")
			case 2:
				record.Strategy = "llm-assisted (moderate)"
				meta, prompt, summary = RewriteForModestyLLM(ctx, p.LLM, meta, prompt, failureContext, "moderate")
			default:
				record.Strategy = "llm-assisted (max)"
				meta, prompt, summary = RewriteForModestyLLM(ctx, p.LLM, meta, prompt, failureContext, "max")
			}
			record.Summary = summary
			modestyApplied = true
		} else {
			record.Strategy = "retry (unchanged)"
			record.Summary = fmt.Sprintf("transient_failure: %s", truncateForLog(failureText, 200))
		}
		retryInfo.Attempts = append(retryInfo.Attempts, record)
	}

	retryInfo.FinalStatus = "exhausted"
	message := fmt.Sprintf("generation exhausted after %d attempts", maxAttempts)
	if lastFinishReason != "" {
		message += fmt.Sprintf(", last finish reason %s", lastFinishReason)
	}
	if lastFailure != "" {
		message += ": " + truncateForLog(lastFailure, 300)
	}
	if lastKind == ErrKindContentRejection {
		message += ". The safety filter refused every rewrite, choose a less revealing garment or a different subject photo"
	}
	genErr := &GenerationError{
		Kind:         lastKind,
		Message:      message,
		FinishReason: lastFinishReason,
		RetryInfo:    retryInfo,
	}
	sentry.CaptureException(genErr)
	return nil, genErr
}

func (p *TryOnPipeline) buildRequest(subjects []EncodedImage, garments []EncodedImage, primaryIndex int, prompt string) *GenerateContentRequest {
	parts := make([]RestPart, 0, len(subjects)+len(garments)+1)
	// primary subject image goes first so identity anchors the render
	parts = append(parts, RestPart{Inline: &RestInlineData{MIMEType: subjects[primaryIndex].MIMEType, Data: subjects[primaryIndex].Base64}})
	for i, subject := range subjects {
		if i == primaryIndex {
			continue
		}
		parts = append(parts, RestPart{Inline: &RestInlineData{MIMEType: subject.MIMEType, Data: subject.Base64}})
	}
	for _, garment := range garments {
		parts = append(parts, RestPart{Inline: &RestInlineData{MIMEType: garment.MIMEType, Data: garment.Base64}})
	}
	parts = append(parts, RestPart{Text: prompt})

	return &GenerateContentRequest{
		Contents: []RestContent{{Role: "user", Parts: parts}},
		GenerationConfig: RestGenerationConfig{
			Temperature:        floatPointer(1),
			MaxOutputTokens:    32768,
			CandidateCount:     1,
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
		SafetySettings: AggressiveSafetySettings(),
	}
}

func garmentHint(garments []GarmentInput) string {
	var hints []string
	for _, garment := range garments {
		hints = append(hints, garment.Name, garment.Category, garment.WearingInstructions)
	}
	return strings.Join(hints, " ")
}

func candidateText(response *GenerateContentResponse) string {
	var texts []string
	for _, cand := range response.Candidates {
		if cand.FinishMessage != "" {
			texts = append(texts, cand.FinishMessage)
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
	}
	if response.PromptFeedback != nil && response.PromptFeedback.BlockReasonMessage != "" {
		texts = append(texts, response.PromptFeedback.BlockReasonMessage)
	}
	return strings.Join(texts, " ")
}

func truncateForLog(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

// BuildTryOnPrompt renders the generation prompt from the styling metadata
// and garment roster. The first image is always the person, garments follow
// in layer order as listed.
func BuildTryOnPrompt(meta *StylingMetadata, garments []GarmentInput, subjectAttributesJSON string) string {
	if meta == nil {
		meta = &StylingMetadata{}
	}
	var b strings.Builder

	b.WriteString("Edit the first person image into a fashion-style full-body commercial head to toe photograph. ")
	b.WriteString("Keep the person's identity, personality and facial identity exactly the same, 100% unchanged, with the same body, hand, head and leg proportions. ")
	b.WriteString("Dress the same exact person in the garment images that follow, layered naturally. For body areas no garment covers, keep the person's original clothing. ")

	for i, garment := range garments {
		b.WriteString(fmt.Sprintf("Garment image %d is %q (%s, layer %d)", i+1, garment.Name, garment.Category, garment.LayerOrder))
		if garment.WearingInstructions != "" {
			b.WriteString(", worn as follows: ")
			b.WriteString(garment.WearingInstructions)
		}
		b.WriteString(". ")
	}
	if meta.WearingInstructions != "" {
		b.WriteString("Overall wearing instructions: ")
		b.WriteString(meta.WearingInstructions)
		b.WriteString(". ")
	}
	for slot, style := range meta.ItemsWearingStyles {
		b.WriteString(fmt.Sprintf("Wearing style for %s: %s. ", slot, style))
	}

	if meta.Background != "" {
		b.WriteString("Background: " + meta.Background + ". ")
	}
	if meta.Framing != "" {
		b.WriteString("Framing: " + meta.Framing + ". ")
	}
	if meta.Pose != "" {
		b.WriteString("Pose: " + meta.Pose + ". ")
	}
	if meta.Camera != "" {
		b.WriteString("Camera: " + meta.Camera + ". ")
	}
	if meta.Style != "" {
		b.WriteString("Style: " + meta.Style + ". ")
	}
	if meta.ContentPolicy != "" {
		b.WriteString("Content policy: " + meta.ContentPolicy + ". ")
	}
	if subjectAttributesJSON != "" {
		b.WriteString("Subject visual attributes for faithful rendering: ")
		b.WriteString(subjectAttributesJSON)
		b.WriteString(". ")
	}

	if meta.ModestyContract {
		b.WriteString(modestyContractClause)
		b.WriteString(" ")
	}

	b.WriteString("The lighting should be natural, soft and professional, high-resolution. Remove items from hands, position neutrally with a slight smile. Clean all background elements, watermarks, other people and objects. Output only the full-body person.")
	return b.String()
}
