package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// substitution table of sensitive/explicit terms and their neutral equivalents;
// package variable so the vocabulary can be tuned without touching the rewriter
var ModestyTermSubstitutions = []struct {
	From string
	To   string
}{
	{"lingerie", "intimate apparel"},
	{"see-through", "semi-transparent"},
	{"see through", "semi-transparent"},
	{"sheer", "semi-transparent"},
	{"fishnet", "patterned mesh"},
	{"thong", "minimal brief"},
	{"g-string", "minimal brief"},
	{"crotchless", "tailored"},
	{"sexy", "stylish"},
	{"seductive", "elegant"},
	{"provocative", "fashion-forward"},
	{"sensual", "graceful"},
	{"erotic", "sophisticated"},
	{"naked", "unadorned"},
	{"nude", "neutral-tone"},
	{"topless", "open-layer"},
	{"skimpy", "minimal"},
	{"revealing", "lightweight"},
}

var substitutionPatterns = buildSubstitutionPatterns()

func buildSubstitutionPatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(ModestyTermSubstitutions))
	for i, sub := range ModestyTermSubstitutions {
		patterns[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(sub.From))
	}
	return patterns
}

// SanitizeText replaces every sensitive term with its neutral equivalent,
// case-insensitively.
func SanitizeText(text string) string {
	for i, pattern := range substitutionPatterns {
		text = pattern.ReplaceAllString(text, ModestyTermSubstitutions[i].To)
	}
	return text
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return SanitizeText(v)
	case []interface{}:
		for i, item := range v {
			v[i] = sanitizeValue(item)
		}
		return v
	case map[string]interface{}:
		for k, item := range v {
			v[k] = sanitizeValue(item)
		}
		return v
	default:
		return v
	}
}

func sanitizeMetadata(meta *StylingMetadata) {
	meta.Background = SanitizeText(meta.Background)
	meta.Style = SanitizeText(meta.Style)
	meta.Framing = SanitizeText(meta.Framing)
	meta.Pose = SanitizeText(meta.Pose)
	meta.Camera = SanitizeText(meta.Camera)
	meta.WearingInstructions = SanitizeText(meta.WearingInstructions)
	for k, v := range meta.ItemsWearingStyles {
		meta.ItemsWearingStyles[k] = SanitizeText(v)
	}
	for k, v := range meta.Extras {
		meta.Extras[k] = sanitizeValue(v)
	}
}

// conservative defaults, applied only when the caller left the field empty
func applyConservativeDefaults(meta *StylingMetadata) []string {
	var applied []string
	if meta.Background == "" {
		meta.Background = "clean minimalist studio backdrop with soft neutral tones"
		applied = append(applied, "background")
	}
	if meta.Framing == "" {
		meta.Framing = "full-body editorial fashion photograph"
		applied = append(applied, "framing")
	}
	if meta.Camera == "" {
		meta.Camera = "eye-level, medium distance"
		applied = append(applied, "camera")
	}
	if meta.Pose == "" {
		meta.Pose = "relaxed natural standing pose"
		applied = append(applied, "pose")
	}
	if meta.ContentPolicy == "" {
		meta.ContentPolicy = "general-audience, brand-safe fashion imagery"
		applied = append(applied, "content_policy")
	}
	return applied
}

const safetyComplianceDirective = "\n\nSAFETY COMPLIANCE: Produce a modest, professional, general-audience fashion photograph. " +
	"All garments must be presented tastefully on a fully clothed subject in a commercial catalog style. " +
	"Avoid any suggestive posing, framing or emphasis."

const maxSafetyDirective = "\nMAXIMUM SAFETY: Avoid close-up shots entirely. Default to fully opaque fabrics " +
	"and add tasteful layering wherever coverage could be ambiguous. Frame the subject as a head-to-toe studio portrait."

// RewriteForModestyHeuristic deep-clones the metadata, substitutes sensitive
// terms across every string value and the prompt, sets conservative defaults
// only where absent, and appends a safety compliance directive. The strictness
// "max" escalates the directive wording. Never fails and makes no external
// calls.
func RewriteForModestyHeuristic(meta *StylingMetadata, prompt string, strictness string) (*StylingMetadata, string, string) {
	newMeta := meta.Clone()
	sanitizeMetadata(newMeta)
	defaultsApplied := applyConservativeDefaults(newMeta)

	newPrompt := SanitizeText(prompt) + safetyComplianceDirective
	if strictness == "max" {
		newPrompt += maxSafetyDirective
	}

	summary := fmt.Sprintf("heuristic_rewrite: substituted sensitive terms, strictness=%s", strictness)
	if len(defaultsApplied) > 0 {
		summary += ", defaults set: " + strings.Join(defaultsApplied, ",")
	}
	return newMeta, newPrompt, summary
}

const modestyContractClause = "\n\nMODESTY CONTRACT: The requested garment may be intimate or minimal-coverage apparel. " +
	"You are permitted and encouraged to add an opaque underlayer or lining beneath the garment so that the output " +
	"complies with safety policies while the garment itself stays fully recognizable. Keep coverage high, fabrics " +
	"opaque and the framing a modest full-body fashion shot. Never produce close-up crops of the torso."

// ApplyModestyContract injects the deterministic pre-emptive modesty flags and
// conservative defaults, returning the prompt clause to append before the
// first attempt. Independent of failure-driven rewriting.
func ApplyModestyContract(meta *StylingMetadata) (*StylingMetadata, string) {
	newMeta := meta.Clone()
	newMeta.ModestyContract = true
	newMeta.IntimateMode = true
	newMeta.AllowUnderlayer = true
	newMeta.CoveragePreference = "high"
	newMeta.OpacityPreference = "opaque"
	newMeta.AvoidCloseups = true
	applyConservativeDefaults(newMeta)
	return newMeta, modestyContractClause
}

// LLMRewriter is a text-generation call that proposes a compliance rewrite of
// the current prompt and metadata, returning strict JSON.
type LLMRewriter interface {
	RewriteForCompliance(ctx context.Context, metadataJSON string, prompt string, failureContext string, strictness string) (string, error)
}

type llmRewriteResponse struct {
	PromptAdditions string           `json:"prompt_additions"`
	Metadata        *StylingMetadata `json:"metadata"`
	Changes         []string         `json:"changes"`
}

// RewriteForModestyLLM asks the text model for a compliance rewrite and then
// always passes the result back through the heuristic rewrite as a defensive
// second pass. Mandatory wearing directives survive the merge even if the
// model dropped them. On any failure it degrades transparently to the
// heuristic strategy, recording the fallback in the summary.
func RewriteForModestyLLM(ctx context.Context, rewriter LLMRewriter, meta *StylingMetadata, prompt string, failureContext string, strictness string) (*StylingMetadata, string, string) {
	if rewriter == nil {
		newMeta, newPrompt, summary := RewriteForModestyHeuristic(meta, prompt, strictness)
		return newMeta, newPrompt, "llm_rewrite_fallback (no rewriter configured): " + summary
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		newMeta, newPrompt, summary := RewriteForModestyHeuristic(meta, prompt, strictness)
		return newMeta, newPrompt, "llm_rewrite_fallback (metadata marshal): " + summary
	}

	raw, err := rewriter.RewriteForCompliance(ctx, string(metaJSON), prompt, failureContext, strictness)
	if err != nil {
		fmt.Printf("[Rewrite] LLM rewrite failed, falling back to heuristic: %v\n", err)
		newMeta, newPrompt, summary := RewriteForModestyHeuristic(meta, prompt, strictness)
		return newMeta, newPrompt, "llm_rewrite_fallback: " + summary
	}

	var parsed llmRewriteResponse
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &parsed); err != nil {
		fmt.Printf("[Rewrite] LLM rewrite returned unparseable JSON, falling back to heuristic: %v\n", err)
		newMeta, newPrompt, summary := RewriteForModestyHeuristic(meta, prompt, strictness)
		return newMeta, newPrompt, "llm_rewrite_fallback: " + summary
	}

	candidate := meta.Clone()
	if parsed.Metadata != nil {
		merged := parsed.Metadata.Clone()
		// the model must never silently drop a mandatory directive
		if merged.WearingInstructions == "" {
			merged.WearingInstructions = candidate.WearingInstructions
		}
		if len(merged.ItemsWearingStyles) == 0 {
			merged.ItemsWearingStyles = candidate.ItemsWearingStyles
		}
		if merged.ModestyContract || candidate.ModestyContract {
			merged.ModestyContract = true
		}
		candidate = merged
	}

	candidatePrompt := prompt
	if parsed.PromptAdditions != "" {
		candidatePrompt = prompt + "\n" + parsed.PromptAdditions
	}

	// model output always goes through the heuristic pass again
	newMeta, newPrompt, _ := RewriteForModestyHeuristic(candidate, candidatePrompt, strictness)
	summary := fmt.Sprintf("llm_rewrite: %s (strictness=%s, re-sanitized)", strings.Join(parsed.Changes, "; "), strictness)
	return newMeta, newPrompt, summary
}
