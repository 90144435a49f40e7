package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// vocabulary of intimate/minimal-coverage terms; exposed as a package variable
// so deployments can extend it without touching the classifier
var SensitiveApparelTerms = []string{
	"lingerie",
	"bra",
	"bralette",
	"thong",
	"g-string",
	"bikini",
	"swimsuit",
	"swimwear",
	"underwear",
	"undergarment",
	"panties",
	"briefs",
	"boxers",
	"corset",
	"bodysuit",
	"babydoll",
	"negligee",
	"camisole",
	"chemise",
	"teddy",
	"sheer",
	"see-through",
	"see through",
	"transparent",
	"mesh",
	"fishnet",
	"lace",
	"nude",
	"naked",
	"topless",
	"revealing",
	"skimpy",
	"micro",
	"crotchless",
}

var sensitiveCategoryHints = []string{
	"lingerie",
	"underwear",
	"intimate",
	"swimwear",
	"swim",
}

func stringHasSensitiveTerm(value string) bool {
	lower := strings.ToLower(value)
	for _, term := range SensitiveApparelTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func valueHasSensitiveTerm(value interface{}) bool {
	switch v := value.(type) {
	case string:
		return stringHasSensitiveTerm(v)
	case []string:
		for _, item := range v {
			if stringHasSensitiveTerm(item) {
				return true
			}
		}
	case []interface{}:
		for _, item := range v {
			if valueHasSensitiveTerm(item) {
				return true
			}
		}
	case map[string]interface{}:
		for _, item := range v {
			if valueHasSensitiveTerm(item) {
				return true
			}
		}
	}
	return false
}

// IsSensitiveMetadata scans the category hint and every string value inside the
// styling metadata (including nested per-item wearing styles) for
// intimate/minimal-coverage vocabulary. Case-insensitive, no external calls.
func IsSensitiveMetadata(meta *StylingMetadata, categoryHint string) bool {
	if categoryHint != "" {
		lower := strings.ToLower(categoryHint)
		for _, hint := range sensitiveCategoryHints {
			if strings.Contains(lower, hint) {
				return true
			}
		}
	}
	if meta == nil {
		return false
	}
	for _, field := range []string{meta.Background, meta.Style, meta.Framing, meta.Pose, meta.Camera} {
		if stringHasSensitiveTerm(field) {
			return true
		}
	}
	if meta.WearingInstructions != "" && stringHasSensitiveTerm(meta.WearingInstructions) {
		return true
	}
	for _, style := range meta.ItemsWearingStyles {
		if stringHasSensitiveTerm(style) {
			return true
		}
	}
	for _, extra := range meta.Extras {
		if valueHasSensitiveTerm(extra) {
			return true
		}
	}
	return false
}

type visionSensitivityResponse struct {
	IsIntimate bool   `json:"is_intimate"`
	Label      string `json:"label"`
	Reason     string `json:"reason"`
}

// VisionSensitivityCheck asks the vision model a strict yes/no "is this
// intimate/minimal-coverage apparel" question about the garment image. The
// MIME type is sniffed from the bytes themselves. Any network or parse
// failure is swallowed and reported as not sensitive, this path is a
// best-effort enhancement only.
func VisionSensitivityCheck(ctx context.Context, llm LLMProcessor, garmentBytes []byte) (bool, string) {
	if llm == nil || len(garmentBytes) == 0 {
		return false, ""
	}
	raw, err := llm.ClassifyGarmentSensitivity(ctx, garmentBytes, DetectImageMIMEType(garmentBytes))
	if err != nil {
		fmt.Printf("[Sensitivity] vision check failed, treating as not sensitive: %v\n", err)
		return false, ""
	}
	var parsed visionSensitivityResponse
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &parsed); err != nil {
		fmt.Printf("[Sensitivity] vision check returned unparseable output, treating as not sensitive: %v\n", err)
		return false, ""
	}
	return parsed.IsIntimate, parsed.Label
}
