package services

// StylingMetadata is the mutable styling state carried across retry attempts.
// Known fields are typed so the rewriter can pattern-match them; unknown
// caller-supplied keys round-trip untouched through Extras.
type StylingMetadata struct {
	Background string `json:"background,omitempty"`
	Style      string `json:"style,omitempty"`
	Framing    string `json:"framing,omitempty"`
	Pose       string `json:"pose,omitempty"`
	Camera     string `json:"camera,omitempty"`

	// mandatory per-item directives; rewriting may reword these but never drop them
	WearingInstructions string            `json:"wearing_instructions,omitempty"`
	ItemsWearingStyles  map[string]string `json:"items_wearing_styles,omitempty"`

	// modesty contract flags, set pre-emptively for sensitive requests
	ModestyContract    bool   `json:"modesty_contract,omitempty"`
	IntimateMode       bool   `json:"intimate_mode,omitempty"`
	AllowUnderlayer    bool   `json:"allow_underlayer,omitempty"`
	CoveragePreference string `json:"coverage_preference,omitempty"`
	OpacityPreference  string `json:"opacity_preference,omitempty"`
	AvoidCloseups      bool   `json:"avoid_closeups,omitempty"`

	ContentPolicy string `json:"content_policy,omitempty"`

	Extras map[string]interface{} `json:"extras,omitempty"`
}

// Clone returns a deep copy so each attempt sees a frozen snapshot and the
// rewriter never mutates the previous attempt's state in place.
func (m *StylingMetadata) Clone() *StylingMetadata {
	if m == nil {
		return &StylingMetadata{}
	}
	copied := *m
	if m.ItemsWearingStyles != nil {
		copied.ItemsWearingStyles = make(map[string]string, len(m.ItemsWearingStyles))
		for k, v := range m.ItemsWearingStyles {
			copied.ItemsWearingStyles[k] = v
		}
	}
	if m.Extras != nil {
		copied.Extras = make(map[string]interface{}, len(m.Extras))
		for k, v := range m.Extras {
			copied.Extras[k] = cloneValue(v)
		}
	}
	return &copied
}

func cloneValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		copied := make(map[string]interface{}, len(v))
		for k, item := range v {
			copied[k] = cloneValue(item)
		}
		return copied
	case []interface{}:
		copied := make([]interface{}, len(v))
		for i, item := range v {
			copied[i] = cloneValue(item)
		}
		return copied
	default:
		return v
	}
}
