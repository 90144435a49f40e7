package models

type Clothing struct {
	JsonModel
	Name        string      `json:"name"`
	Description *string     `gorm:"type:text" json:"description"`
	Owner       UserAccount `json:"-"`
	OwnerID     uint        `json:"-"`
	CompanyID   uint        `json:"-"`
	Company     Company     `json:"company"`
	// canonical UPPER_CASE category, e.g. UPPER_BODY, LOWER_BODY, SHOES, ACCESSORIES, FULL_BODY
	Category string `json:"category"`
	// coarse slot the garment occupies on the body, derived from category
	BodyRegion string `json:"body_region"`
	// order in which layered garments are worn, lower is closer to skin
	LayerOrder          int     `json:"layer_order"`
	Status              string  `json:"status"`            // temporary, in_closet
	ImageStatus         string  `json:"image_status"`      // draft, uploaded
	ProcessingStatus    string  `json:"processing_status"` // idle, pending, generating, completed, failed
	ProcessRetryTimes   int     `json:"process_retry_times"`
	ProcessErrorMessage *string `json:"process_error_message"`
	ImageURL            *string `json:"image_url"`
	// vision classification output, e.g. garment label and attributes
	ClassificationJSON *string `gorm:"type:text" json:"-"`
	// flagged as intimate/minimal-coverage apparel by the sensitivity check
	Sensitive bool `gorm:"default:false" json:"sensitive"`
	// per-item wearing directive supplied by the user ("tucked in", "open over tee")
	WearingInstructions *string `json:"wearing_instructions"`
}

type ClothingTryonGeneration struct {
	JsonModel
	UserAccountID uint        `json:"-"`
	UserAccount   UserAccount `json:"user_account"`
	CompanyID     uint        `json:"company_id"`
	Company       Company     `json:"company"`

	// user avatar at the point of generation
	GeneratedWithAvatarURL string `json:"generated_with_avatar_url"`
	// garment ids joined for this generation, up to five
	GarmentIDsJSON string `json:"garment_ids"`
	// styling metadata snapshot the generation started from
	StylingMetadataJSON *string `gorm:"type:text" json:"-"`

	TryOnPreviewImageURL *string  `json:"try_on_preview_image_url"`
	Status               string   `json:"status"`   // pending, completed, failed
	Duration             *float64 `json:"duration"` // in seconds
	LLMModel             *string  `json:"llm_model"`
	LLMInputTokenCount   *int32   `json:"llm_input_token_usage"`
	LLMOutputTokenCount  *int32   `json:"llm_output_token_usage"`
	LLMTotalTokenCount   *int32   `json:"llm_total_token_usage"`

	// audit trail of rewrites made between rejected attempts
	RetryInfoJSON          *string `gorm:"type:text" json:"retry_info"`
	ModestyApplied         bool    `gorm:"default:false" json:"modesty_applied"`
	LastFinishReason       *string `json:"last_finish_reason"`
	GenerationRetryTimes   int     `json:"generation_retry_times"`
	GenerationErrorMessage *string `json:"generation_error_message"`
}
