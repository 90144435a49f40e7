package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"changeroomapi/models"
	"changeroomapi/services"
	"changeroomapi/telegram"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

const (
	TypeTryOnGeneration    = "generate:tryon"
	TypeClothingProcessing = "generate:process_clothing"
	TypeAvatarAnalysis     = "generate:analyze_avatar"
)

type TryOnGenerationPayload struct {
	UserID  uint `json:"user_id"`
	TryOnID uint `json:"try_on_id"`
}
type ClothingProcessingPayload struct {
	ClothingId uint `json:"clothing_id"`
}
type AvatarAnalysisPayload struct {
	UserID uint `json:"user_id"`
}

// Client initializes an asynq client for enqueuing tasks
func NewClient() (*asynq.Client, error) {
	return asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}), nil
}

func NewTryOnGenerationTask(userID uint, tryOnID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(TryOnGenerationPayload{UserID: userID, TryOnID: tryOnID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTryOnGeneration, payload), nil

}

func NewClothingProcessingTask(clothingId uint) (*asynq.Task, error) {
	payload, err := json.Marshal(ClothingProcessingPayload{ClothingId: clothingId})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeClothingProcessing, payload), nil

}

func NewAvatarAnalysisTask(userID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(AvatarAnalysisPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAvatarAnalysis, payload), nil

}

func downloadR2Object(awsService services.AWSServiceProvider, objectKey string) ([]byte, string, error) {
	bucketName := os.Getenv("R2_BUCKET_NAME")
	fileName := filepath.Base(objectKey)
	fileUrl, err := awsService.GetPresignedR2FileReadURL(context.TODO(), bucketName, objectKey)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("error on getting presigned URL for file %s: %v", objectKey, err))
		return nil, fileName, err
	}
	fmt.Printf("Downloading... %s\n", fileUrl)
	fileBytes, err := services.ReadFileFromUrl(fileUrl)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("error on downloading file %s: %v", objectKey, err))
		return nil, fileName, err
	}

	return fileBytes, fileName, nil
}

func resolveModel(company models.Company) services.LLMModelName {
	model := services.Flash25Image
	if company.EnforcedLLMModel != nil {
		model = services.LLMModelName(*company.EnforcedLLMModel)
		fmt.Printf("[ENFORCE MODEL] Using enforced model: %s\n", model.String())
	}
	return model
}

func previewExtension(mimeType string) string {
	if mimeType == "image/png" {
		return "png"
	}
	return "jpg"
}

// HandleTryOnGenerationTask renders a try-on preview for a queued generation.
func HandleTryOnGenerationTask(
	ctx context.Context, t *asynq.Task, db *gorm.DB, llm services.LLMProcessor,
	poster services.GeminiPoster, awsService services.AWSServiceProvider, fbApp *firebase.App) error {
	google_key := os.Getenv("GOOGLE_API_KEY")
	if google_key == "" {
		sentry.CaptureException(fmt.Errorf("[QUEUE] %s Google API key is not set", string(t.Payload())))
		return fmt.Errorf("[QUEUE] %s Google API key is not set", string(t.Payload()))
	}
	var payload TryOnGenerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[TryOn: %v] Start Processing\n", payload.TryOnID)
	var generation models.ClothingTryonGeneration
	res := db.Joins("Company").Joins("UserAccount").First(&generation, payload.TryOnID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving try-on for processing %v", payload.TryOnID))
		return res.Error
	}
	if generation.Status == "completed" {
		fmt.Printf("[TryOn: %v] Already completed\n", payload.TryOnID)
		return nil
	}
	user := generation.UserAccount

	var garmentIds []uint
	if err := json.Unmarshal([]byte(generation.GarmentIDsJSON), &garmentIds); err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Broken garment ids json %q: %v", payload.TryOnID, generation.GarmentIDsJSON, err))
		saveTryOnFail(db, &generation, "We could not read the selected clothes, please start a new try-on", false)
		return nil
	}
	var garments []models.Clothing
	if err := db.Where("id IN ?", garmentIds).Find(&garments).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error on retrieving garments %v: %v", payload.TryOnID, garmentIds, err))
		return err
	}
	if len(garments) == 0 {
		saveTryOnFail(db, &generation, "Selected clothes are no longer available, please start a new try-on", false)
		return nil
	}

	subjectBytes, _, err := downloadR2Object(awsService, generation.GeneratedWithAvatarURL)
	if err != nil {
		saveTryOnFail(db, &generation, "Failed to read your avatar photo, please set your avatar again", true)
		return err
	}

	garmentInputs := make([]services.GarmentInput, 0, len(garments))
	knownSensitive := false
	for _, garment := range garments {
		if garment.ImageURL == nil || *garment.ImageURL == "" {
			saveTryOnFail(db, &generation, fmt.Sprintf("Clothing %q has no image, please re-upload it", garment.Name), false)
			return nil
		}
		garmentBytes, _, err := downloadR2Object(awsService, *garment.ImageURL)
		if err != nil {
			saveTryOnFail(db, &generation, "Failed to read one of the clothing images, please try again", true)
			return err
		}
		wearing := ""
		if garment.WearingInstructions != nil {
			wearing = *garment.WearingInstructions
		}
		if garment.Sensitive {
			knownSensitive = true
		}
		garmentInputs = append(garmentInputs, services.GarmentInput{
			ID:                  garment.ID,
			Name:                garment.Name,
			Category:            garment.Category,
			LayerOrder:          garment.LayerOrder,
			WearingInstructions: wearing,
			Image:               garmentBytes,
		})
	}

	var meta *services.StylingMetadata
	if generation.StylingMetadataJSON != nil && *generation.StylingMetadataJSON != "" {
		meta = &services.StylingMetadata{}
		if err := json.Unmarshal([]byte(*generation.StylingMetadataJSON), meta); err != nil {
			sentry.CaptureException(fmt.Errorf("[TryOn: %v] Broken styling metadata json: %v", payload.TryOnID, err))
			meta = nil
		}
	}
	subjectAttributes := ""
	if user.SubjectAttributesJSON != nil {
		subjectAttributes = *user.SubjectAttributesJSON
	}

	model := resolveModel(generation.Company)
	modelString := model.String()
	fmt.Printf("[TryOn: %v] Model: %s, garments: %v, known sensitive: %v\n", payload.TryOnID, modelString, len(garmentInputs), knownSensitive)

	pipeline := services.NewTryOnPipeline(poster, llm)
	started := time.Now()
	result, genErr := pipeline.Generate(ctx, &services.GenerationRequest{
		SubjectImages:         [][]byte{subjectBytes},
		PrimaryIndex:          0,
		Garments:              garmentInputs,
		Metadata:              meta,
		SubjectAttributesJSON: subjectAttributes,
		KnownSensitive:        knownSensitive,
		Model:                 model,
	})
	duration := time.Since(started).Seconds()
	generation.Duration = &duration
	generation.LLMModel = &modelString

	if genErr != nil {
		var pipelineErr *services.GenerationError
		if errors.As(genErr, &pipelineErr) {
			if pipelineErr.FinishReason != "" {
				generation.LastFinishReason = services.StrPointer(pipelineErr.FinishReason)
			}
			if pipelineErr.RetryInfo != nil {
				if retryJson, marshalErr := json.Marshal(pipelineErr.RetryInfo); marshalErr == nil {
					generation.RetryInfoJSON = services.StrPointer(string(retryJson))
				}
			}
			switch pipelineErr.Kind {
			case services.ErrKindContentRejection:
				fmt.Printf("[TryOn: %v] Exhausted after content rejections: %s\n", payload.TryOnID, pipelineErr.Message)
				telegram.NotifyGenerationExhausted(generation.ID, user.ID, pipelineErr.FinishReason)
				saveTryOnFail(db, &generation, "Sorry, we could not render this outfit within our content guidelines. Try different clothes or styling.", false)
				if user.ReceiveNotifications {
					services.SendNotification(fbApp, db, user.ID, "Try-on could not be generated", "This outfit could not be rendered, please try different clothes", map[string]string{"try_on_id": fmt.Sprintf("%d", generation.ID), "type": "tryon_failed"})
				}
				return nil
			case services.ErrKindValidation, services.ErrKindConfiguration:
				saveTryOnFail(db, &generation, "This try-on request is invalid, please start a new one", false)
				return nil
			default:
				saveTryOnFail(db, &generation, "Generation failed, we will retry shortly", true)
				return genErr
			}
		}
		saveTryOnFail(db, &generation, "Generation failed, we will retry shortly", true)
		return genErr
	}

	previewBytes := result.ImageBytes
	// default catalog look gets a clean white backdrop, explicit scene requests keep theirs
	if meta == nil || meta.Background == "" {
		whitened, whitenErr := services.WhitenBackgroundFeathered(previewBytes, 235, 250, 0.6)
		if whitenErr != nil {
			fmt.Printf("[TryOn: %v] Background whitening skipped: %v\n", payload.TryOnID, whitenErr)
		} else {
			previewBytes = whitened
		}
	}

	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	previewKey := fmt.Sprintf("tryons/%v/tryon-%v.%s", user.ID, generation.ID, previewExtension(result.MIMEType))
	uploadUrl, presignErr := awsService.PresignLink(context.Background(), bucketName, previewKey)
	if presignErr != nil {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Unable to presign preview upload %s: %v", payload.TryOnID, previewKey, presignErr))
		saveTryOnFail(db, &generation, "Failed to store the try-on preview, we will retry shortly", true)
		return presignErr
	}
	respBody, statusCode, err := awsService.UploadToPresignedURL(context.Background(), bucketName, uploadUrl, previewBytes)
	fmt.Printf("[TryOn: %v] R2 upload size %v, url %s, response body: %s, status code: %d\n", payload.TryOnID, len(previewBytes), uploadUrl, respBody, statusCode)
	if err != nil || (statusCode != 200 && statusCode != 204) {
		sentry.CaptureException(fmt.Errorf("[TryOn: %v] Error on uploading preview %s: %v status %d", payload.TryOnID, previewKey, err, statusCode))
		saveTryOnFail(db, &generation, "Failed to store the try-on preview, we will retry shortly", true)
		return fmt.Errorf("[TryOn: %v] preview upload failed with status %d", payload.TryOnID, statusCode)
	}

	generation.TryOnPreviewImageURL = &previewKey
	generation.Status = "completed"
	generation.ModestyApplied = result.ModestyApplied
	generation.LastFinishReason = services.StrPointer(result.FinishReason)
	generation.LLMInputTokenCount = &result.InputTokenCount
	generation.LLMOutputTokenCount = &result.OutputTokens
	generation.LLMTotalTokenCount = &result.TotalTokens
	generation.GenerationErrorMessage = nil
	if result.RetryInfo != nil {
		if retryJson, marshalErr := json.Marshal(result.RetryInfo); marshalErr == nil {
			generation.RetryInfoJSON = services.StrPointer(string(retryJson))
		}
	}
	if err := db.Save(&generation).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on saving try-on %v", payload.TryOnID))
		return err
	}
	fmt.Printf("[TryOn: %v] Generation finished succesfully in %.1fs, IT: %d, OT: %d, TT: %d\n", payload.TryOnID, duration, result.InputTokenCount, result.OutputTokens, result.TotalTokens)
	if user.ReceiveNotifications {
		services.SendNotification(fbApp, db, user.ID, "Your try-on is ready", "Open the app to see your new look", map[string]string{"try_on_id": fmt.Sprintf("%d", generation.ID), "type": "tryon_completed"})
	}
	return nil
}

// HandleClothingProcessingTask classifies an uploaded garment photo and flags
// intimate apparel so later generations can armor their prompts up front.
func HandleClothingProcessingTask(
	ctx context.Context, t *asynq.Task, db *gorm.DB, llm services.LLMProcessor,
	awsService services.AWSServiceProvider) error {
	var payload ClothingProcessingPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Clothing: %v] Start Processing\n", payload.ClothingId)
	var clothing models.Clothing
	res := db.First(&clothing, payload.ClothingId)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving clothing for processing %v", payload.ClothingId))
		return res.Error
	}
	if clothing.ProcessingStatus == "completed" {
		fmt.Printf("[Clothing: %v] Already processed\n", payload.ClothingId)
		return nil
	}
	if clothing.ImageURL == nil || *clothing.ImageURL == "" {
		saveClothingFail(db, &clothing, "Clothing image was never uploaded, please re-create the item", false)
		return nil
	}
	clothing.ProcessingStatus = "generating"
	if err := db.Save(&clothing).Error; err != nil {
		sentry.CaptureException(err)
		return err
	}

	fileBytes, fileName, err := downloadR2Object(awsService, *clothing.ImageURL)
	if err != nil {
		saveClothingFail(db, &clothing, "Failed to read the clothing image, please try again", true)
		return err
	}
	fmt.Printf("[Clothing: %v] Downloaded file size: %d bytes\n", payload.ClothingId, len(fileBytes))

	answer, llmResponse, err := llm.ClassifyGarment(ctx, fileBytes, services.DetectImageMIMEType(fileBytes))
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Clothing: %v] Error on classifying garment %s: %v", payload.ClothingId, *clothing.ImageURL, err))
		saveClothingFail(db, &clothing, "Failed to analyze the clothing image, please try again", true)
		return err
	}
	if llmResponse != nil {
		fmt.Printf("[Clothing: %v] LLM Processed, IT: %d, OT: %d, TT: %d\n", payload.ClothingId, llmResponse.InputTokenCount, llmResponse.OutputTokenCount, llmResponse.TotalTokenCount)
	}
	classification, err := services.ParseClothingClassification(answer, fileName)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Clothing: %v] Error on parsing classification json %s", payload.ClothingId, answer))
		saveClothingFail(db, &clothing, "Failed to understand the clothing image, please try again", true)
		return err
	}

	if clothing.Name == "" {
		clothing.Name = classification.Name
	}
	if clothing.Description == nil && classification.Description != "" {
		clothing.Description = services.StrPointer(classification.Description)
	}
	clothing.Category = classification.Category
	clothing.BodyRegion = classification.BodyRegion
	clothing.LayerOrder = classification.LayerOrder
	if clothing.WearingInstructions == nil && classification.WearingInstructions != "" {
		clothing.WearingInstructions = services.StrPointer(classification.WearingInstructions)
	}
	clothing.ClassificationJSON = services.StrPointer(services.StripCodeFences(answer))

	sensitive, label := services.VisionSensitivityCheck(ctx, llm, fileBytes)
	clothing.Sensitive = sensitive
	if sensitive {
		fmt.Printf("[Clothing: %v] Flagged sensitive: %s\n", payload.ClothingId, label)
	}

	clothing.ImageStatus = "uploaded"
	clothing.ProcessingStatus = "completed"
	clothing.ProcessErrorMessage = nil
	if err := db.Save(&clothing).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on saving clothing %v", payload.ClothingId))
		return err
	}
	fmt.Printf("[Clothing: %v] Processing finished succesfully, category %s\n", payload.ClothingId, clothing.Category)
	return nil
}

// HandleAvatarAnalysisTask extracts subject attribute hints from the freshly
// uploaded full body avatar.
func HandleAvatarAnalysisTask(
	ctx context.Context, t *asynq.Task, db *gorm.DB, llm services.LLMProcessor,
	awsService services.AWSServiceProvider) error {
	var payload AvatarAnalysisPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Avatar: %v] Start Processing\n", payload.UserID)
	var user models.UserAccount
	res := db.First(&user, payload.UserID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on retrieving user for avatar analysis %v", payload.UserID))
		return res.Error
	}
	if user.UserFullBodyImageURL == nil || *user.UserFullBodyImageURL == "" {
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Full body avatar URL is nil", payload.UserID))
		return nil
	}

	fileBytes, _, err := downloadR2Object(awsService, *user.UserFullBodyImageURL)
	if err != nil {
		return err
	}

	answer, llmResponse, err := llm.AnalyzeSubjectAttributes(ctx, fileBytes, services.DetectImageMIMEType(fileBytes))
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Avatar: %v] Error on analyzing avatar %s: %v", payload.UserID, *user.UserFullBodyImageURL, err))
		return err
	}
	if llmResponse != nil {
		fmt.Printf("[Avatar: %v] LLM Processed, IT: %d, OT: %d, TT: %d\n", payload.UserID, llmResponse.InputTokenCount, llmResponse.OutputTokenCount, llmResponse.TotalTokenCount)
	}

	user.SubjectAttributesJSON = services.StrPointer(services.StripCodeFences(answer))
	user.FullBodyAvatarSet = true
	if err := db.Save(&user).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error on saving user after avatar analysis %v", payload.UserID))
		return err
	}
	fmt.Printf("[Avatar: %v] Avatar analysis finished succesfully\n", payload.UserID)
	return nil
}

func saveTryOnFail(db *gorm.DB, generation *models.ClothingTryonGeneration, msg string, shouldRetry bool) error {
	generation.GenerationRetryTimes = generation.GenerationRetryTimes + 1
	generation.GenerationErrorMessage = services.StrPointer(msg)
	if !shouldRetry || generation.GenerationRetryTimes >= 3 {

		generation.Status = "failed"
	}
	tx := db.Save(generation)
	if tx.Error != nil {
		sentry.CaptureException(fmt.Errorf("[Fail TryOn %v] Error on saving try-on for failed status", generation.ID))
		return tx.Error
	}
	return nil
}

func saveClothingFail(db *gorm.DB, clothing *models.Clothing, msg string, shouldRetry bool) error {
	clothing.ProcessRetryTimes = clothing.ProcessRetryTimes + 1
	clothing.ProcessErrorMessage = services.StrPointer(msg)
	if !shouldRetry || clothing.ProcessRetryTimes >= 3 {

		clothing.ProcessingStatus = "failed"
	}
	tx := db.Save(clothing)
	if tx.Error != nil {
		sentry.CaptureException(fmt.Errorf("[Fail Clothing %v] Error on saving clothing for failed status", clothing.ID))
		return tx.Error
	}
	return nil
}

// ScheduledCleanupTask removes temporary clothes that never made it into a closet.
func ScheduledCleanupTask(ctx context.Context, t *asynq.Task, db *gorm.DB) error {
	fmt.Printf("[Cleanup] Removing stale temporary clothes\n")
	cutoff := time.Now().Add(-48 * time.Hour)
	result := db.Where("status = ? AND created_at < ?", "temporary", cutoff).Delete(&models.Clothing{})
	if result.Error != nil {
		sentry.CaptureException(fmt.Errorf("[Cleanup] Error deleting stale clothes: %v", result.Error))
		return result.Error
	}
	fmt.Printf("[Cleanup] Removed %d stale clothes\n", result.RowsAffected)
	return nil
}
