package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"changeroomapi/models"
	"changeroomapi/services"
	"changeroomapi/tasks"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type CreateClothingIn struct {
	Name                string  `json:"name" validate:"omitempty,max=100"`
	FileName            *string `json:"file_name" validate:"required,max=200"`
	Description         *string `json:"description" validate:"omitempty,max=500"`
	Category            string  `json:"category" validate:"omitempty,max=100"`
	WearingInstructions *string `json:"wearing_instructions" validate:"omitempty,max=300"`
	AddToCloset         *bool   `json:"add_to_closet" validate:"required"`
}

type GenerateTryOnIn struct {
	GarmentIDs      []uint                   `json:"garment_ids" validate:"required,min=1,max=5"`
	StylingMetadata *services.StylingMetadata `json:"styling_metadata"`
}

type ClothingResponse struct {
	ID                  uint    `json:"id"`
	Name                string  `json:"name"`
	Description         *string `json:"description"`
	Category            string  `json:"category"`
	BodyRegion          string  `json:"body_region"`
	LayerOrder          int     `json:"layer_order"`
	Status              string  `json:"status"`
	ProcessingStatus    string  `json:"processing_status"`
	Sensitive           bool    `json:"sensitive"`
	WearingInstructions *string `json:"wearing_instructions"`
	Uri                 *string `json:"uri,omitempty"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

type ClothingCreatedResponse struct {
	ClothingResponse ClothingResponse `json:"clothes"`
	FileUploadUrl    string           `json:"file_upload_url"`
}

type TryOnGenerationCreatedResponse struct {
	TryOnID              uint    `json:"try_on_id"`
	Status               string  `json:"status"`
	TryOnPreviewImageURL *string `json:"try_on_preview_image_url,omitempty"`
}

type TryOnStatusResponse struct {
	TryOnID              uint                `json:"try_on_id"`
	Status               string              `json:"status"`
	TryOnPreviewImageURL *string             `json:"try_on_preview_image_url,omitempty"`
	RetryInfo            *services.RetryInfo `json:"retry_info,omitempty"`
	ModestyApplied       bool                `json:"modesty_applied"`
	LastFinishReason     *string             `json:"last_finish_reason,omitempty"`
	Duration             *float64            `json:"duration,omitempty"`
	ErrorMessage         *string             `json:"error_message,omitempty"`
}

type ClothesListResponse struct {
	UpperBody   []ClothingResponse `json:"upper_body"`
	LowerBody   []ClothingResponse `json:"lower_body"`
	FullBody    []ClothingResponse `json:"full_body"`
	Shoes       []ClothingResponse `json:"shoes"`
	Accessories []ClothingResponse `json:"accessories"`
}

type ClothesController struct {
	Google      services.GoogleServiceProvider
	AWSService  services.AWSServiceProvider
	FirebaseApp *firebase.App
	URLCache    services.URLCacheServiceProvider
}

func (controller *ClothesController) ClothingRoutes(g *echo.Group) {
	g.POST("/create", controller.CreateClothing)
	g.POST("/upload-urls", controller.BatchUploadUrls)
	g.GET("/list", controller.ListClothes)
}

func (controller *ClothesController) TryOnRoutes(g *echo.Group, limiter *RateLimiter) {
	g.POST("/generate", controller.GenerateTryOn, RateLimitMiddleware(limiter, "tryon", 10, time.Minute))
	g.GET("/:id", controller.GetTryOn)
}

func (controller *ClothesController) CreateClothing(c echo.Context) error {
	var req CreateClothingIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Service is not available, please try again a bit later"})
	}

	if req.FileName == nil || *req.FileName == "" {
		sentry.CaptureException(fmt.Errorf("Image was not provided when creating clothing %s, user %v", req.Name, user.ID))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Sorry, it seems image was not provided, please try again"})
	}
	if !services.IsAllowedImageExtension(*req.FileName) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Sorry, only image files are supported"})
	}
	company := user.Memberships[0].Company
	if string(company.Subscription) == "free" {
		var totalClothingCount int64
		if err := db.Model(&models.Clothing{}).Where("company_id = ?", company.ID).Count(&totalClothingCount).Error; err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get clothe data"})
		}
		fmt.Printf("[User %v] Free plan, clothe count: %v", user.ID, totalClothingCount)
		if totalClothingCount >= 2 {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "You have reached the free limit of total 2 clothes, please subscribe"})
		}
	}

	if company.EnforcedDailyClothingLimit != nil {
		var dailyClothingCount int64
		today := time.Now().UTC().Format("2006-01-02")
		if err := db.Model(&models.Clothing{}).Where("company_id = ? AND DATE(created_at) = ?", company.ID, today).Count(&dailyClothingCount).Error; err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get clothe data"})
		}
		fmt.Printf("[User %v] Enforced daily limit, clothe count: %v", user.ID, dailyClothingCount)
		if dailyClothingCount >= int64(*company.EnforcedDailyClothingLimit) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": fmt.Sprintf("You have reached the limit of %v daily clothes. Please wait for the next day.", dailyClothingCount)})
		}
	}

	category := services.NormalizeClothingCategory(req.Category, *req.FileName)
	clothing := models.Clothing{
		Name:                req.Name,
		Description:         req.Description,
		Category:            category,
		BodyRegion:          services.BodyRegionForCategory(category),
		LayerOrder:          services.DefaultLayerOrder(category),
		WearingInstructions: req.WearingInstructions,
		OwnerID:             user.ID,
		Status:              "temporary",
		ImageStatus:         "draft",
		ProcessingStatus:    "idle",
		CompanyID:           user.Memberships[0].CompanyID,
	}
	var bucketName = services.GetEnv("R2_BUCKET_NAME", "")
	safeFileName := fmt.Sprintf("clothes/%v/%s", user.ID, *req.FileName)

	uploadUrl, presignErr := controller.AWSService.PresignLink(context.Background(), bucketName, safeFileName)
	clothing.ImageURL = &safeFileName
	if presignErr != nil {
		log.Printf("Unable to presign generate for %s!, %s", clothing.Name, presignErr)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"message": "Error while creating clothe with attachment",
		})
	}
	if err := db.Create(&clothing).Error; err != nil {
		sentry.CaptureException(err)
		return err
	}
	if req.AddToCloset != nil && *req.AddToCloset {
		clothing.Status = "in_closet"
		clothing.ProcessingStatus = "pending"
		if err := db.Save(&clothing).Error; err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to update clothe status, please try again"})
		}
		task, err := tasks.NewClothingProcessingTask(clothing.ID)
		if err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not process clothing, please try again"})
		}
		info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Queue("generate"))
		if err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not process clothing, please try again"})
		}
		fmt.Println("[Queue] Process clothing task submitted, Clothing ID: ", clothing.ID, " Task ID: ", info.ID)
	}

	response := ClothingCreatedResponse{
		ClothingResponse: clothingResponseOf(clothing, nil),
		FileUploadUrl:    uploadUrl,
	}

	return c.JSON(http.StatusCreated, response)
}

// BatchUploadUrls re-presigns upload links for clothes whose first upload
// attempt expired or failed client side.
func (controller *ClothesController) BatchUploadUrls(c echo.Context) error {
	var req models.ClothingFilesUploadRequestIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	if len(req.Clothes) == 0 || len(req.Clothes) > 20 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Please provide between 1 and 20 files"})
	}
	var bucketName = services.GetEnv("R2_BUCKET_NAME", "")
	out := models.ClothingFilesUploadRequestOut{Clothes: []models.ClothingFileUploadRequestOut{}}
	for _, item := range req.Clothes {
		if item.FileName == "" || !services.IsAllowedImageExtension(item.FileName) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Unsupported file %q", item.FileName)})
		}
		var clothing models.Clothing
		r := db.Where("id = ? AND owner_id = ?", item.ClothingId, user.ID).Limit(1).Find(&clothing)
		if r.Error != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get clothe data"})
		}
		if r.RowsAffected == 0 {
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Clothing %v not found", item.ClothingId)})
		}
		safeFileName := fmt.Sprintf("clothes/%v/%s", user.ID, item.FileName)
		uploadUrl, err := controller.AWSService.PresignLink(c.Request().Context(), bucketName, safeFileName)
		if err != nil {
			log.Printf("Unable to presign upload for clothing %v!, %s", clothing.ID, err)
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Error while preparing uploads"})
		}
		clothing.ImageURL = &safeFileName
		clothing.ImageStatus = "draft"
		if err := db.Save(&clothing).Error; err != nil {
			sentry.CaptureException(err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to update clothe, please try again"})
		}
		out.Clothes = append(out.Clothes, models.ClothingFileUploadRequestOut{
			ClothingId: clothing.ID,
			FileName:   item.FileName,
			UploadUrl:  uploadUrl,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (controller *ClothesController) GenerateTryOn(c echo.Context) error {
	var req GenerateTryOnIn
	if err := c.Bind(&req); err != nil {
		fmt.Println(err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	if user.UserFullBodyImageURL == nil || *user.UserFullBodyImageURL == "" {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "You have to set your avatar first before generating try-on"})
	}
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Service is not available, please try again a bit later"})
	}
	company := user.Memberships[0].Company
	if string(company.Subscription) == "free" {
		var totalGenerationCount int64
		if err := db.Model(&models.ClothingTryonGeneration{}).Where("company_id = ?", company.ID).Count(&totalGenerationCount).Error; err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get try-on data"})
		}
		fmt.Printf("[User %v] Free plan, generation count: %v", user.ID, totalGenerationCount)
		if totalGenerationCount >= 2 {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "You have reached the free limit of total 2 generations, please subscribe"})
		}
	}

	if company.EnforcedDailyTryOnLimit != nil {
		var dailyGenerationCount int64
		today := time.Now().UTC().Format("2006-01-02")
		if err := db.Model(&models.ClothingTryonGeneration{}).Where("company_id = ? AND DATE(created_at) = ?", company.ID, today).Count(&dailyGenerationCount).Error; err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get try-on data"})
		}
		fmt.Printf("[User %v] Enforced daily limit, generation count: %v", user.ID, dailyGenerationCount)
		if dailyGenerationCount >= int64(*company.EnforcedDailyTryOnLimit) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": fmt.Sprintf("You have reached the limit of %v daily generations. Please wait for the next day.", dailyGenerationCount)})
		}
	}

	var garments []models.Clothing
	if err := db.Where("id IN ? AND owner_id = ?", req.GarmentIDs, user.ID).Find(&garments).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get clothe data"})
	}
	if len(garments) != len(req.GarmentIDs) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Some of the selected clothes were not found"})
	}
	for _, garment := range garments {
		if garment.ImageURL == nil || *garment.ImageURL == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Clothing %q has no image uploaded yet", garment.Name)})
		}
	}

	garmentIdsJson, err := json.Marshal(req.GarmentIDs)
	if err != nil {
		sentry.CaptureException(err)
		return echo.ErrInternalServerError
	}
	var stylingMetadataJson *string
	if req.StylingMetadata != nil {
		raw, err := json.Marshal(req.StylingMetadata)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid styling metadata"})
		}
		stylingMetadataJson = StrPointer(string(raw))
	}
	try_on_generation := models.ClothingTryonGeneration{
		UserAccountID:          user.ID,
		CompanyID:              company.ID,
		GeneratedWithAvatarURL: *user.UserFullBodyImageURL,
		GarmentIDsJSON:         string(garmentIdsJson),
		StylingMetadataJSON:    stylingMetadataJson,
		Status:                 "pending",
	}

	if err := db.Create(&try_on_generation).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate try-on, please try again"})
	}

	response := TryOnGenerationCreatedResponse{
		TryOnID:              try_on_generation.ID,
		Status:               try_on_generation.Status,
		TryOnPreviewImageURL: try_on_generation.TryOnPreviewImageURL,
	}

	task, err := tasks.NewTryOnGenerationTask(user.ID, try_on_generation.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not start generation, please try again"})
	}
	info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Queue("generate"))
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not start generation, please try again"})
	}
	fmt.Println("[Queue] Try on generation task submitted, Try ID: ", try_on_generation.ID, " Task ID: ", info.ID)

	return c.JSON(http.StatusCreated, response)
}

func (controller *ClothesController) GetTryOn(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}
	var tryOnId uint
	if err := echo.PathParamsBinder(c).Uint("id", &tryOnId).BindError(); err != nil {
		return echo.ErrBadRequest
	}
	var generation models.ClothingTryonGeneration
	r := db.Where("id = ? AND user_account_id = ?", tryOnId, user.ID).Limit(1).Find(&generation)
	if r.Error != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get try-on data"})
	}
	if r.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Try-on not found"})
	}

	var retryInfo *services.RetryInfo
	if generation.RetryInfoJSON != nil && *generation.RetryInfoJSON != "" {
		var parsed services.RetryInfo
		if err := json.Unmarshal([]byte(*generation.RetryInfoJSON), &parsed); err != nil {
			log.Printf("Broken retry info json for try-on %v: %v", generation.ID, err)
			sentry.CaptureException(err)
		} else {
			retryInfo = &parsed
		}
	}

	var previewUrl *string
	if generation.TryOnPreviewImageURL != nil && *generation.TryOnPreviewImageURL != "" {
		url, err := controller.URLCache.GetReadURL(c.Request().Context(), *generation.TryOnPreviewImageURL)
		if err != nil {
			log.Printf("CACHE WARNING: Cache system failed for key '%s': %v. Triggering manual R2 fallback.", *generation.TryOnPreviewImageURL, err)
			sentry.CaptureException(err)
			bucketName := services.GetEnv("R2_BUCKET_NAME", "")
			fallbackUrl, fallbackErr := controller.AWSService.GetPresignedR2FileReadURL(c.Request().Context(), bucketName, *generation.TryOnPreviewImageURL)
			if fallbackErr != nil {
				log.Printf("CRITICAL: Manual R2 fallback also failed for key '%s': %v", *generation.TryOnPreviewImageURL, fallbackErr)
				sentry.CaptureException(fallbackErr)
			} else {
				previewUrl = &fallbackUrl
			}
		} else {
			previewUrl = &url
		}
	}

	return c.JSON(http.StatusOK, TryOnStatusResponse{
		TryOnID:              generation.ID,
		Status:               generation.Status,
		TryOnPreviewImageURL: previewUrl,
		RetryInfo:            retryInfo,
		ModestyApplied:       generation.ModestyApplied,
		LastFinishReason:     generation.LastFinishReason,
		Duration:             generation.Duration,
		ErrorMessage:         generation.GenerationErrorMessage,
	})
}

// populatePresignedClothingImages enriches clothing rows with presigned read
// URLs concurrently, falling back to a direct R2 presign if the cache layer fails.
func (controller *ClothesController) populatePresignedClothingImages(ctx context.Context, clothes []models.Clothing) []ClothingResponse {
	if len(clothes) == 0 {
		return []ClothingResponse{}
	}

	var wg sync.WaitGroup
	processedResponses := make([]ClothingResponse, len(clothes))
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")

	for i, clothingItem := range clothes {
		wg.Add(1)
		go func(index int, item models.Clothing) {
			defer wg.Done()

			var imageUrl string
			if item.ImageURL != nil && *item.ImageURL != "" {
				objectKey := *item.ImageURL

				url, err := controller.URLCache.GetReadURL(ctx, objectKey)

				if err == nil {
					imageUrl = url
				} else {
					log.Printf("CACHE WARNING: Cache system failed for key '%s': %v. Triggering manual R2 fallback.", objectKey, err)

					sentry.WithScope(func(scope *sentry.Scope) {
						scope.SetTag("failure_type", "cache_system")
						scope.SetExtra("objectKey", objectKey)
						sentry.CaptureException(err)
					})

					fallbackUrl, fallbackErr := controller.AWSService.GetPresignedR2FileReadURL(ctx, bucketName, objectKey)
					if fallbackErr != nil {
						log.Printf("CRITICAL: Manual R2 fallback also failed for key '%s': %v", objectKey, fallbackErr)
						sentry.CaptureException(fallbackErr)
					} else {
						imageUrl = fallbackUrl
					}
				}
			}
			processedResponses[index] = clothingResponseOf(item, &imageUrl)
		}(i, clothingItem)
	}

	wg.Wait()
	return processedResponses
}

func clothingResponseOf(item models.Clothing, uri *string) ClothingResponse {
	return ClothingResponse{
		ID:                  item.ID,
		Name:                item.Name,
		Description:         item.Description,
		Category:            item.Category,
		BodyRegion:          item.BodyRegion,
		LayerOrder:          item.LayerOrder,
		Status:              item.Status,
		ProcessingStatus:    item.ProcessingStatus,
		Sensitive:           item.Sensitive,
		WearingInstructions: item.WearingInstructions,
		Uri:                 uri,
		CreatedAt:           item.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:           item.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (controller *ClothesController) ListClothes(c echo.Context) error {
	user, ok := c.Get("currentUser").(models.UserAccount)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	db, ok := c.Get("__db").(*gorm.DB)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Database connection error"})
	}

	var clothes []models.Clothing
	if err := db.Where("owner_id = ? AND company_id = ?", user.ID, user.Memberships[0].CompanyID).Find(&clothes).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch clothes"})
	}
	processedResponses := controller.populatePresignedClothingImages(c.Request().Context(), clothes)

	response := ClothesListResponse{
		UpperBody:   []ClothingResponse{},
		LowerBody:   []ClothingResponse{},
		FullBody:    []ClothingResponse{},
		Shoes:       []ClothingResponse{},
		Accessories: []ClothingResponse{},
	}

	for _, resp := range processedResponses {
		switch resp.Category {
		case services.CategoryUpperBody:
			response.UpperBody = append(response.UpperBody, resp)
		case services.CategoryLowerBody:
			response.LowerBody = append(response.LowerBody, resp)
		case services.CategoryFullBody:
			response.FullBody = append(response.FullBody, resp)
		case services.CategoryShoes:
			response.Shoes = append(response.Shoes, resp)
		case services.CategoryAccessories:
			response.Accessories = append(response.Accessories, resp)
		}
	}

	return c.JSON(http.StatusOK, response)
}
