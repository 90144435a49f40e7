package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"changeroomapi/dbhelper"
	"changeroomapi/models"
	"changeroomapi/services"
	"changeroomapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stringPtr(s string) *string {
	return &s
}

func testJpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 96))
	for y := 0; y < 96; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: 120, B: uint8(y * 2), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestTryOnGeneratingTask(t *testing.T) {
	fmt.Println("Starting TestTryOnGeneratingTask")
	os.Setenv("GOOGLE_API_KEY", "fake")
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db, nil)
	user.UserFullBodyImageURL = stringPtr("fullbodyavatars/1/avatar.jpg")
	db.Save(&user)

	var clothingTop models.Clothing = models.Clothing{
		Name:        "Test Jacket",
		Description: stringPtr("This is a test clothing item"),
		Category:    "UPPER_BODY",
		LayerOrder:  2,
		ImageURL:    stringPtr("clothes/1/jacket.jpg"),
		OwnerID:     user.ID,
		CompanyID:   user.Memberships[0].CompanyID,
	}
	db.Create(&clothingTop)
	var clothingBottom models.Clothing = models.Clothing{
		Name:        "Test Jeans",
		Description: stringPtr("This is a test clothing item"),
		Category:    "LOWER_BODY",
		LayerOrder:  1,
		ImageURL:    stringPtr("clothes/1/jeans.jpg"),
		OwnerID:     user.ID,
		CompanyID:   user.Memberships[0].CompanyID,
	}
	db.Create(&clothingBottom)

	garmentIds, err := json.Marshal([]uint{clothingTop.ID, clothingBottom.ID})
	require.NoError(t, err)
	var tryOn models.ClothingTryonGeneration = models.ClothingTryonGeneration{
		Status:                 "pending",
		UserAccountID:          user.ID,
		CompanyID:              user.Memberships[0].CompanyID,
		GeneratedWithAvatarURL: *user.UserFullBodyImageURL,
		GarmentIDsJSON:         string(garmentIds),
	}
	db.Create(&tryOn)

	imageContent := testJpegBytes(t)
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(imageContent)
	}))
	defer mockServer.Close()

	fakeTask, err := NewTryOnGenerationTask(user.ID, tryOn.ID)
	require.NoError(t, err)
	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}
	poster := &test.StubGeminiPoster{Responses: []*services.GenerateContentResponse{
		test.ImageGenerationResponse(imageContent),
	}}

	err = HandleTryOnGenerationTask(context.Background(), fakeTask, db, test.MockLLMProcessor{}, poster, awsServiceMock, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, poster.Calls)

	var updated models.ClothingTryonGeneration
	require.NoError(t, db.First(&updated, tryOn.ID).Error)
	assert.Equal(t, "completed", updated.Status)
	require.NotNil(t, updated.TryOnPreviewImageURL)
	assert.Contains(t, *updated.TryOnPreviewImageURL, fmt.Sprintf("tryons/%v/", user.ID))
	require.NotNil(t, updated.LastFinishReason)
	assert.Equal(t, "STOP", *updated.LastFinishReason)
	require.NotNil(t, updated.RetryInfoJSON)
	var retryInfo services.RetryInfo
	require.NoError(t, json.Unmarshal([]byte(*updated.RetryInfoJSON), &retryInfo))
	assert.Equal(t, "success", retryInfo.FinalStatus)
	assert.Equal(t, 1, retryInfo.TotalAttempts)
	assert.Empty(t, retryInfo.Attempts)
	require.NotNil(t, updated.LLMTotalTokenCount)
	assert.Equal(t, int32(150), *updated.LLMTotalTokenCount)
	require.NotNil(t, updated.Duration)
}

func TestTryOnGeneratingTaskExhausted(t *testing.T) {
	os.Setenv("GOOGLE_API_KEY", "fake")
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db, nil)
	user.UserFullBodyImageURL = stringPtr("fullbodyavatars/1/avatar.jpg")
	user.ReceiveNotifications = false
	db.Save(&user)

	clothing := models.Clothing{
		Name:      "Sheer lace top",
		Category:  "UPPER_BODY",
		Sensitive: true,
		ImageURL:  stringPtr("clothes/1/top.jpg"),
		OwnerID:   user.ID,
		CompanyID: user.Memberships[0].CompanyID,
	}
	db.Create(&clothing)

	garmentIds, _ := json.Marshal([]uint{clothing.ID})
	tryOn := models.ClothingTryonGeneration{
		Status:                 "pending",
		UserAccountID:          user.ID,
		CompanyID:              user.Memberships[0].CompanyID,
		GeneratedWithAvatarURL: *user.UserFullBodyImageURL,
		GarmentIDsJSON:         string(garmentIds),
	}
	db.Create(&tryOn)

	imageContent := testJpegBytes(t)
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(imageContent)
	}))
	defer mockServer.Close()

	rejection := &services.GenerateContentResponse{
		Candidates: []services.RestCandidate{{FinishReason: "IMAGE_SAFETY"}},
	}
	poster := &test.StubGeminiPoster{Responses: []*services.GenerateContentResponse{
		rejection, rejection, rejection, rejection,
	}}

	fakeTask, err := NewTryOnGenerationTask(user.ID, tryOn.ID)
	require.NoError(t, err)
	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}

	// exhausted content rejection is terminal, asynq must not retry it
	err = HandleTryOnGenerationTask(context.Background(), fakeTask, db, test.MockLLMProcessor{}, poster, awsServiceMock, nil)
	assert.NoError(t, err)
	assert.Equal(t, 4, poster.Calls)

	var updated models.ClothingTryonGeneration
	require.NoError(t, db.First(&updated, tryOn.ID).Error)
	assert.Equal(t, "failed", updated.Status)
	require.NotNil(t, updated.LastFinishReason)
	assert.Equal(t, "IMAGE_SAFETY", *updated.LastFinishReason)
	require.NotNil(t, updated.RetryInfoJSON)
	var retryInfo services.RetryInfo
	require.NoError(t, json.Unmarshal([]byte(*updated.RetryInfoJSON), &retryInfo))
	assert.Equal(t, "exhausted", retryInfo.FinalStatus)
	assert.Len(t, retryInfo.Attempts, 3)
	require.NotNil(t, updated.GenerationErrorMessage)
	assert.Contains(t, *updated.GenerationErrorMessage, "content guidelines")
}

func TestClothingProcessingTask(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db, nil)

	clothing := models.Clothing{
		ImageURL:         stringPtr("clothes/1/jacket.jpg"),
		ProcessingStatus: "pending",
		OwnerID:          user.ID,
		CompanyID:        user.Memberships[0].CompanyID,
	}
	db.Create(&clothing)

	imageContent := testJpegBytes(t)
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(imageContent)
	}))
	defer mockServer.Close()

	fakeTask, err := NewClothingProcessingTask(clothing.ID)
	require.NoError(t, err)
	awsServiceMock := &test.AWSProviderMock{MockUrl: mockServer.URL}

	var seenMIMETypes []string
	err = HandleClothingProcessingTask(context.Background(), fakeTask, db, test.MockLLMProcessor{SeenMIMETypes: &seenMIMETypes}, awsServiceMock)
	assert.NoError(t, err)

	// classification and sensitivity both get the sniffed image MIME type,
	// never the file name
	require.Len(t, seenMIMETypes, 2)
	for _, mimeType := range seenMIMETypes {
		assert.Equal(t, "image/jpeg", mimeType)
	}

	var updated models.Clothing
	require.NoError(t, db.First(&updated, clothing.ID).Error)
	assert.Equal(t, "completed", updated.ProcessingStatus)
	assert.Equal(t, "Blue denim jacket", updated.Name)
	assert.Equal(t, "UPPER_BODY", updated.Category)
	assert.Equal(t, "upper", updated.BodyRegion)
	assert.Equal(t, 2, updated.LayerOrder)
	assert.False(t, updated.Sensitive)
	require.NotNil(t, updated.WearingInstructions)
	assert.Equal(t, "worn open over a tee", *updated.WearingInstructions)
	require.NotNil(t, updated.ClassificationJSON)
}

func TestClothingProcessingTaskFlagsSensitive(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db, nil)

	clothing := models.Clothing{
		Name:             "Lace set",
		ImageURL:         stringPtr("clothes/1/set.jpg"),
		ProcessingStatus: "pending",
		OwnerID:          user.ID,
		CompanyID:        user.Memberships[0].CompanyID,
	}
	db.Create(&clothing)

	imageContent := testJpegBytes(t)
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(imageContent)
	}))
	defer mockServer.Close()

	fakeTask, err := NewClothingProcessingTask(clothing.ID)
	require.NoError(t, err)
	var seenMIMETypes []string
	llm := test.MockLLMProcessor{
		SensitivityAnswer: `{"is_intimate": true, "label": "lingerie", "reason": "minimal coverage"}`,
		SeenMIMETypes:     &seenMIMETypes,
	}

	err = HandleClothingProcessingTask(context.Background(), fakeTask, db, llm, &test.AWSProviderMock{MockUrl: mockServer.URL})
	assert.NoError(t, err)

	var updated models.Clothing
	require.NoError(t, db.First(&updated, clothing.ID).Error)
	assert.True(t, updated.Sensitive)
	assert.Equal(t, "completed", updated.ProcessingStatus)
	// the clothing's display name never stands in for the MIME type
	for _, mimeType := range seenMIMETypes {
		assert.Equal(t, "image/jpeg", mimeType)
	}
}

func TestAvatarAnalysisTask(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db, nil)
	user.UserFullBodyImageURL = stringPtr("fullbodyavatars/1/avatar.jpg")
	user.FullBodyAvatarSet = false
	db.Save(&user)

	imageContent := testJpegBytes(t)
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(imageContent)
	}))
	defer mockServer.Close()

	fakeTask, err := NewAvatarAnalysisTask(user.ID)
	require.NoError(t, err)

	var seenMIMETypes []string
	err = HandleAvatarAnalysisTask(context.Background(), fakeTask, db, test.MockLLMProcessor{SeenMIMETypes: &seenMIMETypes}, &test.AWSProviderMock{MockUrl: mockServer.URL})
	assert.NoError(t, err)
	require.Len(t, seenMIMETypes, 1)
	assert.Equal(t, "image/jpeg", seenMIMETypes[0])

	var updated models.UserAccount
	require.NoError(t, db.First(&updated, user.ID).Error)
	assert.True(t, updated.FullBodyAvatarSet)
	require.NotNil(t, updated.SubjectAttributesJSON)
	assert.Contains(t, *updated.SubjectAttributesJSON, "hair")
}
