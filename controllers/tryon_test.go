package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"changeroomapi/dbhelper"
	"changeroomapi/models"
	"changeroomapi/services"
	"changeroomapi/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateClothingOk(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	// Prepare request payload
	reqBody := CreateClothingIn{
		Name:        "Test Clothing",
		Description: StrPointer("This is a test clothing item"),
		Category:    "top",
		FileName:    StrPointer("test-image.jpg"),
		AddToCloset: BoolPointer(false),
	}

	req := test.NewJSONAuthRequest("POST", "/shop/clothes/create", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, "Expected status code 201 Created, got %d: %s", rec.Code, rec.Body.String())

	var response ClothingCreatedResponse
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	require.NoError(t, err)
	require.Equal(t, reqBody.Name, response.ClothingResponse.Name)
	require.Equal(t, reqBody.Description, response.ClothingResponse.Description)
	require.Equal(t, services.CategoryUpperBody, response.ClothingResponse.Category)
	require.Equal(t, "upper", response.ClothingResponse.BodyRegion)
	require.Equal(t, 2, response.ClothingResponse.LayerOrder)
	require.Equal(t, "temporary", response.ClothingResponse.Status)
	require.Equal(t, "idle", response.ClothingResponse.ProcessingStatus)
	require.Contains(t, response.FileUploadUrl, "fakebucketurl")

	var clothing models.Clothing
	db.First(&clothing, response.ClothingResponse.ID)
	require.Equal(t, user.ID, clothing.OwnerID)
	require.NotNil(t, clothing.ImageURL)
	require.Equal(t, fmt.Sprintf("clothes/%v/test-image.jpg", user.ID), *clothing.ImageURL)
}

func TestCreateClothingCategoryFromFileName(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	reqBody := CreateClothingIn{
		Name:        "Running pair",
		FileName:    StrPointer("white-sneakers.png"),
		AddToCloset: BoolPointer(false),
	}

	req := test.NewJSONAuthRequest("POST", "/shop/clothes/create", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var response ClothingCreatedResponse
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	require.NoError(t, err)
	require.Equal(t, services.CategoryShoes, response.ClothingResponse.Category)
	require.Equal(t, "feet", response.ClothingResponse.BodyRegion)
	require.Equal(t, 0, response.ClothingResponse.LayerOrder)
}

func TestCreateClothingInvalidInput(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	// Prepare invalid request payload (missing required fields)
	reqBody := CreateClothingIn{
		Name: "Test Clothing",
		// FileName missing
		AddToCloset: BoolPointer(false),
	}

	req := test.NewJSONAuthRequest("POST", "/shop/clothes/create", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var response map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Contains(t, response["error"], "FileName")
}

func TestCreateClothingRejectsNonImage(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	reqBody := CreateClothingIn{
		Name:        "Test Clothing",
		FileName:    StrPointer("malware.exe"),
		AddToCloset: BoolPointer(false),
	}

	req := test.NewJSONAuthRequest("POST", "/shop/clothes/create", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var response map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Contains(t, response["error"], "image files")
}

func TestCreateClothingFreePlanLimit(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	for i := 0; i < 2; i++ {
		clothing := models.Clothing{
			Name:      fmt.Sprintf("Existing %v", i),
			Category:  services.CategoryUpperBody,
			OwnerID:   user.ID,
			CompanyID: user.Memberships[0].CompanyID,
			Status:    "in_closet",
		}
		require.NoError(t, db.Create(&clothing).Error)
	}

	reqBody := CreateClothingIn{
		Name:        "Third one",
		FileName:    StrPointer("test.jpg"),
		AddToCloset: BoolPointer(false),
	}
	req := test.NewJSONAuthRequest("POST", "/shop/clothes/create", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var response map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Contains(t, response["error"], "free limit")
}

func TestCreateClothingUnauthorized(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	test.FakeUser(db, nil)

	reqBody := CreateClothingIn{
		Name:        "Test Clothing",
		FileName:    StrPointer("test.jpg"),
		AddToCloset: BoolPointer(false),
	}
	req := test.NewJSONAuthRequest("POST", "/shop/clothes/create", "", reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBatchUploadUrlsOk(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	clothing := models.Clothing{
		Name:      "Jacket",
		Category:  services.CategoryUpperBody,
		OwnerID:   user.ID,
		CompanyID: user.Memberships[0].CompanyID,
		Status:    "in_closet",
	}
	require.NoError(t, db.Create(&clothing).Error)

	reqBody := models.ClothingFilesUploadRequestIn{
		Clothes: []models.ClothingUrlRequstIn{
			{ClothingId: clothing.ID, FileName: "jacket-v2.jpg"},
		},
	}
	req := test.NewJSONAuthRequest("POST", "/shop/clothes/upload-urls", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var response models.ClothingFilesUploadRequestOut
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	require.NoError(t, err)
	require.Len(t, response.Clothes, 1)
	require.Equal(t, clothing.ID, response.Clothes[0].ClothingId)
	require.Contains(t, response.Clothes[0].UploadUrl, "fakebucketurl")

	var updated models.Clothing
	db.First(&updated, clothing.ID)
	require.NotNil(t, updated.ImageURL)
	require.Equal(t, fmt.Sprintf("clothes/%v/jacket-v2.jpg", user.ID), *updated.ImageURL)
	require.Equal(t, "draft", updated.ImageStatus)
}

func TestBatchUploadUrlsForeignClothing(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	reqBody := models.ClothingFilesUploadRequestIn{
		Clothes: []models.ClothingUrlRequstIn{
			{ClothingId: 99999, FileName: "other.jpg"},
		},
	}
	req := test.NewJSONAuthRequest("POST", "/shop/clothes/upload-urls", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListClothesGroupsByCategory(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	items := []models.Clothing{
		{Name: "Test Top", Category: services.CategoryUpperBody, BodyRegion: "upper", LayerOrder: 2, OwnerID: user.ID, CompanyID: user.Memberships[0].CompanyID, Status: "in_closet", ImageURL: StrPointer(fmt.Sprintf("clothes/%v/top.jpg", user.ID))},
		{Name: "Test Jeans", Category: services.CategoryLowerBody, BodyRegion: "lower", LayerOrder: 1, OwnerID: user.ID, CompanyID: user.Memberships[0].CompanyID, Status: "in_closet", ImageURL: StrPointer(fmt.Sprintf("clothes/%v/jeans.jpg", user.ID))},
		{Name: "Test Dress", Category: services.CategoryFullBody, BodyRegion: "full", LayerOrder: 1, OwnerID: user.ID, CompanyID: user.Memberships[0].CompanyID, Status: "in_closet"},
		{Name: "Test Boots", Category: services.CategoryShoes, BodyRegion: "feet", LayerOrder: 0, OwnerID: user.ID, CompanyID: user.Memberships[0].CompanyID, Status: "in_closet"},
		{Name: "Test Scarf", Category: services.CategoryAccessories, BodyRegion: "accessory", LayerOrder: 3, OwnerID: user.ID, CompanyID: user.Memberships[0].CompanyID, Status: "in_closet"},
	}
	for i := range items {
		require.NoError(t, db.Create(&items[i]).Error)
	}

	req := test.NewJSONAuthRequest("GET", "/shop/clothes/list", strconv.FormatUint(uint64(user.ID), 10), "")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "Expected status code 200 OK, got %d: %s", rec.Code, rec.Body.String())

	var response ClothesListResponse
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	require.NoError(t, err)
	require.Len(t, response.UpperBody, 1)
	require.Len(t, response.LowerBody, 1)
	require.Len(t, response.FullBody, 1)
	require.Len(t, response.Shoes, 1)
	require.Len(t, response.Accessories, 1)
	require.Equal(t, "Test Top", response.UpperBody[0].Name)
	require.Equal(t, "Test Jeans", response.LowerBody[0].Name)
	require.NotNil(t, response.UpperBody[0].Uri)
	require.Contains(t, *response.UpperBody[0].Uri, "fakecache.com")
}

func TestListClothesEmpty(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	req := test.NewJSONAuthRequest("GET", "/shop/clothes/list", strconv.FormatUint(uint64(user.ID), 10), "")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response ClothesListResponse
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	require.NoError(t, err)
	require.Len(t, response.UpperBody, 0)
	require.Len(t, response.LowerBody, 0)
	require.Len(t, response.FullBody, 0)
	require.Len(t, response.Shoes, 0)
	require.Len(t, response.Accessories, 0)
}

func TestGenerateTryOnRequiresAvatar(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	reqBody := GenerateTryOnIn{GarmentIDs: []uint{1}}
	req := test.NewJSONAuthRequest("POST", "/shop/tryon/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var response map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Contains(t, response["error"], "avatar")
}

func TestGenerateTryOnInvalidInput(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	// 6 garments is over the outfit limit
	reqBody := GenerateTryOnIn{GarmentIDs: []uint{1, 2, 3, 4, 5, 6}}
	req := test.NewJSONAuthRequest("POST", "/shop/tryon/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var response map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Contains(t, response["error"], "GarmentIDs")
}

func TestGenerateTryOnUnknownGarment(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)
	require.NoError(t, db.Model(&models.UserAccount{}).Where("id = ?", user.ID).Update("user_full_body_image_url", fmt.Sprintf("fullbodyavatars/%v/me.jpg", user.ID)).Error)

	reqBody := GenerateTryOnIn{GarmentIDs: []uint{99999}}
	req := test.NewJSONAuthRequest("POST", "/shop/tryon/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateTryOnGarmentWithoutImage(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)
	require.NoError(t, db.Model(&models.UserAccount{}).Where("id = ?", user.ID).Update("user_full_body_image_url", fmt.Sprintf("fullbodyavatars/%v/me.jpg", user.ID)).Error)

	clothing := models.Clothing{
		Name:      "No image yet",
		Category:  services.CategoryUpperBody,
		OwnerID:   user.ID,
		CompanyID: user.Memberships[0].CompanyID,
		Status:    "in_closet",
	}
	require.NoError(t, db.Create(&clothing).Error)

	reqBody := GenerateTryOnIn{GarmentIDs: []uint{clothing.ID}}
	req := test.NewJSONAuthRequest("POST", "/shop/tryon/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var response map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Contains(t, response["error"], "no image uploaded")
}

func TestGenerateTryOnFreePlanLimit(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)
	require.NoError(t, db.Model(&models.UserAccount{}).Where("id = ?", user.ID).Update("user_full_body_image_url", fmt.Sprintf("fullbodyavatars/%v/me.jpg", user.ID)).Error)

	for i := 0; i < 2; i++ {
		generation := models.ClothingTryonGeneration{
			UserAccountID:          user.ID,
			CompanyID:              user.Memberships[0].CompanyID,
			GeneratedWithAvatarURL: "fullbodyavatars/old.jpg",
			GarmentIDsJSON:         "[1]",
			Status:                 "completed",
		}
		require.NoError(t, db.Create(&generation).Error)
	}

	reqBody := GenerateTryOnIn{GarmentIDs: []uint{1}}
	req := test.NewJSONAuthRequest("POST", "/shop/tryon/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var response map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Contains(t, response["error"], "free limit")
}

func TestGenerateTryOnRateLimited(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	// no avatar set, every request short circuits with 403 but still counts
	reqBody := GenerateTryOnIn{GarmentIDs: []uint{1}}
	for i := 0; i < 10; i++ {
		req := test.NewJSONAuthRequest("POST", "/shop/tryon/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	}

	req := test.NewJSONAuthRequest("POST", "/shop/tryon/generate", strconv.FormatUint(uint64(user.ID), 10), reqBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetTryOnOk(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	user := test.FakeUser(db, nil)

	retryInfo := services.RetryInfo{
		TotalAttempts: 2,
		FinalStatus:   "success",
		Attempts: []services.AttemptRecord{
			{Attempt: 1, Strategy: "heuristic", Trigger: "content_rejection", Summary: "softened wording"},
		},
	}
	retryInfoJson, err := json.Marshal(retryInfo)
	require.NoError(t, err)

	generation := models.ClothingTryonGeneration{
		UserAccountID:          user.ID,
		CompanyID:              user.Memberships[0].CompanyID,
		GeneratedWithAvatarURL: fmt.Sprintf("fullbodyavatars/%v/me.jpg", user.ID),
		GarmentIDsJSON:         "[1,2]",
		Status:                 "completed",
		TryOnPreviewImageURL:   StrPointer(fmt.Sprintf("tryons/%v/tryon-1.jpg", user.ID)),
		RetryInfoJSON:          StrPointer(string(retryInfoJson)),
		ModestyApplied:         true,
		LastFinishReason:       StrPointer("STOP"),
		Duration:               Float64Pointer(12.5),
	}
	require.NoError(t, db.Create(&generation).Error)

	req := test.NewJSONAuthRequest("GET", fmt.Sprintf("/shop/tryon/%v", generation.ID), strconv.FormatUint(uint64(user.ID), 10), "")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var response TryOnStatusResponse
	err = json.Unmarshal(rec.Body.Bytes(), &response)
	require.NoError(t, err)
	require.Equal(t, generation.ID, response.TryOnID)
	require.Equal(t, "completed", response.Status)
	require.NotNil(t, response.TryOnPreviewImageURL)
	require.Contains(t, *response.TryOnPreviewImageURL, "fakecache.com")
	require.NotNil(t, response.RetryInfo)
	require.Equal(t, 2, response.RetryInfo.TotalAttempts)
	require.Equal(t, "success", response.RetryInfo.FinalStatus)
	require.Len(t, response.RetryInfo.Attempts, 1)
	require.Equal(t, "heuristic", response.RetryInfo.Attempts[0].Strategy)
	require.True(t, response.ModestyApplied)
	require.Equal(t, "STOP", *response.LastFinishReason)
}

func TestGetTryOnForeignUser(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e := SetupServer(db, test.GoogleServiceMock{}, &test.AWSProviderMock{}, nil, nil, nil, &test.URLCacheMock{})
	owner := test.FakeUser(db, nil)

	generation := models.ClothingTryonGeneration{
		UserAccountID:          owner.ID,
		CompanyID:              owner.Memberships[0].CompanyID,
		GeneratedWithAvatarURL: "fullbodyavatars/me.jpg",
		GarmentIDsJSON:         "[1]",
		Status:                 "pending",
	}
	require.NoError(t, db.Create(&generation).Error)

	other := &models.UserAccount{
		Name:     "Other",
		Email:    "other@example.com",
		GoogleID: "998877",
		Platform: models.PlatformAndroid,
		Status:   "FINISHED_AUTH",
	}
	require.NoError(t, db.Create(&other).Error)
	otherCompany := models.Company{Name: "Other Co", OwnerID: other.ID, Subscription: models.Free, Active: true}
	require.NoError(t, db.Create(&otherCompany).Error)
	require.NoError(t, db.Create(&models.UserCompanyRole{CompanyID: otherCompany.ID, UserAccountID: other.ID, Active: true, Role: "OWNER"}).Error)

	req := test.NewJSONAuthRequest("GET", fmt.Sprintf("/shop/tryon/%v", generation.ID), strconv.FormatUint(uint64(other.ID), 10), "")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
