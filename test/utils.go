package test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"changeroomapi/models"
	"changeroomapi/services"

	"github.com/golang-jwt/jwt/v4"
	"google.golang.org/api/idtoken"
	"gorm.io/gorm"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func GenerateUserToken(userPk string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userPk,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	t, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		log.Fatalf("Error when signing user token for %s. Error %s ", userPk, err)
	}
	return t
}

func NewJSONAuthRequest(method string, target string, userPk string, param interface{}) *http.Request {
	log.Println(JsonString(param))
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	token := GenerateUserToken(userPk)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	return req
}

func NewJSONAuthRequestCustomAuth(method string, target string, authorizationString string, param interface{}) *http.Request {
	log.Println(JsonString(param))
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", authorizationString)
	return req
}

func NewJSONAuthRequestRaw(method string, target string, userPk string, json string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(json))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	token := GenerateUserToken(userPk)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	return req
}

func Int64Pointer(i int64) *int64 {
	return &i
}

func FakeUser(db *gorm.DB, company *models.Company) *models.UserAccount {
	user := &models.UserAccount{
		Name:      "OurName",
		Email:     "email@example.com",
		GoogleID:  "12232",
		Platform:  models.PlatformIOS,
		LastIp:    "123.122.122.122",
		Status:    "FINISHED_AUTH",
		AvatarURL: "pictureurl",
	}
	db.Create(&user)

	if company == nil {

		company = &models.Company{
			Name:         "My Company",
			OwnerID:      user.ID,
			Subscription: models.Free,
			Active:       true,
		}
		db.Create(&company)
	}
	var user_membership = &models.UserCompanyRole{
		CompanyID:        company.ID,
		UserAccountID:    user.ID,
		Active:           true,
		InviteAcceptedAt: Int64Pointer(time.Now().UnixMilli()),
		Role:             "OWNER",
	}
	db.Save(&user)
	tokenDb := models.UserPushToken{
		UserAccountID: user.ID,
		Platform:      "android",
		Token:         "cX-UZ3zwQEiPt-2GJkG2gA:APA91bGqRflaGrJrnynhRwZ442HdgUjVcO7mWMFnx6IwAdJ9RRKopvSP4QU7hbvTmk1XAp8XGvtHZLvo5JmOPTVKBbGqqvhfbZWKlXA9csEjx1hgpNvrWepU-rqG1sxS8_WCF5cGZchf",
		Active:        true,
	}
	db.Save(&tokenDb)
	db.Save(&user_membership)
	db.Preload("Memberships.Company").First(&user, user.ID)

	return user
}

func NewJSONRootRequest(method string, target string, param interface{}, password string) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", password)
	return req
}

func Contains(items []string, lookFor string) bool {

	for i := 0; i < len(items); i++ {

		if items[i] == lookFor {
			return true
		}
	}
	return false
}

func NewRefString(data string) *string {
	return &data
}

type GoogleServiceMock struct{}

func (gsm GoogleServiceMock) ValidateIdToken(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error) {

	return &idtoken.Payload{Issuer: "Issue", Audience: "AAA", Expires: 119919191919, IssuedAt: 12312321321, Subject: "fake@example.com", Claims: map[string]interface{}{
		"email":   "fake@example.com",
		"picture": "pictureurl",
		"sub":     "123googleid",
	}}, nil

}

func (gsm GoogleServiceMock) GetUserSubscriptionStatus(ctx context.Context, appUserId string) ([]byte, error) {
	data := `
	{
		"request_date": "2026-05-11T06:50:56Z",
		"subscriber": {
		  "entitlements": {
			"Pro": {
			  "expires_date": "2029-05-11T06:51:15Z",
			  "product_identifier": "prostandard",
			  "product_plan_identifier": "monthly-autorenew",
			  "purchase_date": "2026-05-11T06:49:05Z"
			}
		  },
		  "management_url": "https://play.google.com/store/account/subscriptions",
		  "original_app_user_id": "$RCAnonymousID:60ad7a0c84694890b4b272b5654efa1f"
		}
	  }
	  `

	return []byte(data), nil
}

type AWSProviderMock struct {
	MockUrl string
}

func (awsService AWSProviderMock) InitPresignClient(ctx context.Context) error {
	return nil
}

func (awsService AWSProviderMock) PresignLink(ctx context.Context, bucketName string, fileName string) (string, error) {

	return fmt.Sprintf("https://fakebucketurl.com/%s", fileName), nil
}

func (awsService AWSProviderMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	return awsService.MockUrl, nil
}

func (awsService AWSProviderMock) UploadToPresignedURL(ctx context.Context, bucketName, url string, fileContent []byte) (string, int, error) {
	return url, 204, nil
}

type URLCacheMock struct {
	MockUrl string
	Err     error
}

func (m URLCacheMock) GetReadURL(ctx context.Context, objectKey string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.MockUrl != "" {
		return m.MockUrl, nil
	}
	return fmt.Sprintf("https://fakecache.com/%s", objectKey), nil
}

// MockLLMProcessor answers every analysis call with fixed JSON. SeenMIMETypes,
// when set, collects the mimeType argument of every vision call.
type MockLLMProcessor struct {
	SensitivityAnswer string
	RewriteAnswer     string
	RewriteErr        error
	SeenMIMETypes     *[]string
}

func (m MockLLMProcessor) recordMIMEType(mimeType string) {
	if m.SeenMIMETypes != nil {
		*m.SeenMIMETypes = append(*m.SeenMIMETypes, mimeType)
	}
}

func (m MockLLMProcessor) ClassifyGarment(ctx context.Context, imageBytes []byte, mimeType string) (string, *services.LLMResponse, error) {
	m.recordMIMEType(mimeType)
	answer := `{
		"name": "Blue denim jacket",
		"description": "Classic mid-wash denim trucker jacket",
		"category": "UPPER_BODY",
		"body_region": "upper",
		"layer_order": 2,
		"wearing_instructions": "worn open over a tee"
	}`
	return answer, &services.LLMResponse{
		Response:         answer,
		InputTokenCount:  10,
		TotalTokenCount:  21,
		OutputTokenCount: 11,
	}, nil
}

func (m MockLLMProcessor) ClassifyGarmentSensitivity(ctx context.Context, imageBytes []byte, mimeType string) (string, error) {
	m.recordMIMEType(mimeType)
	if m.SensitivityAnswer != "" {
		return m.SensitivityAnswer, nil
	}
	return `{"is_intimate": false, "label": "outerwear", "reason": "regular jacket"}`, nil
}

func (m MockLLMProcessor) AnalyzeSubjectAttributes(ctx context.Context, imageBytes []byte, mimeType string) (string, *services.LLMResponse, error) {
	m.recordMIMEType(mimeType)
	answer := `{"build": "average", "hair": "short dark", "skin_tone": "medium", "pose": "standing"}`
	return answer, &services.LLMResponse{
		Response:         answer,
		InputTokenCount:  5,
		TotalTokenCount:  12,
		OutputTokenCount: 7,
	}, nil
}

func (m MockLLMProcessor) RewriteForCompliance(ctx context.Context, metadataJSON string, prompt string, failureContext string, strictness string) (string, error) {
	if m.RewriteErr != nil {
		return "", m.RewriteErr
	}
	if m.RewriteAnswer != "" {
		return m.RewriteAnswer, nil
	}
	return `{"prompt_additions": "tasteful catalog styling", "metadata": {}, "changes": ["softened wording"]}`, nil
}

// StubGeminiPoster pops queued responses, one per generation call.
type StubGeminiPoster struct {
	Responses []*services.GenerateContentResponse
	Errs      []error
	Calls     int
}

func (s *StubGeminiPoster) PostGenerateContent(ctx context.Context, model string, request *services.GenerateContentRequest) (*services.GenerateContentResponse, error) {
	idx := s.Calls
	s.Calls++
	if idx < len(s.Errs) && s.Errs[idx] != nil {
		return nil, s.Errs[idx]
	}
	if idx < len(s.Responses) {
		return s.Responses[idx], nil
	}
	return ImageGenerationResponse([]byte("fake-image")), nil
}

// ImageGenerationResponse builds a successful generation answer carrying image data.
func ImageGenerationResponse(imageData []byte) *services.GenerateContentResponse {
	return &services.GenerateContentResponse{
		Candidates: []services.RestCandidate{
			{
				FinishReason: "STOP",
				Content: &services.RestContent{
					Parts: []services.RestPart{
						{Inline: &services.RestInlineData{
							MIMEType: "image/jpeg",
							Data:     base64.StdEncoding.EncodeToString(imageData),
						}},
					},
				},
			},
		},
		UsageMetadata: &services.RestUsageMetadata{
			PromptTokenCount:     100,
			CandidatesTokenCount: 50,
			TotalTokenCount:      150,
		},
	}
}
