package controllers

import (
	"context"
	"log"
	"net/http"
	"os"

	"changeroomapi/models"
	"changeroomapi/services"

	firebase "firebase.google.com/go/v4"
	"github.com/go-playground/validator"
	"github.com/hibiken/asynq"
	echojwt "github.com/labstack/echo-jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		// Optionally, you could return the error to give each route more control over the status code
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func SetupServer(
	db *gorm.DB,
	googleService services.GoogleServiceProvider,
	awsService services.AWSServiceProvider,
	firebaseApp *firebase.App,
	asynqClient *asynq.Client,
	asynqInspector *asynq.Inspector,
	urlCache services.URLCacheServiceProvider,
) *echo.Echo {

	err := awsService.InitPresignClient(context.Background())
	if err != nil {
		log.Fatal("Failed to initialize AWS provider: S3")
	}

	e := echo.New()
	v := validator.New()
	v.RegisterValidation("platform", models.ValidatePlatform)
	e.Validator = &CustomValidator{validator: v}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("__db", db)
			c.Set("__asynqclient", asynqClient)
			c.Set("__asynqinspector", asynqInspector)
			return next(c)
		}
	})

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	authGroup := e.Group("auth")

	controller := AuthController{Google: googleService, FirebaseApp: firebaseApp, AWSService: awsService, URLCache: urlCache}
	controller.ProfileRoutes(authGroup)

	shopGroup := e.Group("shop", echojwt.JWT([]byte(os.Getenv("JWT_SECRET"))))
	shopGroup.Use(UserMiddleware)

	limiter := NewRateLimiter()

	clothesController := ClothesController{Google: googleService, AWSService: awsService, FirebaseApp: firebaseApp, URLCache: urlCache}
	clothesGroup := shopGroup.Group("/clothes")
	clothesController.ClothingRoutes(clothesGroup)
	// generation path is throttled per user
	tryonGroup := shopGroup.Group("/tryon")
	clothesController.TryOnRoutes(tryonGroup, limiter)

	return e
}
