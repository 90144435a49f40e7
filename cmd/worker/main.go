package main

import (
	"context"
	"log"
	"os"
	"time"

	"changeroomapi/dbhelper"
	"changeroomapi/services"
	"changeroomapi/tasks"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
)

func NewCleanupTask() *asynq.Task {
	return asynq.NewTask("cleanup:stale_clothes", []byte{})
}

func runScheduler() {

	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}, &asynq.SchedulerOpts{

		LogLevel: asynq.InfoLevel,
	})

	scheduled := []struct {
		cron string
		task *asynq.Task
		desc string
	}{
		{
			cron: "0 4 * * *", // 4:00 AM daily
			task: NewCleanupTask(),
			desc: "Stale temporary clothes cleanup",
		},
	}

	for _, t := range scheduled {
		entryID, err := scheduler.Register(t.cron, t.task)
		if err != nil {
			log.Fatalf("Failed to register task '%s': %v", t.desc, err)
		}
		log.Printf("Registered task '%s' with ID: %s, cron: %s", t.desc, entryID, t.cron)
	}

	log.Println("Starting scheduler...")
	if err := scheduler.Run(); err != nil {
		log.Fatalf("Scheduler failed: %v", err)
	}
}

func main() {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         os.Getenv("SENTRY_DSN"),
		Environment: services.GetEnv("ENV", "local"),
		Release:     "changeroomgo@1.0.0",
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")},
		asynq.Config{Concurrency: 10, Queues: map[string]int{
			"generate": 7,
		}},
	)
	awsService := &services.AWSService{}
	llmProcessor := &services.GoogleLLMProcessor{}
	poster := services.NewHTTPGeminiPoster()
	if err := awsService.InitPresignClient(context.Background()); err != nil {
		log.Fatal("[Queue] Failed to initialize AWS provider: S3")
	}
	app, err := firebase.NewApp(context.Background(), nil)
	if err != nil {
		log.Fatalf("error initializing firebase app: %v\n", err)
		return
	}
	mux := asynq.NewServeMux()
	db := dbhelper.SetupDB()
	mux.HandleFunc(tasks.TypeTryOnGeneration, func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleTryOnGenerationTask(ctx, t, db, llmProcessor, poster, awsService, app)
	})
	mux.HandleFunc(tasks.TypeClothingProcessing, func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleClothingProcessingTask(ctx, t, db, llmProcessor, awsService)
	})
	mux.HandleFunc(tasks.TypeAvatarAnalysis, func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleAvatarAnalysisTask(ctx, t, db, llmProcessor, awsService)
	})
	mux.HandleFunc("cleanup:stale_clothes", func(ctx context.Context, t *asynq.Task) error {
		return tasks.ScheduledCleanupTask(ctx, t, db)
	})

	go runScheduler()
	if err := srv.Run(mux); err != nil {
		log.Fatal(err)
	}
}
