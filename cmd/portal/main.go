package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/qzr8/dealer_go_portal/config"
	"github.com/qzr8/dealer_go_portal/internal/api"
	"github.com/qzr8/dealer_go_portal/internal/api/handler"
	"github.com/qzr8/dealer_go_portal/internal/auth"
	"github.com/qzr8/dealer_go_portal/internal/database"
	"github.com/qzr8/dealer_go_portal/internal/pkg/archive"
	"github.com/qzr8/dealer_go_portal/internal/pkg/cron"
	"github.com/qzr8/dealer_go_portal/internal/pkg/pubsub"
	"github.com/qzr8/dealer_go_portal/internal/pkg/ws"
	"github.com/qzr8/dealer_go_portal/internal/repository"
	"github.com/qzr8/dealer_go_portal/internal/tracker"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	archiveStore, err := archive.New(&cfg.Archive)
	if err != nil {
		log.Fatalf("Failed to init archive store: %v", err)
	}

	jobRepo := repository.NewJobRepository(db)

	jobTracker := tracker.New(jobRepo, archiveStore, &cfg.Polling)

	// tracker events -> redis -> websocket hub
	publisher := pubsub.NewPublisher(rdb)
	jobTracker.AddListener(func(e tracker.Event) {
		event := toJobEvent(e)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := publisher.PublishEvent(ctx, event); err != nil {
			log.Printf("Publish job event: %v", err)
		}
	})

	wsHub := ws.NewHub()
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		for {
			err := subscriber.Subscribe(context.Background(), func(e *pubsub.JobEvent) {
				wsHub.SendToOwner(e.OwnerID, &ws.Message{Type: e.Type, Data: e})
			})
			log.Printf("Event subscription ended: %v, reconnecting", err)
			time.Sleep(time.Second)
		}
	}()
	log.Println("Event fan-out started")

	// jobs left over from the previous run; polling resumes per owner at login
	if active, err := jobRepo.ListActive(); err == nil && len(active) > 0 {
		log.Printf("%d live jobs found, waiting for owner login to resume tracking", len(active))
	}

	sessions := auth.NewStore(12 * time.Hour)

	cronService := cron.NewService(jobTracker, jobRepo, sessions,
		cfg.Polling.ReconcileEvery, cfg.Retention.TerminalJobDays)
	cronService.Start()
	defer cronService.Stop()

	sessionHandler := handler.NewSessionHandler(sessions, jobTracker, cfg)
	jobHandler := handler.NewJobHandler(jobTracker, jobRepo, cfg.Upload)
	websocketHandler := handler.NewWebSocketHandler(wsHub)

	router := api.NewRouter(sessionHandler, jobHandler, websocketHandler, sessions, cfg)
	engine := router.Setup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Portal starting on %s (analysis service: %s)", addr, cfg.Remote.BaseURL)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func toJobEvent(e tracker.Event) *pubsub.JobEvent {
	event := &pubsub.JobEvent{
		Type:            pubsub.TypeJobUpdated,
		JobID:           e.Job.ID,
		OwnerID:         e.Job.OwnerID,
		Kind:            e.Job.Kind,
		Status:          e.Job.Status,
		TotalItems:      e.Job.TotalItems,
		ProcessedItems:  e.Job.ProcessedItems,
		FailedItems:     e.Job.FailedItems,
		ProgressPercent: e.Job.Progress(),
		CurrentItem:     e.Job.CurrentItem,
		Error:           e.Job.ErrorMessage,
	}
	if e.Removed {
		event.Type = pubsub.TypeJobRemoved
	}
	return event
}
