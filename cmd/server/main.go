package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tigerstorage/storage-marketplace/internal/auth"
	"github.com/tigerstorage/storage-marketplace/internal/config"
	"github.com/tigerstorage/storage-marketplace/internal/database"
	"github.com/tigerstorage/storage-marketplace/internal/handler"
	"github.com/tigerstorage/storage-marketplace/internal/ledger"
	appmw "github.com/tigerstorage/storage-marketplace/internal/middleware"
	"github.com/tigerstorage/storage-marketplace/internal/queue"
	"github.com/tigerstorage/storage-marketplace/internal/repository"
	"github.com/tigerstorage/storage-marketplace/internal/router"
	queue_publisher "github.com/tigerstorage/storage-marketplace/internal/service"
	"github.com/tigerstorage/storage-marketplace/internal/worker"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and response cache disabled")
	}

	// Repositories and the reservation ledger.
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	listings := repository.NewListingRepo(db)
	interests := repository.NewInterestRepo(db)
	reviews := repository.NewReviewRepo(db)
	reservations := repository.NewReservationStore(db)
	led := ledger.New(reservations)

	var cas *auth.CASClient
	if cfg.CASBaseURL != "" {
		cas = auth.NewCASClient(cfg.CASBaseURL)
	}

	// Handlers.
	authH := handler.NewAuthHandler(cfg, users, tokens, cas)
	listingH := handler.NewListingHandler(listings, interests)
	publicH := handler.NewPublicHandler(listings, reviews)
	reservationH := handler.NewReservationHandler(led, reservations, queue_publisher.PublishReservationDecided)
	interestH := handler.NewInterestHandler(interests)
	reviewH := handler.NewReviewHandler(reviews, reservations)
	uploadH := handler.NewUploadHandler(cfg.UploadDir)
	adminH := handler.NewAdminHandler(users, listings)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{cfg.WebOrigin},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE},
	}))
	e.Use(appmw.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	e.Static("/uploads", cfg.UploadDir)

	router.RegisterRoutes(e, publicH, config.LoadCacheConfig(), rdb)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterRenter(e, reservationH, interestH, reviewH, uploadH, cfg.JWTSecret)
	router.RegisterLender(e, listingH, reservationH, cfg.JWTSecret)
	router.RegisterAdmin(e, adminH, cfg.JWTSecret)

	// Background work: the decided-event consumer and the expiry sweep.
	go func() {
		if err := queue.StartDecisionConsumer(); err != nil {
			log.Printf("decision-consumer stopped: %v", err)
		}
	}()
	sweeper := worker.NewExpirySweeper(reservations, led,
		queue_publisher.PublishReservationDecided,
		time.Duration(cfg.ExpirySweepSec)*time.Second)
	go sweeper.Run(context.Background())

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
