package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"battle-event-system/handlers"
	"battle-event-system/middleware"
	"battle-event-system/models"
	"battle-event-system/services"
	"battle-event-system/utils"
	"battle-event-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Service-Token",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Battle{},
		&models.Participant{},
		&models.RewardEntry{},
		&models.FighterMirror{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	economyURL := os.Getenv("ECONOMY_SERVICE_URL")
	if economyURL == "" {
		log.Fatal("ECONOMY_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("BATTLE_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("BATTLE_SERVICE_TOKEN environment variable not set")
	}

	scheduler, err := services.NewGocronScheduler()
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	// The registry is the only owner of live battle state. It is built here,
	// once, and injected — nothing re-derives or duplicates it.
	registry := services.NewBattleRegistry()
	store := services.NewGormBattleStore(db)
	directory := services.NewMirrorDirectory(db)
	ledger := services.NewEconomyLedgerClient()

	battleService := services.NewBattleService(registry, store, directory, ledger, scheduler, services.SystemClock())
	battleService.SetArchiver(utils.UploadBattleLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker := workers.NewFighterSyncWorker(db, economyURL, "/api/v1/public/fighters", serviceToken)
	syncWorker.Start(ctx)

	handlers.SetupBattleRoutes(app, battleService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Fighter Sync Worker running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := scheduler.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
