package handlers

import (
	"battle-event-system/middleware"
	"battle-event-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBattleRoutes(app *fiber.App, battleService *services.BattleService) {
	// 🔓 Read-only routes (still behind the gateway token, no user context needed)
	app.Get("/battles/active", battleService.ActiveBattleHandler)
	app.Get("/battles/:id", battleService.BattleStatusHandler)
	app.Get("/battles/:id/events", battleService.BattleEventsHandler)
	app.Get("/battles/:id/stream", battleService.StreamBattleEventsSSE)

	// 🔐 Authenticated routes — gateway must inject X-User-ID
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/battles", battleService.CreateBattleHandler)
	secured.Post("/battles/:id/join", battleService.JoinBattleHandler)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin", middleware.RequireRole("admin", "moderator"))
	admin.Post("/battles/:id/end", battleService.ForceEndBattleHandler)
	admin.Get("/battles", battleService.ListBattlesHandler)
}
