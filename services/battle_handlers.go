package services

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// Fiber handlers for the battle lifecycle. The gateway injects identity via
// X-User-ID; middleware puts it into c.Locals("user_id").

// CreateBattleHandler opens a registration window (organizer action).
func (s *BattleService) CreateBattleHandler(c *fiber.Ctx) error {
	var req struct {
		Name                string `json:"name"`
		MaxPlayers          int    `json:"max_players"`
		RegistrationMinutes int    `json:"registration_minutes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	view, err := s.CreateBattle(req.Name, req.MaxPlayers, req.RegistrationMinutes)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidArgument):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrBattleConflict):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("❌ Create battle failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create battle"})
		}
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

// JoinBattleHandler registers the authenticated user for the battle.
func (s *BattleService) JoinBattleHandler(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	count, err := s.JoinBattle(c.Params("id"), userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrBattleNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrRegistrationClosed):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrAlreadyJoined):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrCooldownActive):
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("❌ Join battle failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to join battle"})
		}
	}
	return c.JSON(fiber.Map{"participant_count": count})
}

// BattleStatusHandler returns the view of any known battle id.
func (s *BattleService) BattleStatusHandler(c *fiber.Ctx) error {
	view, err := s.Status(c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrBattleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		log.Printf("❌ Battle status failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch battle"})
	}
	return c.JSON(view)
}

// ActiveBattleHandler returns the live battle, if one exists.
func (s *BattleService) ActiveBattleHandler(c *fiber.Ctx) error {
	view, ok := s.ActiveBattle()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no battle is currently running"})
	}
	return c.JSON(view)
}

// BattleEventsHandler returns the committed combat events for narration
// catch-up. `cursor` skips events the caller already consumed.
func (s *BattleService) BattleEventsHandler(c *fiber.Ctx) error {
	cursor := c.QueryInt("cursor", 0)
	events, status, err := s.Events(c.Params("id"), cursor)
	if err != nil {
		if errors.Is(err, ErrBattleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch events"})
	}
	return c.JSON(fiber.Map{
		"status": status,
		"events": events,
		"cursor": cursor + len(events),
	})
}

// ForceEndBattleHandler cancels the battle from any non-terminal state
// (admin action). Repeating the call returns the terminal view again.
func (s *BattleService) ForceEndBattleHandler(c *fiber.Ctx) error {
	view, err := s.ForceEnd(c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrBattleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		log.Printf("❌ Force end failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to end battle"})
	}
	return c.JSON(view)
}

// ListBattlesHandler returns the battle archive (admin view).
func (s *BattleService) ListBattlesHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	battles, err := s.store.ListBattles(limit)
	if err != nil {
		log.Printf("❌ List battles failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list battles"})
	}
	return c.JSON(battles)
}
