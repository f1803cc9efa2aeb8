package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
)

// narrationPacing is the delay between streamed combat events. The simulation
// itself is instantaneous; the drama lives entirely here, in the
// presentation layer, where a disconnect or force-end can't corrupt state.
const narrationPacing = 2 * time.Second

// StreamBattleEventsSSE streams the battle's combat events as server-sent
// events, paced for narration. The stream closes once the battle is terminal
// and every event has been delivered.
func (s *BattleService) StreamBattleEventsSSE(c *fiber.Ctx) error {
	battleID := c.Params("id")

	if _, _, err := s.Events(battleID, 0); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "battle not found"})
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(narrationPacing)
		defer ticker.Stop()

		cursor := 0

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				events, status, err := s.Events(battleID, cursor)
				if err != nil {
					log.Printf("SSE query error for battle %s: %v", battleID, err)
					return
				}

				if len(events) > 0 {
					// One event per tick keeps the narration paced even when
					// the whole simulation committed at once.
					ev := events[0]
					cursor++

					payload, _ := json.Marshal(ev)
					fmt.Fprintf(w, "event: combat\ndata: %s\n\n", payload)
					if err := w.Flush(); err != nil {
						// Client disconnected
						return
					}
					continue
				}

				if status.Terminal() {
					fmt.Fprintf(w, "event: end\ndata: {\"status\":%q}\n\n", status)
					w.Flush()
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
