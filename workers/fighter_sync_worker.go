// workers/fighter_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"battle-event-system/models"
	"battle-event-system/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FighterFromEconomy matches the JSON the economy service returns for each
// community member's battle-relevant attributes.
type FighterFromEconomy struct {
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	Level      int       `json:"level"`
	Balance    float64   `json:"balance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GetFighterChangesResponse is the top-level structure of the economy
// service response.
type GetFighterChangesResponse struct {
	Fighters []FighterFromEconomy `json:"fighters"`
}

// FighterSyncWorker mirrors level and token balance per user into the local
// fighter_mirrors table so simulation start reads never leave the process.
type FighterSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/fighters"
	serviceToken string
	httpClient   *http.Client
}

func NewFighterSyncWorker(db *gorm.DB, economyBaseURL, endpointPath, serviceToken string) *FighterSyncWorker {
	return &FighterSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      economyBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *FighterSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Fighter Sync Worker (economy service → fighter_mirrors)…")
	go w.run(ctx)
}

func (w *FighterSyncWorker) run(ctx context.Context) {
	// Initial backfill from the beginning of time
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial fighter sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lastSyncTime := w.getLastSyncTime()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("❌ Fighter sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Fighter Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt in the local mirror table.
func (w *FighterSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM fighter_mirrors WHERE deleted_at IS NULL").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

// syncBatch fetches attribute changes and upserts them into fighter_mirrors.
func (w *FighterSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid economy service URL '%s': %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, "GET", finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to economy service failed: %w", err)
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("[SYNC] ❌ Economy service returned %d for %s: %s", resp.StatusCode, finalURL, string(body))
		return fmt.Errorf("economy service non-200 response: %d — %s", resp.StatusCode, string(body))
	}

	var response GetFighterChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode economy service response: %w", err)
	}

	if len(response.Fighters) == 0 {
		return nil
	}

	log.Printf("[SYNC] 📥 Processing %d fighter(s) from economy service…", len(response.Fighters))

	var upsertCount, errorCount int
	for _, remote := range response.Fighters {
		mirror := models.FighterMirror{
			ExternalUserID: remote.ExternalID,
			Username:       remote.Username,
			Level:          remote.Level,
			Balance:        remote.Balance,
			UpdatedAt:      remote.UpdatedAt,
		}

		if err := w.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "level", "balance", "updated_at",
			}),
		}).Create(&mirror).Error; err != nil {
			errorCount++
			log.Printf("[SYNC] ⚠️ Failed to upsert fighter_mirror (external_id=%q): %v", remote.ExternalID, err)
		} else {
			upsertCount++
		}
	}

	log.Printf("[SYNC] ✅ Synced %d fighter(s) (%d upserted, %d errors)", len(response.Fighters), upsertCount, errorCount)
	return nil
}
