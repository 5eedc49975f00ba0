package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"outreachcrm/hubspot"
)

// SyncWorker periodically pushes unsynced activities to HubSpot so the
// timeline stays current even when nobody triggers a manual sync.
type SyncWorker struct {
	DB     *gorm.DB
	Sync   *hubspot.SyncService
	Logger *log.Logger

	Interval time.Duration
}

func NewSyncWorker(db *gorm.DB, sync *hubspot.SyncService, logger *log.Logger) *SyncWorker {
	return &SyncWorker{
		DB:       db,
		Sync:     sync,
		Logger:   logger,
		Interval: 15 * time.Minute,
	}
}

func (sw *SyncWorker) Start(ctx context.Context) {
	time.Sleep(10 * time.Second)

	sw.Logger.Println("Activity sync worker started")

	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Println("Activity sync worker shutting down...")
			return
		case <-ticker.C:
			sw.pushPending()
		}
	}
}

func (sw *SyncWorker) pushPending() {
	synced, failed, skipped, err := sw.Sync.SyncPendingActivities()
	if err != nil {
		sw.Logger.Printf("Activity sync failed: %v", err)
		return
	}
	if synced > 0 || failed > 0 {
		sw.Logger.Printf("Activity sync: %d pushed, %d failed, %d skipped", synced, failed, skipped)
	}
}
