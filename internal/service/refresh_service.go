package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/portview/portfolio-backend/internal/apperrors"
	"github.com/portview/portfolio-backend/internal/repository"
)

// refreshConcurrency caps how many items sync at once during a scheduled
// refresh, keeping aggregator load and SQLite write contention bounded.
const refreshConcurrency = 4

// RefreshService runs the scheduled whole-store refresh: every linked item
// across every user gets a sync pass. Items already syncing are skipped, and
// one item's failure never stops the rest.
type RefreshService struct {
	linkedItemRepo *repository.LinkedItemRepository
	syncService    *SyncService
}

// NewRefreshService creates a new RefreshService with the provided dependencies.
func NewRefreshService(linkedItemRepo *repository.LinkedItemRepository, syncService *SyncService) *RefreshService {
	return &RefreshService{
		linkedItemRepo: linkedItemRepo,
		syncService:    syncService,
	}
}

// RefreshAll syncs all linked items with bounded concurrency. Items whose
// sync is already running are skipped silently; other failures are collected
// and returned combined after every item has been attempted.
func (s *RefreshService) RefreshAll(ctx context.Context) error {
	items, err := s.linkedItemRepo.ListAll()
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var failures error

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)

	for _, item := range items {
		item := item
		g.Go(func() error {
			result, err := s.syncService.Sync(ctx, item.UserID, item.ID)
			if err != nil {
				if errors.Is(err, apperrors.ErrSyncInProgress) {
					return nil
				}
				log.Printf("Refresh of item %s failed: %v", item.ID, err)
				mu.Lock()
				failures = multierr.Append(failures, fmt.Errorf("item %s: %w", item.ID, err))
				mu.Unlock()
				return nil
			}
			if len(result.Errors) > 0 {
				log.Printf("Refresh of item %s finished with %d error entries", item.ID, len(result.Errors))
			}
			return nil
		})
	}

	// Workers report through failures, never through the group, so one bad
	// item cannot cancel its siblings.
	if err := g.Wait(); err != nil {
		return err
	}

	return failures
}
