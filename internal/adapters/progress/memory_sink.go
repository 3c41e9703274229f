package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
)

type memoryEntry struct {
	events    []core.ProgressEvent
	expiresAt time.Time
}

// MemorySink keeps progress events in memory for a limited time
type MemorySink struct {
	entries     map[string]*memoryEntry
	mu          sync.RWMutex
	ttl         time.Duration
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewMemorySink creates a new in-memory sink. Each receipt's log expires ttl
// after its last event.
func NewMemorySink(ttl, cleanupFreq time.Duration, logger *zap.Logger) *MemorySink {
	s := &MemorySink{
		entries:     make(map[string]*memoryEntry),
		ttl:         ttl,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go runCleanup(s, cleanupFreq, s.stopCh, logger)
	}

	return s
}

// Emit appends the event to the receipt's log
func (s *MemorySink) Emit(ctx context.Context, event core.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[event.ReceiptID]
	if !ok {
		entry = &memoryEntry{}
		s.entries[event.ReceiptID] = entry
	}
	entry.events = append(entry.events, event)
	entry.expiresAt = s.now().Add(s.ttl)
	return nil
}

// Latest returns the most recent event for a receipt
func (s *MemorySink) Latest(ctx context.Context, receiptID string) (*core.ProgressEvent, error) {
	events, err := s.History(ctx, receiptID)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	last := events[len(events)-1]
	return &last, nil
}

// History returns a copy of the receipt's log
func (s *MemorySink) History(ctx context.Context, receiptID string) ([]core.ProgressEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[receiptID]
	if !ok || s.now().After(entry.expiresAt) {
		return []core.ProgressEvent{}, nil
	}
	return append([]core.ProgressEvent(nil), entry.events...), nil
}

// Cleanup removes expired logs
func (s *MemorySink) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expired := 0
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
			expired++
		}
	}

	s.logger.Debug("Cleaned up expired progress logs", zap.Int("expired_count", expired))
	return nil
}

// Stop stops the background cleanup task
func (s *MemorySink) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

type cleaner interface {
	Cleanup(ctx context.Context) error
}

// runCleanup calls Cleanup every freq until stop is closed
func runCleanup(c cleaner, freq time.Duration, stop <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				logger.Error("Failed to clean up progress logs", zap.Error(err))
			}
		case <-stop:
			return
		}
	}
}
