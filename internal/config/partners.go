package config

import (
	"context"
	"sync"

	widgetAuth "github.com/MrEthical07/widgetAuth"
)

// StaticPartners is an in-memory [widgetAuth.PartnerProvider].
type StaticPartners struct {
	mu   sync.RWMutex
	recs map[string]widgetAuth.PartnerRecord
}

// NewStaticPartners copies recs, keyed by API key ID.
func NewStaticPartners(recs map[string]widgetAuth.PartnerRecord) *StaticPartners {
	s := &StaticPartners{recs: make(map[string]widgetAuth.PartnerRecord, len(recs))}
	for k, v := range recs {
		s.recs[k] = v
	}
	return s
}

// Put adds or replaces the partner for keyID.
func (s *StaticPartners) Put(keyID string, rec widgetAuth.PartnerRecord) {
	s.mu.Lock()
	s.recs[keyID] = rec
	s.mu.Unlock()
}

// Len returns the number of configured keys.
func (s *StaticPartners) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}

func (s *StaticPartners) GetPartnerByKeyID(_ context.Context, keyID string) (widgetAuth.PartnerRecord, error) {
	s.mu.RLock()
	rec, ok := s.recs[keyID]
	s.mu.RUnlock()
	if !ok {
		return widgetAuth.PartnerRecord{}, widgetAuth.ErrPartnerNotFound
	}
	return rec, nil
}
