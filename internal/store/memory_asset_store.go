package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/dunamismax/pixelpack/internal/domain"
)

type MemoryAssetStore struct {
	mu     sync.RWMutex
	assets map[string]domain.Asset
}

func NewMemoryAssetStore() *MemoryAssetStore {
	return &MemoryAssetStore{
		assets: make(map[string]domain.Asset),
	}
}

func (s *MemoryAssetStore) Create(_ context.Context, asset domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assets[asset.ID]; exists {
		return fmt.Errorf("asset %s already exists", asset.ID)
	}
	s.assets[asset.ID] = cloneAsset(asset)
	return nil
}

func (s *MemoryAssetStore) Get(_ context.Context, id string) (domain.Asset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[id]
	if !ok {
		return domain.Asset{}, false, nil
	}
	return cloneAsset(asset), true, nil
}

func (s *MemoryAssetStore) Update(_ context.Context, asset domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[asset.ID]; !ok {
		return ErrAssetNotFound
	}
	s.assets[asset.ID] = cloneAsset(asset)
	return nil
}

// cloneAsset copies the reference fields so callers cannot mutate stored state.
func cloneAsset(a domain.Asset) domain.Asset {
	if a.Focal != nil {
		focal := *a.Focal
		a.Focal = &focal
	}
	a.Fields = maps.Clone(a.Fields)
	return a
}
