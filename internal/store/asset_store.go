package store

import (
	"context"
	"errors"

	"github.com/dunamismax/pixelpack/internal/domain"
)

var ErrAssetNotFound = errors.New("asset not found")

// AssetStore persists managed image metadata.
type AssetStore interface {
	Create(ctx context.Context, asset domain.Asset) error
	Get(ctx context.Context, id string) (domain.Asset, bool, error)
	Update(ctx context.Context, asset domain.Asset) error
}

// Lookup returns the asset or ErrAssetNotFound.
func Lookup(ctx context.Context, s AssetStore, id string) (*domain.Asset, error) {
	asset, ok, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotFound
	}
	return &asset, nil
}
