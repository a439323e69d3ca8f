package picture

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelpack/internal/domain"
)

// AssetResolver looks up a managed asset by id.
type AssetResolver func(ctx context.Context, id string) (*domain.Asset, error)

// DecodeSources converts loosely typed input (decoded JSON or YAML) into
// sources. raw may be a single positional tuple
// [image, transform, condition, format], a list of tuples, or a list of
// records with image/transform/condition/format keys. Malformed slots fall
// back to their zero value.
func DecodeSources(ctx context.Context, raw any, resolve AssetResolver) ([]Source, error) {
	list, ok := raw.([]any)
	if !ok {
		if m, isMap := raw.(map[string]any); isMap {
			list = []any{m}
		} else {
			return nil, nil
		}
	}
	if len(list) == 0 {
		return nil, nil
	}

	switch first := list[0].(type) {
	case []any:
	case map[string]any:
		// An image record in the first slot means list is itself one tuple.
		if _, isRecord := first["image"]; !isRecord {
			list = []any{list}
		}
	default:
		list = []any{list}
	}

	out := make([]Source, 0, len(list))
	for i, entry := range list {
		s, err := decodeSource(ctx, entry, resolve)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeSource(ctx context.Context, entry any, resolve AssetResolver) (Source, error) {
	var image, transform, condition, format any
	switch v := entry.(type) {
	case []any:
		slot := func(i int) any {
			if i < len(v) {
				return v[i]
			}
			return nil
		}
		image, transform, condition, format = slot(0), slot(1), slot(2), slot(3)
	case map[string]any:
		image = v["image"]
		transform = v["transform"]
		if transform == nil {
			transform = v["transforms"]
		}
		condition = v["condition"]
		if condition == nil {
			condition = v["media"]
		}
		format = v["format"]
	}

	ref, err := DecodeImage(ctx, image, resolve)
	if err != nil {
		return Source{}, err
	}
	f, _ := format.(string)
	return Source{
		Image:      ref,
		Transforms: DecodeTransforms(transform),
		Condition:  decodeCondition(condition),
		Format:     strings.TrimSpace(f),
	}, nil
}

// DecodeImage accepts a path string or an {"asset": id} record.
func DecodeImage(ctx context.Context, raw any, resolve AssetResolver) (*domain.ImageRef, error) {
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return domain.PathRef(v), nil
	case map[string]any:
		id, _ := v["asset"].(string)
		if id == "" {
			id, _ = v["id"].(string)
		}
		if id == "" {
			if p, ok := v["path"].(string); ok && strings.TrimSpace(p) != "" {
				return domain.PathRef(p), nil
			}
			return nil, nil
		}
		if resolve == nil {
			return nil, fmt.Errorf("asset %s: no asset store configured", id)
		}
		asset, err := resolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", id, err)
		}
		return domain.AssetRef(asset), nil
	default:
		return nil, nil
	}
}

// DecodeTransforms accepts one transform record or a list of them.
func DecodeTransforms(raw any) []domain.Transform {
	switch v := raw.(type) {
	case map[string]any:
		return []domain.Transform{decodeTransform(v)}
	case []any:
		out := make([]domain.Transform, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, decodeTransform(m))
			}
		}
		return out
	default:
		return nil
	}
}

func decodeTransform(m map[string]any) domain.Transform {
	t := domain.Transform{
		Width:   toInt(m["width"]),
		Height:  toInt(m["height"]),
		Ratio:   toFloat(m["ratio"]),
		Quality: toInt(m["quality"]),
	}
	t.Mode, _ = m["mode"].(string)
	t.Format, _ = m["format"].(string)
	return t
}

func decodeCondition(raw any) Condition {
	switch v := raw.(type) {
	case string:
		return Media(v)
	case int, int64, float64, uint64:
		return MinWidth(toInt(v))
	default:
		return NoCondition()
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(math.Round(n))
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	default:
		return 0
	}
}
