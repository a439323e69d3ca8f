package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/picture"
	"github.com/hibiken/asynq"
)

const TypeWarmVariants = "variants:warm"

// WarmVariantsPayload asks a worker to pre-render every variant a picture
// call would need. Sources is kept in its loose wire form and decoded by the
// worker, which resolves asset ids against its own store.
type WarmVariantsPayload struct {
	ID          string            `json:"id"`
	Sources     json.RawMessage   `json:"sources"`
	Params      picture.Params    `json:"params"`
	Settings    *config.Overrides `json:"settings,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	RequestedAt time.Time         `json:"requested_at"`
}

func (p WarmVariantsPayload) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("id is required")
	}
	trimmed := strings.TrimSpace(string(p.Sources))
	if trimmed == "" || trimmed == "null" {
		return errors.New("sources are required")
	}
	if p.CallbackURL != "" {
		u, err := url.Parse(p.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("callback url %q must be an absolute http(s) url", p.CallbackURL)
		}
	}
	return nil
}

func NewWarmVariantsTask(payload WarmVariantsPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid warm payload: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal warm payload: %w", err)
	}
	return asynq.NewTask(TypeWarmVariants, body), nil
}

func ParseWarmVariantsPayload(task *asynq.Task) (WarmVariantsPayload, error) {
	var payload WarmVariantsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return WarmVariantsPayload{}, fmt.Errorf("unmarshal warm payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return WarmVariantsPayload{}, fmt.Errorf("invalid warm payload: %w", err)
	}
	return payload, nil
}
