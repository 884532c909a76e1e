// Package registry holds the administrator-managed configuration: panels,
// their enabled flags and the chats that receive notifications. Every read
// goes to storage, so a mutation is seen by the poll loop on its next cycle.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/ObiAU/otprelay/internal/models"
	"github.com/ObiAU/otprelay/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrNotFound = errors.New("panel not found")

type Registry struct {
	mu    sync.Mutex
	store storage.Store
}

func New(store storage.Store) *Registry {
	return &Registry{store: store}
}

// Create stores a new enabled panel under a freshly generated id.
func (r *Registry) Create(ctx context.Context, in models.PanelInput) (models.Panel, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return models.Panel{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	panels, err := r.load(ctx)
	if err != nil {
		return models.Panel{}, err
	}

	var seq int64
	taken := make(map[string]bool, len(panels))
	for _, p := range panels {
		taken[p.ID] = true
		if p.Seq > seq {
			seq = p.Seq
		}
	}

	id := newPanelID()
	for taken[id] {
		id = newPanelID()
	}

	panel := models.Panel{
		PanelInput: in,
		ID:         id,
		Enabled:    true,
		Seq:        seq + 1,
		CreatedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(panel)
	if err != nil {
		return models.Panel{}, fmt.Errorf("failed to encode panel: %w", err)
	}
	if err := r.store.Put(ctx, storage.BucketPanels, id, data); err != nil {
		return models.Panel{}, err
	}
	if err := r.store.Put(ctx, storage.BucketSourceState, id, encodeState(true)); err != nil {
		return models.Panel{}, err
	}

	return panel, nil
}

func (r *Registry) Get(ctx context.Context, id string) (models.Panel, error) {
	data, err := r.store.Get(ctx, storage.BucketPanels, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Panel{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Panel{}, err
	}

	var panel models.Panel
	if err := json.Unmarshal(data, &panel); err != nil {
		return models.Panel{}, fmt.Errorf("failed to decode panel %s: %w", id, err)
	}

	state, err := r.store.Get(ctx, storage.BucketSourceState, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		panel.Enabled = true
	case err != nil:
		return models.Panel{}, err
	default:
		panel.Enabled = decodeState(state)
	}
	return panel, nil
}

// List returns every panel in creation order.
func (r *Registry) List(ctx context.Context) ([]models.Panel, error) {
	return r.load(ctx)
}

func (r *Registry) ListEnabled(ctx context.Context) ([]models.Panel, error) {
	panels, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	enabled := panels[:0]
	for _, p := range panels {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled, nil
}

func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, storage.BucketPanels, id); err != nil {
		return err
	}
	return r.store.Delete(ctx, storage.BucketSourceState, id)
}

func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.store.Put(ctx, storage.BucketSourceState, id, encodeState(enabled))
}

// Seed creates the given panels unless a panel with the same name exists.
// It returns how many were created.
func (r *Registry) Seed(ctx context.Context, inputs []models.PanelInput) (int, error) {
	existing, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	names := make(map[string]bool, len(existing))
	for _, p := range existing {
		names[strings.ToLower(p.Name)] = true
	}

	created := 0
	for _, in := range inputs {
		if names[strings.ToLower(in.Name)] {
			continue
		}
		if _, err := r.Create(ctx, in); err != nil {
			return created, fmt.Errorf("seed panel %q: %w", in.Name, err)
		}
		names[strings.ToLower(in.Name)] = true
		created++
	}
	return created, nil
}

func (r *Registry) load(ctx context.Context) ([]models.Panel, error) {
	states := make(map[string]bool)
	err := r.store.ForEach(ctx, storage.BucketSourceState, func(key string, value []byte) error {
		states[key] = decodeState(value)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var panels []models.Panel
	err = r.store.ForEach(ctx, storage.BucketPanels, func(key string, value []byte) error {
		var p models.Panel
		if err := json.Unmarshal(value, &p); err != nil {
			return fmt.Errorf("failed to decode panel %s: %w", key, err)
		}
		p.Enabled = true
		if enabled, ok := states[key]; ok {
			p.Enabled = enabled
		}
		panels = append(panels, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(panels, func(i, j int) bool {
		if panels[i].Seq != panels[j].Seq {
			return panels[i].Seq < panels[j].Seq
		}
		return panels[i].ID < panels[j].ID
	})
	return panels, nil
}

func newPanelID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PANEL_" + strings.ToUpper(hex[:6])
}

func encodeState(enabled bool) []byte {
	if enabled {
		return []byte("1")
	}
	return []byte("0")
}

func decodeState(b []byte) bool {
	return string(b) == "1"
}
