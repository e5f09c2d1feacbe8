package providers

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"

	"cyris/internal/models"
)

// modelsFile is the on-disk shape of a registry override:
//
//	[[models]]
//	id = "openai/gpt-4o-mini"
//	name = "GPT-4o Mini"
//	logo_path = "/assets/gpt.png"
type modelsFile struct {
	Models []models.AIModel `toml:"models"`
}

// ModelRegistry is the ordered list of selectable models. It is safe for
// concurrent use and may be replaced at runtime.
type ModelRegistry struct {
	mu     sync.RWMutex
	models []models.AIModel
}

// NewModelRegistry creates a registry. With no models it holds the defaults.
func NewModelRegistry(list ...models.AIModel) *ModelRegistry {
	if len(list) == 0 {
		list = models.DefaultAIModels()
	}
	return &ModelRegistry{models: list}
}

// Lookup finds a model by id
func (r *ModelRegistry) Lookup(id string) (models.AIModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Find(r.models, func(m models.AIModel) bool {
		return m.ID == id
	})
}

// All returns a copy of every registered model in order
func (r *ModelRegistry) All() []models.AIModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.AIModel, len(r.models))
	copy(out, r.models)
	return out
}

// AutopickEligible returns the models the router may choose from
func (r *ModelRegistry) AutopickEligible() []models.AIModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(r.models, func(m models.AIModel, _ int) bool {
		return !m.ImageOnly
	})
}

// DisplayName resolves a model id to its name, falling back to the id itself.
func (r *ModelRegistry) DisplayName(id string) string {
	if m, ok := r.Lookup(id); ok {
		return m.Name
	}
	return id
}

// IDs returns the registered ids in order
func (r *ModelRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.models, func(m models.AIModel, _ int) string {
		return m.ID
	})
}

// Replace swaps the registry contents after validating them.
func (r *ModelRegistry) Replace(list []models.AIModel) error {
	if err := validateModels(list); err != nil {
		return err
	}
	r.mu.Lock()
	r.models = append([]models.AIModel(nil), list...)
	r.mu.Unlock()
	return nil
}

// LoadFile replaces the registry with the models listed in a TOML file.
// On error the current contents are kept.
func (r *ModelRegistry) LoadFile(path string) error {
	var f modelsFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return fmt.Errorf("decoding models file %s: %w", path, err)
	}
	return r.Replace(f.Models)
}

func validateModels(list []models.AIModel) error {
	if len(list) == 0 {
		return fmt.Errorf("model registry must not be empty")
	}
	if !lo.SomeBy(list, func(m models.AIModel) bool { return !m.ImageOnly }) {
		return fmt.Errorf("model registry needs at least one text model")
	}
	seen := make(map[string]struct{}, len(list))
	for i, m := range list {
		if strings.TrimSpace(m.ID) == "" || strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("model %d: id and name are required", i)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}
