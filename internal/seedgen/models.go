package seedgen

import (
	"fmt"
	"strings"
)

type Model struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var knownModels = []Model{
	{ID: "gpt-4o-mini", Label: "GPT-4o Mini"},
	{ID: "gpt-4o", Label: "GPT-4o"},
	{ID: "gpt-3.5-turbo", Label: "GPT-3.5 Turbo"},
}

const DefaultModelID = "gpt-4o-mini"

// ModelSet is the enumerated set of model identifiers a caller may select.
type ModelSet struct {
	models    []Model
	defaultID string
}

// DefaultModels returns the built-in model set.
func DefaultModels() ModelSet {
	models := make([]Model, len(knownModels))
	copy(models, knownModels)
	return ModelSet{models: models, defaultID: DefaultModelID}
}

// NewModelSet restricts selection to ids. Unknown ids are allowed and are
// labelled with the id itself.
func NewModelSet(ids []string, defaultID string) (ModelSet, error) {
	if len(ids) == 0 {
		return ModelSet{}, fmt.Errorf("at least one model is required")
	}
	set := ModelSet{models: make([]Model, 0, len(ids)), defaultID: strings.TrimSpace(defaultID)}
	seen := map[string]struct{}{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		set.models = append(set.models, labelFor(id))
	}
	if len(set.models) == 0 {
		return ModelSet{}, fmt.Errorf("at least one model is required")
	}
	if set.defaultID == "" {
		set.defaultID = set.models[0].ID
	}
	if _, ok := seen[set.defaultID]; !ok {
		return ModelSet{}, fmt.Errorf("default model %q is not in the model set", set.defaultID)
	}
	return set, nil
}

func (s ModelSet) List() []Model {
	out := make([]Model, len(s.models))
	copy(out, s.models)
	return out
}

func (s ModelSet) Default() string {
	return s.defaultID
}

// Resolve maps a requested id to a model. A blank id selects the default.
func (s ModelSet) Resolve(id string) (Model, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = s.defaultID
	}
	for _, model := range s.models {
		if model.ID == id {
			return model, nil
		}
	}
	return Model{}, fmt.Errorf("%w: unsupported model %q", ErrInvalidInput, id)
}

func labelFor(id string) Model {
	for _, model := range knownModels {
		if model.ID == id {
			return model
		}
	}
	return Model{ID: id, Label: id}
}
