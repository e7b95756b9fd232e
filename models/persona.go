package models

// Persona is one of the fixed model-instruction presets a user turn fans
// out to. The set is loaded once at startup and read-only afterwards.
type Persona struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Instruction string  `json:"instruction" yaml:"instruction"`
	ModelID     string  `json:"model_id" yaml:"model_id"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// PersonaRegistry holds the ordered persona list. Index stability is the
// invariant callers rely on: entry i of a turn always belongs to persona i.
type PersonaRegistry struct {
	personas []*Persona
	byID     map[string]int
}

// NewPersonaRegistry creates a registry from an ordered persona list.
func NewPersonaRegistry(personas []*Persona) *PersonaRegistry {
	r := &PersonaRegistry{
		personas: personas,
		byID:     make(map[string]int, len(personas)),
	}
	for i, p := range personas {
		r.byID[p.ID] = i
	}
	return r
}

// Count returns the number of configured personas.
func (r *PersonaRegistry) Count() int {
	return len(r.personas)
}

// At returns the persona at index i.
func (r *PersonaRegistry) At(i int) (*Persona, bool) {
	if i < 0 || i >= len(r.personas) {
		return nil, false
	}
	return r.personas[i], true
}

// Get retrieves a persona and its index by ID.
func (r *PersonaRegistry) Get(id string) (*Persona, int, bool) {
	i, exists := r.byID[id]
	if !exists {
		return nil, -1, false
	}
	return r.personas[i], i, true
}

// List returns all personas in fan-out order.
func (r *PersonaRegistry) List() []*Persona {
	out := make([]*Persona, len(r.personas))
	copy(out, r.personas)
	return out
}

// Names returns display names in fan-out order. Used when labeling
// responses inside judge and consensus prompts.
func (r *PersonaRegistry) Names() []string {
	names := make([]string, len(r.personas))
	for i, p := range r.personas {
		names[i] = p.Name
	}
	return names
}
