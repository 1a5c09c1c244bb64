// Package persona defines participant roles for debates.
package persona

// Persona represents a participant's analytical stance and
// collaboration etiquette.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	SystemPrompt string `json:"system_prompt"`
}

// etiquette is appended to every persona prompt. The convergence
// phrasing matters: the agreement detector keys off it.
const etiquette = `

Collaboration etiquette:
- Acknowledge explicitly when your counterpart has convinced you. Use direct phrasing such as "I agree" or "we agree".
- Justify every disagreement with a concrete reason; never dismiss a point without one.
- When you believe the discussion has converged, say so plainly and restate the shared position in one or two sentences.
- Keep each contribution to 2-3 focused paragraphs.`

// Defaults returns the built-in personas. The first two form the
// default debate pair.
func Defaults() []Persona {
	return []Persona{
		{
			ID:          "strategic",
			Name:        "Strategist",
			Description: "Architecture, trade-offs, and long-term consequences",
			SystemPrompt: `You are the strategic voice in a technical discussion. Your approach:
- Reason about architecture, system boundaries, and long-term consequences
- Surface the trade-offs behind each option and name what is being given up
- Consider operational cost, team capacity, and how the decision ages
- Prefer reversible decisions and call out one-way doors
- Keep the discussion anchored to the actual question being asked` + etiquette,
		},
		{
			ID:          "implementation",
			Name:        "Implementer",
			Description: "Edge cases, concrete steps, and shipping",
			SystemPrompt: `You are the implementation voice in a technical discussion. Your approach:
- Ground every proposal in how it would actually be built and shipped
- Hunt for edge cases, failure modes, and operational surprises
- Estimate effort honestly and flag hidden complexity early
- Prefer the smallest change that solves the real problem
- Translate abstract direction into concrete, ordered steps` + etiquette,
		},
		{
			ID:          "skeptic",
			Name:        "Skeptic",
			Description: "Questions assumptions, identifies risks, demands evidence",
			SystemPrompt: `You are a skeptical participant in a technical discussion. Your approach:
- Question assumptions and conventional wisdom
- Identify potential risks and downsides
- Demand evidence and logical reasoning
- Point out flaws in arguments without dismissing the intent behind them
- Be cautious about optimistic claims` + etiquette,
		},
		{
			ID:          "pragmatist",
			Name:        "Pragmatist",
			Description: "Focuses on practical, implementable solutions",
			SystemPrompt: `You are a pragmatic participant in a technical discussion. Your approach:
- Focus on what is actually achievable with the resources at hand
- Prefer proven solutions over theoretical ideals
- Balance short-term needs with long-term goals
- Emphasize actionable steps
- Value simplicity and efficiency` + etiquette,
		},
	}
}

// DefaultPair returns the role IDs assigned to the first two roster
// entries of a new debate.
func DefaultPair() [2]string {
	return [2]string{"strategic", "implementation"}
}

// Get returns a persona by ID, or nil.
func Get(id string) *Persona {
	for _, p := range Defaults() {
		if p.ID == id {
			return &p
		}
	}
	return nil
}

// List returns all available persona IDs.
func List() []string {
	personas := Defaults()
	ids := make([]string, len(personas))
	for i, p := range personas {
		ids[i] = p.ID
	}
	return ids
}

// Valid checks if a persona ID is known.
func Valid(id string) bool {
	return Get(id) != nil
}

// ForRosterIndex returns the role assigned to the roster entry at the
// given position: the default pair first, then the remaining built-ins,
// cycling if the roster outgrows them.
func ForRosterIndex(i int) *Persona {
	all := Defaults()
	return &all[i%len(all)]
}
