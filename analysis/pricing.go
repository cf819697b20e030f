package analysis

import (
	"fmt"
	"strings"
)

// ModelPrice is a model's price in USD per million tokens.
type ModelPrice struct {
	ID          string  `json:"id" yaml:"id" koanf:"id"`
	Name        string  `json:"name" yaml:"name" koanf:"name"`
	InputPrice  float64 `json:"input_price" yaml:"input_price" koanf:"input_price"`
	OutputPrice float64 `json:"output_price" yaml:"output_price" koanf:"output_price"`
}

// Label renders the model for operator menus, e.g. "GPT-4.1 ($2/M tokens)".
func (m ModelPrice) Label() string {
	name := m.Name
	if name == "" {
		name = m.ID
	}
	return fmt.Sprintf("%s ($%s/M tokens)", name, trimFloat(m.InputPrice))
}

type PriceTable []ModelPrice

// DefaultPriceTable lists the models offered by default, most capable first.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		{ID: "anthropic/claude-3.7-sonnet", Name: "Claude 3.7 Sonnet", InputPrice: 3.00, OutputPrice: 15.00},
		{ID: "openai/gpt-4.1", Name: "GPT-4.1", InputPrice: 2.00, OutputPrice: 8.00},
		{ID: "google/gemini-2.5-pro-preview", Name: "Gemini 2.5 Pro Preview", InputPrice: 1.25, OutputPrice: 10},
		{ID: "openai/gpt-4.1-mini", Name: "GPT-4.1 Mini", InputPrice: 0.40, OutputPrice: 1.60},
		{ID: "meta-llama/llama-4-maverick", Name: "Llama 4 Maverick", InputPrice: 0.17, OutputPrice: 0.6},
		{ID: "google/gemini-2.5-flash-preview", Name: "Gemini 2.5 Flash Preview", InputPrice: 0.15, OutputPrice: 0.6},
		{ID: "openai/gpt-4.1-nano", Name: "GPT-4.1 Nano", InputPrice: 0.1, OutputPrice: 0.4},
		{ID: "google/gemini-2.0-flash-001", Name: "Gemini 2.0 Flash", InputPrice: 0.1, OutputPrice: 0.4},
		{ID: "qwen/qwen-turbo", Name: "Qwen Turbo", InputPrice: 0.05, OutputPrice: 0.2},
		{ID: "google/gemini-flash-1.5-8b", Name: "Gemini Flash 1.5", InputPrice: 0.038, OutputPrice: 0.15},
	}
}

// Lookup finds a model by exact id, falling back to the longest listed id that prefixes
// model (endpoints often echo a dated variant of the requested id).
func (t PriceTable) Lookup(model string) (ModelPrice, bool) {
	var best ModelPrice
	found := false
	for _, m := range t {
		if m.ID == model {
			return m, true
		}
		if strings.HasPrefix(model, m.ID) && len(m.ID) > len(best.ID) {
			best = m
			found = true
		}
	}
	return best, found
}

// Cost is a USD cost breakdown. Known is false when the model is not in the table.
type Cost struct {
	Input  float64 `json:"input_cost"`
	Output float64 `json:"output_cost"`
	Total  float64 `json:"total_cost"`
	Known  bool    `json:"known"`
}

func (t PriceTable) Cost(model string, u Usage) Cost {
	m, ok := t.Lookup(model)
	if !ok {
		return Cost{}
	}
	in := float64(u.PromptTokens) / 1e6 * m.InputPrice
	out := float64(u.CompletionTokens) / 1e6 * m.OutputPrice
	return Cost{Input: in, Output: out, Total: in + out, Known: true}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s
}
