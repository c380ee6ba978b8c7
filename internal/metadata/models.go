package metadata

type GeminiModel struct {
	ID                      string
	Label                   string
	InputPerMillion         float64
	OutputPerMillion        float64
	ReasoningBilledAsOutput bool
}

type OpenAIModel struct {
	ID               string
	Label            string
	InputPerMillion  float64
	OutputPerMillion float64
}

var GeminiModels = []GeminiModel{
	{
		ID:                      "gemini-2.0-flash",
		Label:                   "Gemini 2.0 Flash",
		InputPerMillion:         0.10,
		OutputPerMillion:        0.40,
		ReasoningBilledAsOutput: false,
	},
	{
		ID:                      "gemini-2.5-flash",
		Label:                   "Gemini 2.5 Flash",
		InputPerMillion:         0.30,
		OutputPerMillion:        2.50,
		ReasoningBilledAsOutput: true,
	},
	{
		ID:                      "gemini-2.5-pro",
		Label:                   "Gemini 2.5 Pro",
		InputPerMillion:         1.25,
		OutputPerMillion:        10.00,
		ReasoningBilledAsOutput: true,
	},
	{
		ID:                      "gemini-3-flash-preview",
		Label:                   "Gemini 3 Flash (preview)",
		InputPerMillion:         0.50,
		OutputPerMillion:        3.00,
		ReasoningBilledAsOutput: true,
	},
	{
		ID:                      "gemini-3-pro-preview",
		Label:                   "Gemini 3 Pro (preview)",
		InputPerMillion:         2.00,
		OutputPerMillion:        12.00,
		ReasoningBilledAsOutput: true,
	},
}

var OpenAIModels = []OpenAIModel{
	{
		ID:               "gpt-4.1-mini",
		Label:            "GPT-4.1 mini",
		InputPerMillion:  0.40,
		OutputPerMillion: 1.60,
	},
	{
		ID:               "gpt-4.1",
		Label:            "GPT-4.1",
		InputPerMillion:  2.00,
		OutputPerMillion: 8.00,
	},
	{
		ID:               "gpt-5.2",
		Label:            "GPT-5.2",
		InputPerMillion:  1.75,
		OutputPerMillion: 14.00,
	},
}

const (
	DefaultOpenAIInputPerMillion  = 2.50
	DefaultOpenAIOutputPerMillion = 10.00
	DefaultGeminiInputPerMillion  = 2.00
	DefaultGeminiOutputPerMillion = 12.00
)

// ModelIDs lists the priced model IDs of provider.
func ModelIDs(provider string) []string {
	var ids []string
	if provider == "openai" {
		for _, m := range OpenAIModels {
			ids = append(ids, m.ID)
		}
		return ids
	}
	for _, m := range GeminiModels {
		ids = append(ids, m.ID)
	}
	return ids
}

func GeminiPricing(modelID string) (GeminiModel, bool) {
	for _, m := range GeminiModels {
		if m.ID == modelID {
			return m, true
		}
	}
	return GeminiModel{
		ID:                      "default",
		Label:                   "Default Gemini",
		InputPerMillion:         DefaultGeminiInputPerMillion,
		OutputPerMillion:        DefaultGeminiOutputPerMillion,
		ReasoningBilledAsOutput: true,
	}, false
}

func OpenAIPricing(modelID string) (OpenAIModel, bool) {
	for _, m := range OpenAIModels {
		if m.ID == modelID {
			return m, true
		}
	}
	return OpenAIModel{
		ID:               "default",
		Label:            "Default OpenAI",
		InputPerMillion:  DefaultOpenAIInputPerMillion,
		OutputPerMillion: DefaultOpenAIOutputPerMillion,
	}, false
}

// EstimateCost returns the USD cost of a token count for the given provider
// and model. known is false when default pricing was used.
func EstimateCost(provider, modelID string, promptTokens, outputTokens int) (cost float64, known bool) {
	var in, out float64
	switch provider {
	case "openai":
		m, ok := OpenAIPricing(modelID)
		in, out, known = m.InputPerMillion, m.OutputPerMillion, ok
	default:
		m, ok := GeminiPricing(modelID)
		in, out, known = m.InputPerMillion, m.OutputPerMillion, ok
	}
	cost = float64(promptTokens)/1e6*in + float64(outputTokens)/1e6*out
	return cost, known
}
