package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/oukeidos/ebt/internal/apperrors"
	"github.com/oukeidos/ebt/internal/httpclient"
	"github.com/oukeidos/ebt/internal/provider"
	"google.golang.org/api/option"
)

// Client handles communication with the Gemini API.
type Client struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// Options tune sampling for the generative model. Zero values keep the API defaults.
type Options struct {
	Temperature float32
	TopP        float32
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, apiKey string, modelName string, opts Options) (*Client, error) {
	// Note: We avoid using option.WithHTTPClient because it interferes with the genai library's
	// internal header injection for API keys, causing 403 errors.
	// Instead, we enforce timeouts via context in the Translate method.
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = responseSchema()
	if opts.Temperature > 0 {
		model.SetTemperature(opts.Temperature)
	}
	if opts.TopP > 0 {
		model.SetTopP(opts.TopP)
	}

	return &Client{
		client:  client,
		model:   model,
		timeout: httpclient.DefaultTimeout,
	}, nil
}

// responseSchema mirrors provider.ResponseSchema in genai terms.
func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			provider.ResponseField: {
				Type:        genai.TypeString,
				Description: "XHTML body fragment with the translated items in input order",
			},
		},
		Required: []string{provider.ResponseField},
	}
}

// Close closes the underlying genai client.
func (c *Client) Close() error {
	return c.client.Close()
}

// SetTimeout overrides the per-request deadline.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// SetSystemInstruction sets the system prompt for the model.
func (c *Client) SetSystemInstruction(prompt string) {
	c.model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompt)},
	}
}

// Ensure Client implements provider.Translator
var _ provider.Translator = (*Client)(nil)

// Translate sends a request to Gemini and returns the translated fragment.
func (c *Client) Translate(ctx context.Context, request provider.Request) (*provider.Response, error) {
	// Enforce a deadline to prevent indefinite hangs, since we are not using a custom HTTP client with timeout.
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	requestJSON, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.model.GenerateContent(ctx, genai.Text(string(requestJSON)))
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	text, err := extractResponseText(resp)
	if err != nil {
		return nil, err
	}
	responseData, err := decodeResponse(text)
	if err != nil {
		return nil, apperrors.Validation(err)
	}

	if resp.UsageMetadata != nil {
		responseData.Usage = provider.Usage{
			PromptTokenCount:     int(resp.UsageMetadata.PromptTokenCount),
			CandidatesTokenCount: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokenCount:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return responseData, nil
}

// decodeResponse reads the single-field reply. A bare JSON string is accepted too.
func decodeResponse(text string) (*provider.Response, error) {
	var responseData provider.Response
	if err := json.Unmarshal([]byte(text), &responseData); err != nil {
		var bare string
		if err2 := json.Unmarshal([]byte(text), &bare); err2 != nil {
			// Omit the raw text: it may be large and is logged elsewhere at debug level.
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		responseData.TranslatedXHTML = bare
	}
	if strings.TrimSpace(responseData.TranslatedXHTML) == "" {
		return nil, fmt.Errorf("response field %q is empty", provider.ResponseField)
	}
	return &responseData, nil
}

func extractResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", apperrors.Validation(fmt.Errorf("no response received from Gemini"))
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", apperrors.New(apperrors.KindSafety, "Gemini blocked the prompt.",
			fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return "", apperrors.Validation(fmt.Errorf("no candidates returned from Gemini"))
	}
	for _, candidate := range resp.Candidates {
		if candidate.FinishReason == genai.FinishReasonSafety {
			return "", apperrors.New(apperrors.KindSafety, "Gemini stopped the response for safety reasons.",
				fmt.Errorf("candidate finished with %s", candidate.FinishReason))
		}
		if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
			// Newer stop reasons (blocklist, prohibited content, SPII) have
			// no constant in this SDK and arrive above FinishReasonOther.
			if candidate.FinishReason > genai.FinishReasonOther {
				return "", apperrors.New(apperrors.KindSafety, "Gemini stopped the response for content policy reasons.",
					fmt.Errorf("candidate finished with %s", candidate.FinishReason))
			}
			continue
		}
		var combined string
		for _, part := range candidate.Content.Parts {
			text, ok := part.(genai.Text)
			if !ok {
				continue
			}
			combined += string(text)
		}
		if combined != "" {
			return combined, nil
		}
	}
	return "", apperrors.Validation(fmt.Errorf("no text parts found in Gemini response"))
}
