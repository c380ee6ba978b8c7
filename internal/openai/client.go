package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oukeidos/ebt/internal/apperrors"
	"github.com/oukeidos/ebt/internal/httpclient"
	"github.com/oukeidos/ebt/internal/provider"
)

// RequestData represents the request body for OpenAI API
type RequestData struct {
	Model           string       `json:"model"`
	Instructions    string       `json:"instructions,omitempty"`
	Input           []InputItem  `json:"input"`
	Text            *TextOptions `json:"text,omitempty"`
	MaxOutputTokens int          `json:"max_output_tokens,omitempty"`
	Temperature     *float32     `json:"temperature,omitempty"`
	TopP            *float32     `json:"top_p,omitempty"`
}

type TextOptions struct {
	Format *ResponseFormat `json:"format,omitempty"`
}

type InputItem struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ResponseData represents the simplified response body from OpenAI Responses API
type ResponseData struct {
	ID                string             `json:"id"`
	Status            string             `json:"status"`
	IncompleteDetails *IncompleteDetails `json:"incomplete_details,omitempty"`
	Output            []OutputItem       `json:"output"`
	Usage             Usage              `json:"usage"`
}

type IncompleteDetails struct {
	Reason string `json:"reason"`
}

type OutputItem struct {
	Type    string            `json:"type"`
	Status  string            `json:"status,omitempty"`
	Role    string            `json:"role,omitempty"`
	Content []ResponseContent `json:"content,omitempty"`
}

type ResponseContent struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

type ResponseFormat struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`   // Required for Responses API structured outputs
	Strict bool   `json:"strict,omitempty"` // Required for Responses API structured outputs
	Schema any    `json:"schema,omitempty"` // Required for Responses API structured outputs
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type errorEnvelope struct {
	Error errorDetails `json:"error"`
}

type errorDetails struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"`
}

func (e errorDetails) codeString() string {
	if e.Code == nil {
		return ""
	}
	return fmt.Sprint(e.Code)
}

type Client struct {
	apiKey       string
	model        string
	baseURL      string
	instructions string
	temperature  *float32
	topP         *float32
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.openai.com/v1",
	}
}

// GetModelID returns the configured model identifier.
func (c *Client) GetModelID() string {
	return c.model
}

// SetSystemInstruction sets the instructions sent with every request.
func (c *Client) SetSystemInstruction(prompt string) {
	c.instructions = prompt
}

// SetSampling sets temperature and top_p. Zero values keep the API defaults.
func (c *Client) SetSampling(temperature, topP float32) {
	if temperature > 0 {
		c.temperature = &temperature
	}
	if topP > 0 {
		c.topP = &topP
	}
}

var _ provider.Translator = (*Client)(nil)

// Translate sends one batch through the Responses API with a strict JSON schema.
func (c *Client) Translate(ctx context.Context, request provider.Request) (*provider.Response, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	resp, err := c.Generate(ctx, RequestData{
		Instructions: c.instructions,
		Input: []InputItem{
			{Type: "message", Role: "user", Content: string(payload)},
		},
		Text: &TextOptions{Format: &ResponseFormat{
			Type:   "json_schema",
			Name:   "translation",
			Strict: true,
			Schema: provider.ResponseSchema(),
		}},
		Temperature: c.temperature,
		TopP:        c.topP,
	})
	if err != nil {
		return nil, err
	}

	text, err := extractOutputText(resp)
	if err != nil {
		return nil, err
	}
	var out provider.Response
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, apperrors.New(apperrors.KindValidation, "OpenAI response format was invalid.", fmt.Errorf("failed to decode output: %w", err))
	}
	if strings.TrimSpace(out.TranslatedXHTML) == "" {
		return nil, apperrors.Validation(fmt.Errorf("response field %q is empty", provider.ResponseField))
	}
	out.Usage = provider.Usage{
		PromptTokenCount:     resp.Usage.InputTokens,
		CandidatesTokenCount: resp.Usage.OutputTokens,
		TotalTokenCount:      resp.Usage.TotalTokens,
	}
	return &out, nil
}

func extractOutputText(resp *ResponseData) (string, error) {
	if resp.IncompleteDetails != nil && resp.IncompleteDetails.Reason == "content_filter" {
		return "", apperrors.New(apperrors.KindSafety, "OpenAI stopped the response by content filter.",
			fmt.Errorf("response %s incomplete: %s", resp.ID, resp.IncompleteDetails.Reason))
	}
	var sb strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			switch c.Type {
			case "refusal":
				return "", apperrors.New(apperrors.KindSafety, "OpenAI refused the content.",
					fmt.Errorf("response %s refused", resp.ID))
			case "output_text":
				sb.WriteString(c.Text)
			}
		}
	}
	if sb.Len() == 0 {
		return "", apperrors.Validation(fmt.Errorf("no output text in response %s", resp.ID))
	}
	return sb.String(), nil
}

func (c *Client) Generate(ctx context.Context, req RequestData) (*ResponseData, error) {
	req.Model = c.model

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	status, body, err := httpclient.PostJSON(ctx, c.baseURL+"/responses", headers, req)
	if err != nil {
		return nil, apperrors.New(
			apperrors.KindTransient,
			"OpenAI request failed due to a temporary network/runtime error.",
			fmt.Errorf("request failed: %w", err),
		)
	}
	if status != http.StatusOK {
		return nil, classifyOpenAIError(status, http.StatusText(status), parseErrorDetails(body))
	}

	var result ResponseData
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperrors.New(
			apperrors.KindValidation,
			"OpenAI response format was invalid.",
			fmt.Errorf("failed to decode response: %w", err),
		)
	}

	slog.Debug("OpenAI API Response", "status", status, "usage_total", result.Usage.TotalTokens, "response_id", result.ID)

	return &result, nil
}

func parseErrorDetails(body []byte) errorDetails {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errorDetails{}
	}
	return envelope.Error
}

func classifyOpenAIError(statusCode int, status string, details errorDetails) error {
	code := details.codeString()
	cause := fmt.Errorf("openai status=%s type=%s code=%s message=%s", status, details.Type, code, details.Message)

	switch statusCode {
	case http.StatusTooManyRequests:
		return apperrors.New(
			apperrors.KindRateLimit,
			"OpenAI API rate limit exceeded (429): please try again later.",
			cause,
		)
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.New(
			apperrors.KindAuth,
			fmt.Sprintf("OpenAI API authentication/authorization failed (%d): please verify your API key and permissions.", statusCode),
			cause,
		)
	case http.StatusBadRequest:
		if isContentPolicy(details) {
			return apperrors.New(
				apperrors.KindSafety,
				"OpenAI rejected the content under its usage policy (400).",
				cause,
			)
		}
		return apperrors.New(
			apperrors.KindBadRequest,
			fmt.Sprintf("OpenAI API error (%d): %s", statusCode, status),
			cause,
		)
	case http.StatusNotFound:
		if isOpenAIModelNotFound(details) {
			return apperrors.New(
				apperrors.KindBadRequest,
				"The model does not exist or you do not have access to it.",
				cause,
			)
		}
		return apperrors.New(
			apperrors.KindBadRequest,
			"OpenAI resource not found (404).",
			cause,
		)
	default:
		if statusCode >= 500 {
			return apperrors.New(
				apperrors.KindTransient,
				fmt.Sprintf("OpenAI server error (%d): please try again later.", statusCode),
				cause,
			)
		}
		return apperrors.New(
			apperrors.KindBadRequest,
			fmt.Sprintf("OpenAI API error (%d): %s", statusCode, status),
			cause,
		)
	}
}

func isContentPolicy(details errorDetails) bool {
	needle := strings.ToLower(details.codeString() + " " + details.Type)
	return strings.Contains(needle, "content_policy_violation") || strings.Contains(needle, "content_filter")
}

func isOpenAIModelNotFound(details errorDetails) bool {
	needle := strings.ToLower(details.codeString() + " " + details.Type + " " + details.Message)
	if strings.Contains(needle, "model_not_found") {
		return true
	}
	return strings.Contains(needle, "does not exist or you do not have access to it")
}
