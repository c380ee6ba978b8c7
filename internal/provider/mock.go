package provider

import "context"

// MockClient for testing
type MockClient struct {
	Response              *Response
	Error                 error
	LastSystemInstruction string
	LastRequest           Request
}

func (m *MockClient) Translate(ctx context.Context, request Request) (*Response, error) {
	m.LastRequest = request
	return m.Response, m.Error
}

func (m *MockClient) SetSystemInstruction(prompt string) {
	m.LastSystemInstruction = prompt
}
