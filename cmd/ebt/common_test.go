package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/oukeidos/ebt/internal/provider"
)

type keyStubs struct {
	promptCalls int
	keyCalls    int
	envCalls    int
	services    []string
}

func withKeyStubs(t *testing.T, terminal bool, promptVal string, keychainVal string, envVal string) *keyStubs {
	t.Helper()
	stubs := &keyStubs{}

	prevIsTerminal := isTerminal
	prevPrompt := promptForKey
	prevGetKey := getKey
	prevGetEnv := getEnvKey
	t.Cleanup(func() {
		isTerminal = prevIsTerminal
		promptForKey = prevPrompt
		getKey = prevGetKey
		getEnvKey = prevGetEnv
	})

	isTerminal = func(_ int) bool { return terminal }
	promptForKey = func(_ string) (string, error) {
		stubs.promptCalls++
		return promptVal, nil
	}
	getKey = func(service string, _ bool) (string, string) {
		stubs.keyCalls++
		stubs.services = append(stubs.services, service)
		if keychainVal == "" {
			return "", ""
		}
		return keychainVal, "Keychain"
	}
	getEnvKey = func(_ string) (string, bool) {
		stubs.envCalls++
		if envVal == "" {
			return "", false
		}
		return envVal, true
	}
	return stubs
}

func TestResolveAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		terminal   bool
		prompt     string
		keychain   string
		env        string
		allowEnv   bool
		envOnly    bool
		wantKey    string
		wantSource string
		wantErr    bool
		check      func(t *testing.T, s *keyStubs)
	}{
		{
			name: "keychain_first", terminal: true, keychain: "keychain-key", env: "env-key", allowEnv: true,
			wantKey: "keychain-key", wantSource: "Keychain",
			check: func(t *testing.T, s *keyStubs) {
				if s.envCalls != 0 {
					t.Fatalf("expected no env calls, got %d", s.envCalls)
				}
			},
		},
		{
			name: "env_when_allowed", env: "env-key", allowEnv: true,
			wantKey: "env-key", wantSource: "Environment Variable",
		},
		{
			name: "env_disabled", env: "env-key", wantErr: true,
			check: func(t *testing.T, s *keyStubs) {
				if s.envCalls != 0 {
					t.Fatalf("expected no env calls, got %d", s.envCalls)
				}
			},
		},
		{
			name: "non_interactive", wantErr: true,
			check: func(t *testing.T, s *keyStubs) {
				if s.promptCalls != 0 {
					t.Fatalf("expected no prompt, got %d", s.promptCalls)
				}
			},
		},
		{
			name: "env_only", prompt: "prompt-key", keychain: "keychain-key", env: "env-key", envOnly: true,
			wantKey: "env-key", wantSource: "Environment Variable",
			check: func(t *testing.T, s *keyStubs) {
				if s.promptCalls != 0 || s.keyCalls != 0 {
					t.Fatalf("expected no prompt/keychain calls, got prompt=%d keychain=%d", s.promptCalls, s.keyCalls)
				}
			},
		},
		{
			name: "env_only_missing", keychain: "keychain-key", envOnly: true, wantErr: true,
		},
		{
			name: "prompt_fallback", terminal: true, prompt: " prompt-key ",
			wantKey: "prompt-key", wantSource: "Terminal Prompt",
			check: func(t *testing.T, s *keyStubs) {
				if s.keyCalls == 0 {
					t.Fatalf("expected keychain lookup before prompt")
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubs := withKeyStubs(t, tt.terminal, tt.prompt, tt.keychain, tt.env)
			key, source, err := resolveAPIKey("gemini", tt.allowEnv, tt.envOnly)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got key=%q source=%q", key, source)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if key != tt.wantKey || source != tt.wantSource {
					t.Fatalf("got key=%q source=%q, want key=%q source=%q", key, source, tt.wantKey, tt.wantSource)
				}
			}
			if tt.check != nil {
				tt.check(t, stubs)
			}
		})
	}
}

func TestResolveAPIKey_UsesProviderService(t *testing.T) {
	stubs := withKeyStubs(t, false, "", "openai-key", "")
	if _, _, err := resolveAPIKey("openai", false, false); err != nil {
		t.Fatal(err)
	}
	if len(stubs.services) != 1 || stubs.services[0] != "openai" {
		t.Fatalf("keychain queried for %v", stubs.services)
	}
}

func TestPrintUsageStats(t *testing.T) {
	var buf bytes.Buffer
	usage := provider.Usage{PromptTokenCount: 1_000_000, CandidatesTokenCount: 1_000_000, TotalTokenCount: 2_000_000}
	printUsageStats(&buf, usage, time.Second, "gemini", "gemini-2.0-flash")
	out := buf.String()
	if !strings.Contains(out, "Tokens: In=1000000, Out=1000000, Total=2000000") {
		t.Fatalf("missing token line:\n%s", out)
	}
	if !strings.Contains(out, "Estimated Cost: $0.50000 (Reasoning Tokens: 0)") {
		t.Fatalf("unexpected cost line:\n%s", out)
	}

	buf.Reset()
	printUsageStats(&buf, provider.Usage{}, time.Second, "openai", "gpt-4.1")
	if strings.Contains(buf.String(), "Estimated Cost") {
		t.Fatalf("cost printed without usage:\n%s", buf.String())
	}
}
