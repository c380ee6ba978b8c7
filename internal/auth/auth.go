// Package auth stores provider API keys in the OS keychain, with an optional
// environment variable fallback.
package auth

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const keyringService = "ebt"

// Key sources reported by GetKey.
const (
	SourceKeychain = "Keychain"
	SourceEnv      = "Environment Variable"
)

type credential struct {
	account string
	envVar  string
}

var credentials = map[string]credential{
	"gemini": {account: "gemini-api-key", envVar: "GEMINI_API_KEY"},
	"openai": {account: "openai-api-key", envVar: "OPENAI_API_KEY"},
}

// Services lists the providers a key can be stored for.
func Services() []string {
	out := make([]string, 0, len(credentials))
	for name := range credentials {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// EnvVar returns the environment variable consulted for service.
func EnvVar(service string) string {
	return lookup(service).envVar
}

// Unknown names resolve to gemini, the default provider.
func lookup(service string) credential {
	if c, ok := credentials[strings.ToLower(service)]; ok {
		return c
	}
	return credentials["gemini"]
}

// GetKey returns the key for service and where it came from. The keychain
// wins over the environment; the environment is read only when allowEnv.
func GetKey(service string, allowEnv bool) (string, string) {
	c := lookup(service)
	if key, err := keyring.Get(keyringService, c.account); err == nil && strings.TrimSpace(key) != "" {
		return strings.TrimSpace(key), SourceKeychain
	}
	if allowEnv {
		if key, ok := GetEnvKey(service); ok {
			return key, SourceEnv
		}
	}
	return "", ""
}

// GetEnvKey retrieves the key from the environment only.
func GetEnvKey(service string) (string, bool) {
	key := strings.TrimSpace(os.Getenv(lookup(service).envVar))
	return key, key != ""
}

func SaveKey(service, key string) error {
	return keyring.Set(keyringService, lookup(service).account, strings.TrimSpace(key))
}

func DeleteKey(service string) error {
	return keyring.Delete(keyringService, lookup(service).account)
}

// GetStatus reports whether the keychain holds a key for service.
func GetStatus(service string) bool {
	key, err := keyring.Get(keyringService, lookup(service).account)
	return err == nil && key != ""
}

// PromptForAPIKey reads a key from the terminal without echo.
func PromptForAPIKey(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
