package language

import (
	"fmt"
	"sort"
	"strings"

	xlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Language is a resolved target language.
type Language struct {
	Code string // canonical BCP 47 tag, used for xml:lang
	Name string // English display name, used in prompts
	Self string // name in the language itself
	Tag  xlang.Tag
}

// supportedCodes are the languages offered by `ebt list`. Any other valid
// BCP 47 tag is accepted as well.
var supportedCodes = []string{
	"af", "sq", "am", "ar", "hy", "az", "eu", "be", "bn", "bs", "bg", "ca",
	"zh-Hans", "zh-Hant", "hr", "cs", "da", "nl", "en", "eo", "et", "fil",
	"fi", "fr", "gl", "ka", "de", "el", "gu", "ha", "he", "hi", "hu", "is",
	"ig", "id", "ga", "it", "ja", "jv", "kn", "kk", "km", "ko", "ky", "lo",
	"la", "lv", "lt", "lb", "mk", "mg", "ms", "ml", "mt", "mi", "mr", "mn",
	"my", "ne", "no", "fa", "pl", "pt", "pt-BR", "pa", "ro", "ru", "sr",
	"sk", "sl", "so", "es", "sw", "sv", "tg", "ta", "te", "th", "tr", "uk",
	"ur", "uz", "vi", "cy", "xh", "yi", "yo", "zu",
}

// aliases keeps the codes accepted by earlier releases working.
var aliases = map[string]string{
	"zh": "zh-Hans",
	"iw": "he",
}

// Parse resolves a language code into a Language.
func Parse(code string) (Language, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Language{}, fmt.Errorf("language code is empty")
	}
	if alias, ok := aliases[code]; ok {
		code = alias
	}
	tag, err := xlang.Parse(code)
	if err != nil {
		return Language{}, fmt.Errorf("unsupported language %q: %w", code, err)
	}
	if tag == xlang.Und {
		return Language{}, fmt.Errorf("unsupported language %q", code)
	}
	return fromTag(tag), nil
}

// GetLanguage returns the language for code, or false when it cannot be parsed.
func GetLanguage(code string) (Language, bool) {
	lang, err := Parse(code)
	return lang, err == nil
}

func fromTag(tag xlang.Tag) Language {
	name := display.English.Tags().Name(tag)
	if name == "" {
		name = tag.String()
	}
	return Language{
		Code: tag.String(),
		Name: name,
		Self: display.Self.Name(tag),
		Tag:  tag,
	}
}

// Same reports whether two codes name the same language closely enough that
// translating between them is pointless.
func Same(a, b string) bool {
	la, errA := Parse(a)
	lb, errB := Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	m := xlang.NewMatcher([]xlang.Tag{la.Tag})
	_, _, conf := m.Match(lb.Tag)
	return conf == xlang.Exact || conf == xlang.High
}

// GetSupportedLanguages returns the listed languages sorted by Name and then Code.
func GetSupportedLanguages() []Language {
	entries := make([]Language, 0, len(supportedCodes))
	for _, code := range supportedCodes {
		entries = append(entries, fromTag(xlang.MustParse(code)))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Code < entries[j].Code
	})
	return entries
}
