package language

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		code string
		want string
		name string
	}{
		{"ko", "ko", "Korean"},
		{" ja ", "ja", "Japanese"},
		{"zh", "zh-Hans", "Simplified Chinese"},
		{"iw", "he", "Hebrew"},
		{"pt-BR", "pt-BR", "Brazilian Portuguese"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			lang, err := Parse(tt.code)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.code, err)
			}
			if lang.Code != tt.want {
				t.Errorf("Code = %q, want %q", lang.Code, tt.want)
			}
			if lang.Name != tt.name {
				t.Errorf("Name = %q, want %q", lang.Name, tt.name)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, code := range []string{"", "und", "not a tag", "xx-!!"} {
		if _, err := Parse(code); err == nil {
			t.Errorf("Parse(%q) expected error", code)
		}
	}
}

func TestSame(t *testing.T) {
	if !Same("en", "en-US") {
		t.Error("en and en-US should match")
	}
	if Same("en", "ko") {
		t.Error("en and ko should not match")
	}
	if Same("en", "") {
		t.Error("empty code should not match")
	}
}

func TestGetSupportedLanguagesSorted(t *testing.T) {
	entries := GetSupportedLanguages()
	if len(entries) != len(supportedCodes) {
		t.Fatalf("expected %d entries, got %d", len(supportedCodes), len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Name > entries[i].Name {
			t.Fatalf("entries not sorted: %q before %q", entries[i-1].Name, entries[i].Name)
		}
	}
}
