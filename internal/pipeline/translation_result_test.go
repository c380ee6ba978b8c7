package pipeline

import "testing"

func TestComputeStatus(t *testing.T) {
	cases := []struct {
		name string
		res  TranslationResult
		want TranslationStatus
	}{
		{name: "all_translated", res: TranslationResult{Documents: 2, Succeeded: 2}, want: TranslationStatusSuccess},
		{name: "empty_package", res: TranslationResult{}, want: TranslationStatusSuccess},
		{name: "fallback_document", res: TranslationResult{Documents: 2, Succeeded: 1, Fallback: 1}, want: TranslationStatusPartialSuccess},
		{name: "fallback_batches", res: TranslationResult{Documents: 1, Succeeded: 1, FallbackBatches: 3}, want: TranslationStatusPartialSuccess},
		{name: "nothing_translated", res: TranslationResult{Documents: 2, Fallback: 2}, want: TranslationStatusFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.res.computeStatus(); got != tc.want {
				t.Fatalf("computeStatus() = %q, want %q", got, tc.want)
			}
		})
	}
}
