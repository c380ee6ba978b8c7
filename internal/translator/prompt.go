package translator

import (
	"fmt"
	"strings"

	"github.com/oukeidos/ebt/internal/provider"
)

// GetSystemPrompt generates a language-specific system prompt.
func GetSystemPrompt(targetName, instructions string) string {
	prompt := fmt.Sprintf(`You are a professional literary translator. Translate the provided book content into %s.

1. Input Structure:
- The input is provided in JSON format with 'context_before', 'items', and 'context_after'.
- 'items': The content you must translate, in reading order. Each item has an 'id' and a 'type'.
  - 'text' items carry a 'text' field.
  - 'image' items carry 'src' and 'alt'. Translate only the alt text.
- 'context_before' and 'context_after': Provided for context only. Do NOT translate them or include them in the output.

2. Output Structure:
- The output MUST be a JSON object with a single '%s' field holding an XHTML fragment.
- The fragment contains exactly one element per input item, in the same order.
  - A 'text' item becomes one <p> element containing only its translation.
  - An 'image' item becomes one <img/> element with the same 'src' and the translated 'alt'.
- Do not merge, split, drop or reorder items. Do not add headings, wrappers or comments.
- Escape '&', '<' and '>' inside text.
- Respond ONLY with the JSON object.

3. Rules:
- Maintain the original tone, register and formatting intent.
- Keep proper nouns consistent across items.
- Write ONLY the %s translation; do not include the source text.`, targetName, provider.ResponseField, targetName)

	if extra := strings.TrimSpace(instructions); extra != "" {
		prompt += "\n\n4. Additional Instructions:\n" + extra
	}
	return prompt
}
