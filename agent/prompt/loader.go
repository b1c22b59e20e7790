package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	contractx "github.com/tanpawarit/semilla-assistant/agent/contract"
)

//go:embed template/system.txt
var systemRaw string

// PromptSet holds loaded prompt content.
type PromptSet struct {
	System string
}

// LoadPromptSet returns the embedded prompts, trimmed.
func LoadPromptSet() PromptSet {
	return PromptSet{
		System: strings.TrimSpace(systemRaw),
	}
}

// LoadPromptSetFrom overrides the embedded system prompt with a file when
// path is set.
func LoadPromptSetFrom(path string) (PromptSet, error) {
	set := LoadPromptSet()
	path = strings.TrimSpace(path)
	if path == "" {
		return set, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return PromptSet{}, fmt.Errorf("read system prompt: %w", err)
	}
	system := strings.TrimSpace(string(raw))
	if system == "" {
		return PromptSet{}, fmt.Errorf("%w: %s is empty", contractx.ErrPromptMissing, path)
	}
	set.System = system
	return set, nil
}
