package agent

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrPersonaUnavailable = errors.New("agent: persona prompt unavailable")

// ContextSource renders the profile block and conversation history for a user.
type ContextSource interface {
	BuildContext(userID string) string
}

// PromptBuilder composes the persona, the user's memory and the new input
// into one prompt. The persona file is read on every build so edits apply
// without a restart.
type PromptBuilder struct {
	personaPath string
	memory      ContextSource
}

func NewPromptBuilder(personaPath string, memory ContextSource) *PromptBuilder {
	return &PromptBuilder{personaPath: personaPath, memory: memory}
}

func (pb *PromptBuilder) Build(userID, input string) (string, error) {
	raw, err := os.ReadFile(pb.personaPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersonaUnavailable, err)
	}
	persona := strings.TrimSpace(string(raw))

	var context string
	if pb.memory != nil {
		context = pb.memory.BuildContext(userID)
	}
	return persona + "\n\n" + context + "\n你：" + input, nil
}
