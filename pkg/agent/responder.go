// PiBear - LINE companion bot with memory and scheduled pushes
// License: MIT
//
// Copyright (c) 2026 PiBear contributors

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dotsetgreg/pibear/pkg/logger"
	"github.com/dotsetgreg/pibear/pkg/memory"
	"github.com/dotsetgreg/pibear/pkg/providers"
	"github.com/dotsetgreg/pibear/pkg/utils"
)

const (
	ReplyEmpty   = "😅 抱歉，皮熊想不出話來...可以再問一次嗎？"
	ReplyFailure = "❌ 無法取得 LLM 回覆，請稍後再試。"
)

// Conversation is the memory the responder reads through the prompt builder
// and writes after a successful generation.
type Conversation interface {
	ContextSource
	Append(userID, role, content string) error
}

// Responder always returns user-presentable text. Memory is only updated when
// the backend produced a well-formed reply.
type Responder struct {
	prompts   *PromptBuilder
	generator providers.Generator
	memory    Conversation
}

func NewResponder(personaPath string, mem Conversation, gen providers.Generator) *Responder {
	return &Responder{
		prompts:   NewPromptBuilder(personaPath, mem),
		generator: gen,
		memory:    mem,
	}
}

func (r *Responder) Respond(ctx context.Context, userID, input string) string {
	prompt, err := r.prompts.Build(userID, input)
	if err != nil {
		logger.ErrorCF("agent", "Failed to build prompt", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return ReplyFailure
	}

	logger.DebugCF("agent", "Generating reply", map[string]interface{}{
		"user_id":  userID,
		"backend":  r.generator.DisplayName(),
		"prompt":   utils.Truncate(prompt, 120),
		"prompt_n": len(prompt),
	})

	text, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		var backendErr *providers.BackendError
		if errors.As(err, &backendErr) {
			logger.WarnCF("agent", "Backend returned an error payload", map[string]interface{}{
				"user_id": userID,
				"backend": backendErr.Backend,
				"error":   backendErr.Message,
			})
			return fmt.Sprintf("⚠️ %s 錯誤：%s", backendErr.Backend, backendErr.Message)
		}
		logger.ErrorCF("agent", "Generation failed", map[string]interface{}{
			"user_id": userID,
			"backend": r.generator.DisplayName(),
			"error":   err.Error(),
		})
		return ReplyFailure
	}

	reply := strings.TrimSpace(text)
	if reply == "" {
		reply = ReplyEmpty
	}

	if err := r.memory.Append(userID, memory.RoleUser, input); err != nil {
		logger.ErrorCF("agent", "Failed to store user turn", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
	if err := r.memory.Append(userID, memory.RoleAssistant, reply); err != nil {
		logger.ErrorCF("agent", "Failed to store reply", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
	return reply
}
