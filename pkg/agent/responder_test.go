package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dotsetgreg/pibear/pkg/memory"
	"github.com/dotsetgreg/pibear/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptBuilder_ComposesPersonaContextAndInput(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.mem.Append("U1", memory.RoleUser, "早安"))
	require.NoError(t, f.mem.Append("U1", memory.RoleAssistant, "早安呀"))

	pb := NewPromptBuilder(filepath.Join(f.dir, "system_prompt.txt"), f.mem)
	prompt, err := pb.Build("U1", "今天好累")
	require.NoError(t, err)

	want := "你是皮熊。\n\n" +
		"📇 使用者個人檔案：\nname：小明\n與皮熊關係：好朋友\n" +
		"你：早安\n皮熊：早安呀" +
		"\n你：今天好累"
	assert.Equal(t, want, prompt)
}

func TestPromptBuilder_MissingPersona(t *testing.T) {
	pb := NewPromptBuilder(filepath.Join(t.TempDir(), "nope.txt"), nil)
	_, err := pb.Build("U1", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersonaUnavailable))
}

func TestRespond_SuccessUpdatesMemory(t *testing.T) {
	f := newFixture(t, 0)
	f.gen.reply = "  哈囉！ \n"

	got := f.loop.responder.Respond(context.Background(), "U2", "你好")
	assert.Equal(t, "哈囉！", got)

	history := f.mem.History("U2")
	require.Len(t, history, 2)
	assert.Equal(t, memory.RoleUser, history[0].Role)
	assert.Equal(t, "你好", history[0].Content)
	assert.Equal(t, memory.RoleAssistant, history[1].Role)
	assert.Equal(t, "哈囉！", history[1].Content)
}

func TestRespond_EmptyReplyStoresApology(t *testing.T) {
	f := newFixture(t, 0)
	f.gen.reply = "   "

	got := f.loop.responder.Respond(context.Background(), "U2", "你好")
	assert.Equal(t, ReplyEmpty, got)

	history := f.mem.History("U2")
	require.Len(t, history, 2)
	assert.Equal(t, ReplyEmpty, history[1].Content)
}

func TestRespond_BackendErrorLeavesMemoryUntouched(t *testing.T) {
	f := newFixture(t, 0)
	f.gen.err = &providers.BackendError{Backend: "Ollama", Message: "model not found"}

	got := f.loop.responder.Respond(context.Background(), "U2", "你好")
	assert.Equal(t, "⚠️ Ollama 錯誤：model not found", got)
	assert.Empty(t, f.mem.History("U2"))
}

func TestRespond_TransportFailureLeavesMemoryUntouched(t *testing.T) {
	f := newFixture(t, 0)
	f.gen.err = errors.New("connection refused")

	got := f.loop.responder.Respond(context.Background(), "U2", "你好")
	assert.Equal(t, ReplyFailure, got)
	assert.Empty(t, f.mem.History("U2"))
}

func TestRespond_MissingPersonaSkipsBackend(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, os.Remove(filepath.Join(f.dir, "system_prompt.txt")))

	got := f.loop.responder.Respond(context.Background(), "U2", "你好")
	assert.Equal(t, ReplyFailure, got)
	assert.Equal(t, 0, f.gen.calls())
	assert.Empty(t, f.mem.History("U2"))
}
