package context

import "testing"

func textMsg(role, text string) Message {
	return Message{Role: role, Blocks: []Block{{Kind: BlockText, Text: text}}}
}

func TestAnalyzeConversationStateActiveLoop(t *testing.T) {
	messages := []Message{
		textMsg("user", "run"),
		{Role: "assistant", Blocks: []Block{{Kind: BlockToolUse, ToolName: "shell"}}},
		{Role: "user", Blocks: []Block{{Kind: BlockToolResult, Text: "ok"}}},
	}
	state := AnalyzeConversationState(messages)
	if !state.InToolLoop || state.InterruptedTool {
		t.Fatalf("expected active tool loop, got %+v", state)
	}
}

func TestAnalyzeConversationStateInterrupted(t *testing.T) {
	messages := []Message{
		textMsg("user", "run"),
		{Role: "assistant", Blocks: []Block{{Kind: BlockToolUse, ToolName: "shell"}}},
		textMsg("user", "nevermind"),
	}
	state := AnalyzeConversationState(messages)
	if !state.InterruptedTool || state.InToolLoop {
		t.Fatalf("expected interrupted tool, got %+v", state)
	}
}

func TestCloseToolLoopForThinkingBrokenLoopRecovery(t *testing.T) {
	messages := []Message{
		textMsg("user", "run"),
		{Role: "assistant", Blocks: []Block{
			{Kind: BlockToolUse, ToolName: "shell"},
			{Kind: BlockThinking, Thinking: "...", Signature: "short"},
		}},
		{Role: "user", Blocks: []Block{{Kind: BlockToolResult, Text: "ok"}}},
	}
	out := CloseToolLoopForThinking(messages)
	if len(out) != len(messages)+2 {
		t.Fatalf("expected 2 synthetic messages appended, got %d total", len(out))
	}
	if out[len(out)-2].Role != "assistant" || out[len(out)-1].Role != "user" {
		t.Fatalf("unexpected synthetic message roles: %+v", out[len(out)-2:])
	}
}

func TestFilterInvalidThinkingBlocksLengthBoundary(t *testing.T) {
	reg := NewSignatureFamilyRegistry()
	sig49 := make([]byte, 49)
	sig50 := make([]byte, 50)
	for i := range sig49 {
		sig49[i] = 'a'
	}
	for i := range sig50 {
		sig50[i] = 'b'
	}
	reg.Observe(string(sig50), "gemini-3")

	messages := []Message{
		{Role: "assistant", Blocks: []Block{
			{Kind: BlockThinking, Thinking: "x", Signature: string(sig49)},
			{Kind: BlockThinking, Thinking: "y", Signature: string(sig50)},
		}},
	}
	out := FilterInvalidThinkingBlocks(messages, "gemini-3", reg)
	if len(out[0].Blocks) != 1 {
		t.Fatalf("expected exactly one surviving block, got %d", len(out[0].Blocks))
	}
	if out[0].Blocks[0].Signature != string(sig50) {
		t.Fatalf("wrong block survived filtering")
	}
}

func TestFilterInvalidThinkingBlocksEmptyGetsPlaceholder(t *testing.T) {
	reg := NewSignatureFamilyRegistry()
	messages := []Message{
		{Role: "assistant", Blocks: []Block{
			{Kind: BlockThinking, Thinking: "x", Signature: "toolongbutneverobserved0000000000000000000000000"},
		}},
	}
	out := FilterInvalidThinkingBlocks(messages, "gemini-3", reg)
	if len(out[0].Blocks) != 1 || out[0].Blocks[0].Kind != BlockText || out[0].Blocks[0].Text != "." {
		t.Fatalf("expected placeholder text block, got %+v", out[0].Blocks)
	}
}

func TestEstimateTokensAsciiVsUnicode(t *testing.T) {
	ascii := EstimateTokens("aaaa") // 4 ascii chars -> ceil(4/4)=1, margin -> ceil(1*1.15)=2
	if ascii <= 0 {
		t.Fatalf("expected positive estimate, got %d", ascii)
	}
	unicode := EstimateTokens("你好")
	if unicode <= 0 {
		t.Fatalf("expected positive unicode estimate, got %d", unicode)
	}
}

func TestTrimToolRoundsNeverSplitsRound(t *testing.T) {
	var messages []Message
	for i := 0; i < 5; i++ {
		messages = append(messages,
			Message{Role: "assistant", Blocks: []Block{{Kind: BlockToolUse}}},
			Message{Role: "user", Blocks: []Block{{Kind: BlockToolResult}}},
		)
	}
	trimmed := TrimToolRounds(messages, 2)
	rounds := IdentifyToolRounds(trimmed)
	if len(rounds) != 2 {
		t.Fatalf("expected 2 rounds remaining, got %d", len(rounds))
	}
}

func TestPurifyHistorySoftProtectsTail(t *testing.T) {
	messages := []Message{
		{Role: "assistant", Blocks: []Block{{Kind: BlockThinking, Thinking: "old", Signature: "s"}}},
		textMsg("user", "a"),
		textMsg("assistant", "b"),
		textMsg("user", "c"),
		{Role: "assistant", Blocks: []Block{{Kind: BlockThinking, Thinking: "recent", Signature: "s"}}},
	}
	out := PurifyHistory(messages, Soft, false)
	if hasKind(out[0].Blocks, BlockThinking) {
		t.Fatalf("expected oldest thinking block stripped under Soft")
	}
	if !hasKind(out[len(out)-1].Blocks, BlockThinking) {
		t.Fatalf("expected protected tail to retain thinking block under Soft")
	}
}

func TestPurifyHistoryAggressiveStripsAll(t *testing.T) {
	messages := []Message{
		{Role: "assistant", Blocks: []Block{{Kind: BlockThinking, Thinking: "x", Signature: "s"}}},
	}
	out := PurifyHistory(messages, Aggressive, false)
	if hasKind(out[0].Blocks, BlockThinking) {
		t.Fatalf("expected thinking block stripped under Aggressive")
	}
}
