package mappers

import (
	"bytes"
	"testing"
)

func intPtr(i int) *int { return &i }

// TestCollectStreamRoundTrip exercises spec §8's round-trip property:
// collect_stream(emit_stream(R)) == R for a non-empty OpenAIResponse R
// whose tool calls have contiguous indices.
func TestCollectStreamRoundTrip(t *testing.T) {
	want := &OpenAIChatResponse{
		ID:      "chatcmpl-test-1",
		Object:  "chat.completion",
		Created: 1700000000,
		Model:   "gemini-3-pro",
		Choices: []OpenAIChoice{
			{
				Index: 0,
				Message: OpenAIMessage{
					Role:             "assistant",
					Content:          "The weather in Paris is sunny.",
					ReasoningContent: "Let me check the forecast.",
					ToolCalls: []OpenAIToolCall{
						{
							Index: intPtr(0),
							ID:    "call_abc",
							Type:  "function",
							Function: &OpenAIFunctionCall{
								Name:      "get_weather",
								Arguments: `{"city":"Paris"}`,
							},
						},
						{
							Index: intPtr(1),
							ID:    "call_def",
							Type:  "function",
							Function: &OpenAIFunctionCall{
								Name:      "get_time",
								Arguments: `{"tz":"CET"}`,
							},
						},
					},
				},
				FinishReason: stringPtr("tool_calls"),
			},
		},
	}

	emitted := EmitOpenAIStream(want)
	got, err := CollectOpenAIStream(bytes.NewReader(emitted))
	if err != nil {
		t.Fatalf("CollectOpenAIStream failed: %v", err)
	}

	if got.ID != want.ID || got.Model != want.Model || got.Created != want.Created {
		t.Fatalf("envelope mismatch: got %+v, want %+v", got, want)
	}
	if len(got.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(got.Choices))
	}
	gotMsg, wantMsg := got.Choices[0].Message, want.Choices[0].Message
	if gotMsg.Role != wantMsg.Role {
		t.Errorf("role: got %q want %q", gotMsg.Role, wantMsg.Role)
	}
	if gotMsg.Content != wantMsg.Content {
		t.Errorf("content: got %q want %q", gotMsg.Content, wantMsg.Content)
	}
	if gotMsg.ReasoningContent != wantMsg.ReasoningContent {
		t.Errorf("reasoning_content: got %q want %q", gotMsg.ReasoningContent, wantMsg.ReasoningContent)
	}
	if *got.Choices[0].FinishReason != *want.Choices[0].FinishReason {
		t.Errorf("finish_reason: got %q want %q", *got.Choices[0].FinishReason, *want.Choices[0].FinishReason)
	}
	if len(gotMsg.ToolCalls) != len(wantMsg.ToolCalls) {
		t.Fatalf("tool_calls length: got %d want %d", len(gotMsg.ToolCalls), len(wantMsg.ToolCalls))
	}
	for i, wantCall := range wantMsg.ToolCalls {
		gotCall := gotMsg.ToolCalls[i]
		if *gotCall.Index != *wantCall.Index {
			t.Errorf("tool_calls[%d].index: got %d want %d", i, *gotCall.Index, *wantCall.Index)
		}
		if gotCall.ID != wantCall.ID || gotCall.Type != wantCall.Type {
			t.Errorf("tool_calls[%d] id/type mismatch: got %+v want %+v", i, gotCall, wantCall)
		}
		if gotCall.Function.Name != wantCall.Function.Name || gotCall.Function.Arguments != wantCall.Function.Arguments {
			t.Errorf("tool_calls[%d].function mismatch: got %+v want %+v", i, gotCall.Function, wantCall.Function)
		}
	}
}

func TestCollectStreamSortsOutOfOrderToolCallChunks(t *testing.T) {
	// Simulate a stream whose tool_call delta chunks arrive with indices
	// out of order and split arguments across several deltas.
	sse := "" +
		"data: {\"id\":\"chatcmpl-x\",\"object\":\"chat.completion.chunk\",\"model\":\"gemini-3-pro\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":1,\"id\":\"call_b\",\"type\":\"function\",\"function\":{\"name\":\"second\",\"arguments\":\"{\\\"x\\\":\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_a\",\"type\":\"function\",\"function\":{\"name\":\"first\",\"arguments\":\"{}\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":1,\"function\":{\"arguments\":\"1}\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"finish_reason\":\"tool_calls\"}]}\n\n" +
		"data: [DONE]\n\n"

	got, err := CollectOpenAIStream(bytes.NewReader([]byte(sse)))
	if err != nil {
		t.Fatalf("CollectOpenAIStream failed: %v", err)
	}
	calls := got.Choices[0].Message.ToolCalls
	if len(calls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(calls))
	}
	if *calls[0].Index != 0 || calls[0].Function.Name != "first" {
		t.Errorf("expected index 0 call 'first' first, got %+v", calls[0])
	}
	if *calls[1].Index != 1 || calls[1].Function.Arguments != `{"x":1}` {
		t.Errorf("expected index 1 arguments to be concatenated across deltas, got %+v", calls[1])
	}
}
