package model

import (
	"context"
	"errors"
	"testing"
)

func TestMockChatModel_ReturnsConfiguredResponse(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "Hello, world!"}}}

	out, err := mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Text != "Hello, world!" {
		t.Errorf("Text = %q, want %q", out.Text, "Hello, world!")
	}
}

func TestMockChatModel_RepeatsLastResponseWhenExhausted(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "first"}, {Text: "last"}}}
	messages := []Message{{Role: RoleUser, Content: "test"}}

	for i, want := range []string{"first", "last", "last", "last"} {
		out, err := mock.Chat(context.Background(), messages, nil)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if out.Text != want {
			t.Errorf("call %d: Text = %q, want %q", i, out.Text, want)
		}
	}
}

func TestMockChatModel_ReturnsConfiguredError(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	mock := &MockChatModel{Err: wantErr}

	_, err := mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestMockChatModel_RespectsCancellation(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "unreachable"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mock.Chat(ctx, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestMockChatModel_RecordsCallHistory(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "ok"}}}
	tools := []ToolSpec{{Name: "search"}}
	messages := []Message{{Role: RoleUser, Content: "find it"}}

	if _, err := mock.Chat(context.Background(), messages, tools); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("CallCount() = %d, want 1", mock.CallCount())
	}
	if mock.Calls[0].Tools[0].Name != "search" {
		t.Errorf("recorded call did not capture tools: %+v", mock.Calls[0])
	}

	mock.Reset()
	if mock.CallCount() != 0 {
		t.Fatalf("CallCount() after Reset = %d, want 0", mock.CallCount())
	}
}

func TestMockChatModel_ImplementsChatModel(t *testing.T) {
	var _ ChatModel = &MockChatModel{}
}
