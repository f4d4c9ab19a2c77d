package chat

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"vinpix/internal/domain"
)

func TestDecodeBulkPrompts(t *testing.T) {
	tests := []struct {
		name        string
		resp        string
		wantPrefix  string
		wantPrompts []string
		wantErr     bool
	}{
		{
			name:        "clean json",
			resp:        `{"prefix":"A photo of","prompts":["A photo of a cat","A photo of a dog"]}`,
			wantPrefix:  "A photo of",
			wantPrompts: []string{"A photo of a cat", "A photo of a dog"},
		},
		{
			name:        "json wrapped in prose",
			resp:        "Here is the result:\n```json\n{\"prefix\":\"\",\"prompts\":[\"standalone prompt\"]}\n```",
			wantPrompts: []string{"standalone prompt"},
		},
		{
			name:        "missing prefix folded in",
			resp:        `{"prefix":"Oil painting of","prompts":["Oil painting of a ship","a lighthouse"]}`,
			wantPrefix:  "Oil painting of",
			wantPrompts: []string{"Oil painting of a ship", "Oil painting of a lighthouse"},
		},
		{
			name:        "blank prompts dropped",
			resp:        `{"prefix":"","prompts":["  ","real","",""]}`,
			wantPrompts: []string{"real"},
		},
		{
			name:    "no prompts extracted",
			resp:    `{"prefix":"x","prompts":[]}`,
			wantErr: true,
		},
		{
			name:    "not json at all",
			resp:    "sorry, I cannot do that",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBulkPrompts(tt.resp)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("got %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Prefix != tt.wantPrefix {
				t.Errorf("prefix = %q, want %q", got.Prefix, tt.wantPrefix)
			}
			if !reflect.DeepEqual(got.Prompts, tt.wantPrompts) {
				t.Errorf("prompts = %v, want %v", got.Prompts, tt.wantPrompts)
			}
		})
	}
}

func TestParsePromptsRetriesMalformedResponse(t *testing.T) {
	text := &fakeText{responses: []string{
		"completely malformed",
		`{"prefix":"","prompts":["recovered prompt"]}`,
	}}
	p := NewBulkPromptParser(text, "gemini-3.0-pro", testLogger())

	got, err := p.ParsePrompts(context.Background(), "1. recovered prompt")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if text.callCount() != 2 {
		t.Errorf("text calls = %d, want retry after malformed JSON", text.callCount())
	}
	if len(got.Prompts) != 1 || got.Prompts[0] != "recovered prompt" {
		t.Errorf("prompts = %v", got.Prompts)
	}
}

func TestParsePromptsGivesUpAfterMaxAttempts(t *testing.T) {
	text := &fakeText{responses: []string{"garbage one", "garbage two"}}
	p := NewBulkPromptParser(text, "gemini-3.0-pro", testLogger())

	_, err := p.ParsePrompts(context.Background(), "some list")
	if !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("err = %v, want ErrBackend", err)
	}
	if text.callCount() != bulkParseMaxAttempts {
		t.Errorf("text calls = %d, want %d", text.callCount(), bulkParseMaxAttempts)
	}
}

func TestParsePromptsRejectsEmptyInput(t *testing.T) {
	p := NewBulkPromptParser(&fakeText{}, "gemini-3.0-pro", testLogger())
	if _, err := p.ParsePrompts(context.Background(), "   \n"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestParsePromptsPropagatesProviderError(t *testing.T) {
	text := &fakeText{errOnCall: map[int]error{0: fmt.Errorf("%w: quota", domain.ErrBackend)}}
	p := NewBulkPromptParser(text, "gemini-3.0-pro", testLogger())
	if _, err := p.ParsePrompts(context.Background(), "list"); !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("err = %v, want ErrBackend", err)
	}
	if text.callCount() != 1 {
		t.Errorf("text calls = %d, provider errors must not retry", text.callCount())
	}
}
