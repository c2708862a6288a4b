package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

// ─── Event Tests ────────────────────────────────────────────────────────────

func TestNormalizeEventType(t *testing.T) {
	tests := []struct {
		input string
		want  EventType
		ok    bool
	}{
		{"chat", EventChat, true},
		{"  CHAT ", EventChat, true},
		{"Subscription", EventSubscription, true},
		{"tip", EventTip, true},
		{"presence", EventPresence, true},
		{"follow", EventFollow, true},
		{"raid", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := NormalizeEventType(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeEventType(%q) = (%q, %v), want (%q, %v)",
				tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestChatEligible(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"plain message", "hello there", true},
		{"command", "!balance", false},
		{"whitespace only", "   ", false},
		{"empty", "", false},
		{"padded command", "  !spin  ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChatEligible(tt.text, 1); got != tt.want {
				t.Errorf("ChatEligible(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

// ─── Payload Tests ──────────────────────────────────────────────────────────

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		kind    QueueKind
		payload any
		wantErr bool
	}{
		{
			name:    "valid speech",
			kind:    KindSpeech,
			payload: SpeechPayload{Subject: "ada", Text: "hi", Source: "redeem"},
		},
		{
			name:    "speech with empty text",
			kind:    KindSpeech,
			payload: SpeechPayload{Subject: "ada"},
			wantErr: true,
		},
		{
			name: "valid draw",
			kind: KindDraw,
			payload: DrawPayload{Subject: "ada", Options: []DrawOption{
				{Name: "50 coins", Weight: 30},
				{Name: "confetti", Weight: 10},
			}},
		},
		{
			name:    "draw without options",
			kind:    KindDraw,
			payload: DrawPayload{Subject: "ada"},
			wantErr: true,
		},
		{
			name: "draw with zero weight",
			kind: KindDraw,
			payload: DrawPayload{Subject: "ada", Options: []DrawOption{
				{Name: "nothing", Weight: 0},
			}},
			wantErr: true,
		},
		{
			name:    "valid effect",
			kind:    KindEffect,
			payload: EffectPayload{Subject: "ada", EffectName: "grant_currency"},
		},
		{
			name:    "effect without name",
			kind:    KindEffect,
			payload: EffectPayload{Subject: "ada"},
			wantErr: true,
		},
		{
			name:    "mismatched payload type",
			kind:    KindSpeech,
			payload: DrawPayload{Subject: "ada"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodePayload(tt.kind, tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodePayload() error: %v", err)
			}
			if !json.Valid(raw) {
				t.Error("encoded payload is not valid JSON")
			}
		})
	}
}

func TestEncodePayload_UnknownKind(t *testing.T) {
	_, err := EncodePayload("confetti", SpeechPayload{Text: "x"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestSpeechPayload_Line(t *testing.T) {
	p := SpeechPayload{Subject: "ada", Text: "reached level 5", PrefixIdentity: true}
	if got := p.Line(); got != "ada says: reached level 5" {
		t.Errorf("Line() = %q", got)
	}
	p.PrefixIdentity = false
	if got := p.Line(); got != "reached level 5" {
		t.Errorf("Line() = %q", got)
	}
}

func TestLevelRewardRule_FormatAnnounce(t *testing.T) {
	r := LevelRewardRule{Level: 10, AnnounceText: "{user} hit level {level}!"}
	if got := r.FormatAnnounce("ada"); got != "ada hit level 10!" {
		t.Errorf("FormatAnnounce() = %q", got)
	}
}

// ─── Error Tests ────────────────────────────────────────────────────────────

func TestIsCooldown(t *testing.T) {
	err := &CooldownError{Key: "xp:chat", Remaining: 30}
	remaining, ok := IsCooldown(err)
	if !ok || remaining != 30 {
		t.Errorf("IsCooldown() = (%d, %v), want (30, true)", remaining, ok)
	}

	if _, ok := IsCooldown(ErrInsufficientBalance); ok {
		t.Error("IsCooldown() matched a non-cooldown error")
	}
}
