package parser

import (
	"testing"

	"github.com/ObiAU/otprelay/internal/models"
)

func TestExtractOTP(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"six digits", "Your code is 482910", "482910", true},
		{"six digits with punctuation", "code:482910.", "482910", true},
		{"split with dash", "Use 123-456 to sign in", "123456", true},
		{"split with space", "Use 123 456 to sign in", "123456", true},
		{"four digits", "PIN 4821", "4821", true},
		{"eight digits", "token 12345678 expires", "12345678", true},
		{"split wins over earlier plain run", "ref 9876 code 123456", "123456", true},
		{"too long", "account 123456789012", "", false},
		{"too short", "room 12 floor 3", "", false},
		{"no digits", "hello there", "", false},
		{"phone only", "+14155552671", "", false},
		{"glued to latin letters", "OTP123456", "123456", true},
		{"glued to cyrillic letters", "код123456", "123456", true},
		{"letters on both sides", "G-4821abc", "4821", true},
		{"split glued to letters", "code123-456end", "123456", true},
		{"start of text", "123456 is your code", "123456", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractOTP(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ExtractOTP(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDetectServiceCaseInsensitive(t *testing.T) {
	for _, text := range []string{
		"Your WhatsApp code is 482910",
		"YOUR WHATSAPP CODE IS 482910",
		"your whatsapp code is 482910",
	} {
		name, emoji := DetectService(text)
		if name != "WhatsApp" || emoji != "🟢" {
			t.Errorf("DetectService(%q) = %s %s, want WhatsApp 🟢", text, name, emoji)
		}
	}
}

func TestDetectServiceUnknown(t *testing.T) {
	name, emoji := DetectService("Your verification code is 1234")
	if name != UnknownService || emoji != UnknownServiceEmoji {
		t.Errorf("expected unknown service, got %s %s", name, emoji)
	}
}

func TestDetectServiceTableOrder(t *testing.T) {
	name, _ := DetectService("Telegram: your WhatsApp backup code 111222")
	if name != "Telegram" {
		t.Errorf("expected first table entry to win, got %s", name)
	}
}

func TestDetectCountryFromNumber(t *testing.T) {
	name, flag := DetectCountry("+14155552671", "")
	if name != "United States" {
		t.Errorf("expected United States, got %s", name)
	}
	if flag != "🇺🇸" {
		t.Errorf("expected US flag, got %q", flag)
	}
}

func TestDetectCountryWithoutPlus(t *testing.T) {
	name, _ := DetectCountry("447911123456", "")
	if name != "United Kingdom" {
		t.Errorf("expected United Kingdom, got %s", name)
	}
}

func TestDetectCountryTextFallback(t *testing.T) {
	name, flag := DetectCountry("", "Code 123456 sent from Germany")
	if name != "Germany" || flag != "🇩🇪" {
		t.Errorf("expected Germany 🇩🇪, got %s %s", name, flag)
	}
}

func TestDetectCountryUnknown(t *testing.T) {
	name, flag := DetectCountry("not-a-number", "code 123456")
	if name != UnknownCountry || flag != UnknownCountryFlag {
		t.Errorf("expected unknown country, got %s %s", name, flag)
	}
}

func TestFlagForRegion(t *testing.T) {
	if got := FlagForRegion("in"); got != "🇮🇳" {
		t.Errorf("FlagForRegion(in) = %q", got)
	}
	if got := FlagForRegion("USA"); got != UnknownCountryFlag {
		t.Errorf("FlagForRegion(USA) = %q, want placeholder", got)
	}
}

func TestExtractPhone(t *testing.T) {
	if got := ExtractPhone("from +4915112345678 code 1234", ""); got != "+4915112345678" {
		t.Errorf("unexpected phone %q", got)
	}
	if got := ExtractPhone("from +4915112345678", "+14155552671"); got != "+14155552671" {
		t.Errorf("known number should win, got %q", got)
	}
	if got := ExtractPhone("code 1234", ""); got != "" {
		t.Errorf("expected no phone, got %q", got)
	}
}

func TestMaskNumber(t *testing.T) {
	if got := MaskNumber("+14155552671"); got != "+1415****2671" {
		t.Errorf("MaskNumber = %q", got)
	}
	if got := MaskNumber("12345"); got != "12345" {
		t.Errorf("short numbers stay as is, got %q", got)
	}
}

func TestParse(t *testing.T) {
	msg := models.Message{
		SourceID:     "PANEL_ABC123",
		RawText:      "Your Telegram code is 123456",
		Timestamp:    "2024-01-01T00:00:00Z",
		SenderNumber: "+14155552671",
	}

	ev, ok := Parse(msg)
	if !ok {
		t.Fatal("expected an event")
	}
	if ev.OTP != "123456" || ev.Service != "Telegram" || ev.Country != "United States" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Phone != "+14155552671" {
		t.Errorf("expected structured number, got %q", ev.Phone)
	}
	if ev.IdentityKey != msg.IdentityKey() {
		t.Errorf("identity key mismatch")
	}
}

func TestParseMiss(t *testing.T) {
	if _, ok := Parse(models.Message{RawText: "Welcome to the service"}); ok {
		t.Error("expected no event for text without a code")
	}
}
