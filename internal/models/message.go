package models

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Message is a raw record as reported by a panel, before any parsing.
type Message struct {
	SourceID     string `json:"source_id"`
	RawText      string `json:"raw_text"`
	Timestamp    string `json:"timestamp"`
	SenderNumber string `json:"sender_number"`
}

// IdentityKey returns the deduplication key of the message. It only depends on
// the number and the normalized text, so the same message seen through two
// panels with different clocks collapses to one key.
func (m Message) IdentityKey() string {
	number := strings.TrimPrefix(strings.TrimSpace(m.SenderNumber), "+")
	text := strings.ToLower(strings.Join(strings.Fields(m.RawText), " "))

	hash := sha256.Sum256([]byte(number + "\x00" + text))
	return fmt.Sprintf("%x", hash)
}

// OTPEvent is the parsed view of a Message that carried a code.
type OTPEvent struct {
	Message
	PanelName    string `json:"panel_name"`
	OTP          string `json:"otp"`
	Phone        string `json:"phone"`
	Service      string `json:"service"`
	ServiceEmoji string `json:"service_emoji"`
	Country      string `json:"country"`
	CountryFlag  string `json:"country_flag"`
	IdentityKey  string `json:"identity_key"`
}
