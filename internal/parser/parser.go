// Package parser turns raw panel text into OTP events. Every function here is
// pure: the output depends only on the text and an optional known number.
package parser

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/ObiAU/otprelay/internal/models"
)

const (
	UnknownService      = "Unknown"
	UnknownServiceEmoji = "❓"
	UnknownCountry      = "Unknown Country"
	UnknownCountryFlag  = "🌍"
)

var (
	// Codes are bounded by any non-digit, so "OTP123456" and "код123456" both match.
	splitOTPRegex = regexp.MustCompile(`(?:^|\D)(\d{3})[-\s]?(\d{3})(?:\D|$)`)
	plainOTPRegex = regexp.MustCompile(`(?:^|\D)(\d{4,8})(?:\D|$)`)
	phoneRegex    = regexp.MustCompile(`\+?\d{8,15}`)
)

// ExtractOTP returns the first "3-3" code, or failing that the first run of
// 4 to 8 digits. Unrelated numbers such as embedded timestamps can match.
func ExtractOTP(text string) (string, bool) {
	if m := splitOTPRegex.FindStringSubmatch(text); m != nil {
		return m[1] + m[2], true
	}
	if m := plainOTPRegex.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}

// DetectService matches the text case-insensitively against the service table.
func DetectService(text string) (string, string) {
	lower := strings.ToLower(text)
	for _, svc := range services {
		for _, kw := range svc.Keywords {
			if strings.Contains(lower, kw) {
				return svc.Name, svc.Emoji
			}
		}
	}
	return UnknownService, UnknownServiceEmoji
}

// ServiceEmoji returns the emoji of a known service name, or the unknown marker.
func ServiceEmoji(name string) string {
	for _, svc := range services {
		if strings.EqualFold(svc.Name, name) {
			return svc.Emoji
		}
	}
	return UnknownServiceEmoji
}

// ServiceNames lists the known services in table order.
func ServiceNames() []string {
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.Name)
	}
	return names
}

// DetectCountry resolves the country from the phone number's calling code and
// falls back to country names mentioned in the text.
func DetectCountry(phone, text string) (string, string) {
	if region := RegionForNumber(phone); region != "" {
		return RegionName(region), FlagForRegion(region)
	}

	lower := strings.ToLower(text)
	for _, c := range countries {
		if strings.Contains(lower, strings.ToLower(c.Name)) {
			return c.Name, FlagForRegion(c.Code)
		}
	}
	return UnknownCountry, UnknownCountryFlag
}

// RegionForNumber returns the ISO 3166 region of an international number, or
// "" when it cannot be parsed.
func RegionForNumber(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}

	num, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return ""
	}
	region := phonenumbers.GetRegionCodeForNumber(num)
	if len(region) != 2 || region == "ZZ" {
		return ""
	}
	return region
}

// RegionName returns the English name of a region code.
func RegionName(code string) string {
	for _, c := range countries {
		if c.Code == code {
			return c.Name
		}
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return UnknownCountry
	}
	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return UnknownCountry
}

// FlagForRegion maps a two-letter region code to its regional indicator pair.
func FlagForRegion(code string) string {
	code = strings.ToUpper(code)
	if len(code) != 2 || code[0] < 'A' || code[0] > 'Z' || code[1] < 'A' || code[1] > 'Z' {
		return UnknownCountryFlag
	}
	const base = 0x1F1E6
	return string([]rune{rune(base + int(code[0]-'A')), rune(base + int(code[1]-'A'))})
}

// ExtractPhone prefers the number reported by the panel and otherwise takes the
// first 8 to 15 digit run from the text.
func ExtractPhone(text, known string) string {
	if known = strings.TrimSpace(known); known != "" {
		return known
	}
	return phoneRegex.FindString(text)
}

func MaskNumber(num string) string {
	if len(num) > 8 {
		return num[:5] + "****" + num[len(num)-4:]
	}
	return num
}

// Parse builds an OTPEvent from a message. It returns false when the text
// carries no code; such messages are dropped without notice.
func Parse(msg models.Message) (models.OTPEvent, bool) {
	otp, ok := ExtractOTP(msg.RawText)
	if !ok {
		return models.OTPEvent{}, false
	}

	phone := ExtractPhone(msg.RawText, msg.SenderNumber)
	service, serviceEmoji := DetectService(msg.RawText)
	country, flag := DetectCountry(phone, msg.RawText)

	return models.OTPEvent{
		Message:      msg,
		OTP:          otp,
		Phone:        phone,
		Service:      service,
		ServiceEmoji: serviceEmoji,
		Country:      country,
		CountryFlag:  flag,
		IdentityKey:  msg.IdentityKey(),
	}, true
}
