package models

import (
	"fmt"
	"strings"
	"time"
)

type Mode string

const (
	ModeSMS  Mode = "sms"
	ModeCall Mode = "call"
	ModeBoth Mode = "both"
)

type LoginStrategy string

const (
	LoginUsername LoginStrategy = "username"
	LoginEmail    LoginStrategy = "email"
	LoginToken    LoginStrategy = "token"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSMS:
		return ModeSMS, nil
	case ModeCall:
		return ModeCall, nil
	case ModeBoth, "sms+call", "hybrid":
		return ModeBoth, nil
	}
	return "", fmt.Errorf("unknown panel mode %q", s)
}

func ParseLoginStrategy(s string) (LoginStrategy, error) {
	switch LoginStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case LoginUsername, "user":
		return LoginUsername, nil
	case LoginEmail:
		return LoginEmail, nil
	case LoginToken, "api":
		return LoginToken, nil
	}
	return "", fmt.Errorf("unknown login strategy %q", s)
}

type Credentials struct {
	Username string `json:"username,omitempty" yaml:"username"`
	Email    string `json:"email,omitempty" yaml:"email"`
	Password string `json:"password,omitempty" yaml:"password"`
	Token    string `json:"token,omitempty" yaml:"token"`
}

// PanelInput is what an administrator submits when adding a panel.
type PanelInput struct {
	Name          string        `json:"name" yaml:"name"`
	BaseURL       string        `json:"base_url" yaml:"base_url"`
	Mode          Mode          `json:"mode" yaml:"mode"`
	LoginStrategy LoginStrategy `json:"login_strategy" yaml:"login_strategy"`
	Credentials   Credentials   `json:"credentials" yaml:"credentials"`
	LoginPath     string        `json:"login_path,omitempty" yaml:"login_path"`
	SMSPath       string        `json:"sms_path,omitempty" yaml:"sms_path"`
	CallPath      string        `json:"call_path,omitempty" yaml:"call_path"`
	// Form field names for session login, defaulting to the strategy name and "password".
	UserField string `json:"user_field,omitempty" yaml:"user_field"`
	PassField string `json:"pass_field,omitempty" yaml:"pass_field"`
}

// Normalize maps mode and login strategy aliases ("hybrid", "api", ...) to
// their canonical values. Unknown values are kept so Validate can report them.
func (in PanelInput) Normalize() PanelInput {
	if mode, err := ParseMode(string(in.Mode)); err == nil {
		in.Mode = mode
	}
	if strategy, err := ParseLoginStrategy(string(in.LoginStrategy)); err == nil {
		in.LoginStrategy = strategy
	}
	in.Name = strings.TrimSpace(in.Name)
	in.BaseURL = strings.TrimRight(strings.TrimSpace(in.BaseURL), "/")
	return in
}

// SequentialRequests is the most HTTP requests one fetch of the panel makes
// back to back: one per endpoint in its mode, plus a login for session panels.
func (in PanelInput) SequentialRequests() int {
	n := 1
	if in.Mode == ModeBoth {
		n = 2
	}
	if in.LoginStrategy != LoginToken {
		n++
	}
	return n
}

// Validate checks that the input carries what its strategy needs to fetch.
func (in PanelInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("panel name is required")
	}
	if !strings.HasPrefix(in.BaseURL, "http://") && !strings.HasPrefix(in.BaseURL, "https://") {
		return fmt.Errorf("base url must start with http:// or https://")
	}
	if _, err := ParseMode(string(in.Mode)); err != nil {
		return err
	}
	if _, err := ParseLoginStrategy(string(in.LoginStrategy)); err != nil {
		return err
	}

	if in.Mode != ModeCall && in.SMSPath == "" {
		return fmt.Errorf("sms endpoint is required for mode %s", in.Mode)
	}
	if in.Mode != ModeSMS && in.CallPath == "" {
		return fmt.Errorf("call endpoint is required for mode %s", in.Mode)
	}

	switch in.LoginStrategy {
	case LoginToken:
		if in.Credentials.Token == "" {
			return fmt.Errorf("token is required")
		}
	case LoginUsername:
		if in.Credentials.Username == "" || in.Credentials.Password == "" {
			return fmt.Errorf("username and password are required")
		}
	case LoginEmail:
		if in.Credentials.Email == "" || in.Credentials.Password == "" {
			return fmt.Errorf("email and password are required")
		}
	}
	return nil
}

// Panel is a configured source. ID is assigned once at creation and never changes.
type Panel struct {
	PanelInput
	ID        string    `json:"id"`
	Enabled   bool      `json:"-"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// RelayStatus is a point-in-time summary of the poll loop, shared with the
// admin front end.
type RelayStatus struct {
	State          string    `json:"state"`
	Cycles         int64     `json:"cycles"`
	Delivered      int64     `json:"delivered"`
	FetchErrors    int64     `json:"fetch_errors"`
	NotifyErrors   int64     `json:"notify_errors"`
	LastCycleStart time.Time `json:"last_cycle_start"`
	LastCycleEnd   time.Time `json:"last_cycle_end"`
	KnownMessages  int       `json:"known_messages"`
}
