// Package model defines shared types used across the sync engine, the local
// mirror and the remote adapters.
package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default display values used when an account has no settings record yet.
const (
	DefaultMosqueName     = "Masjid"
	DefaultPrayerTimezone = "UTC"
	DefaultIqomahMinutes  = 10
)

// Origin tags every local mutation with the direction it came from. The
// settings push listener only forwards OriginLocal changes, so applying a
// remote snapshot can never bounce back to the backend.
type Origin int

const (
	// OriginLocal marks a change made on this device (CLI, HTTP API).
	OriginLocal Origin = iota
	// OriginRemote marks a change applied from a remote snapshot.
	OriginRemote
)

// String returns "local" or "remote".
func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// Settings is the per-account display configuration. Exactly one record is
// current per account; the local mirror holds at most one copy.
type Settings struct {
	// AccountID is the owner of the record. Set at creation, never changed.
	// Empty in the local mirror.
	AccountID string `validate:"omitempty,max=128"`

	MosqueName     string  `validate:"required,max=120"`
	MosqueLocation string  `validate:"max=200"`
	LogoImage      *string `validate:"omitempty,url"`
	PrayerAddress  string  `validate:"max=200"`
	PrayerTimezone string  `validate:"required,timezone"`
	QuoteText      string  `validate:"max=1000"`
	MarqueeText    string  `validate:"max=1000"`

	// IqomahDurationMinutes is the delay between adhan and iqomah.
	IqomahDurationMinutes int `validate:"gte=0,lte=120"`

	// UpdatedAt is assigned by the server on every write. Never compared.
	UpdatedAt time.Time
}

// DefaultSettings returns the settings a fresh account starts with.
func DefaultSettings(accountID string) *Settings {
	return &Settings{
		AccountID:             accountID,
		MosqueName:            DefaultMosqueName,
		PrayerTimezone:        DefaultPrayerTimezone,
		IqomahDurationMinutes: DefaultIqomahMinutes,
	}
}

// DisplayEqual reports whether s and other carry the same display fields.
// AccountID and UpdatedAt are ignored: they change on every server write and
// would otherwise make every poll look like an update.
func (s *Settings) DisplayEqual(other *Settings) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.MosqueName == other.MosqueName &&
		s.MosqueLocation == other.MosqueLocation &&
		equalStringPtr(s.LogoImage, other.LogoImage) &&
		s.PrayerAddress == other.PrayerAddress &&
		s.PrayerTimezone == other.PrayerTimezone &&
		s.QuoteText == other.QuoteText &&
		s.MarqueeText == other.MarqueeText &&
		s.IqomahDurationMinutes == other.IqomahDurationMinutes
}

// Clone returns a deep copy of s.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	cp := *s
	if s.LogoImage != nil {
		logo := *s.LogoImage
		cp.LogoImage = &logo
	}
	return &cp
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the display fields before they are written anywhere.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
