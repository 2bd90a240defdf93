package sanitize

import (
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// DefaultSkins is the allow-list used when none is configured.
var DefaultSkins = []string{
	"kansai_banter",
	"formal_keigo",
	"pirate",
	"shakespearean",
	"corporate",
	"gal_speak",
}

// SkinValidator checks style identifiers against an allow-list.
// The list can be replaced at runtime with SetAllowed.
type SkinValidator struct {
	allowed map[string]struct{}
	mu      sync.RWMutex
}

// NewSkinValidator creates a validator for the given skins.
// An empty list falls back to DefaultSkins.
func NewSkinValidator(skins []string) *SkinValidator {
	v := &SkinValidator{}
	v.SetAllowed(skins)
	return v
}

// Validate returns the lower-cased skin name if it is on the allow-list.
func (v *SkinValidator) Validate(name string) (string, error) {
	normalized := normalizeSkin(name)

	v.mu.RLock()
	_, ok := v.allowed[normalized]
	v.mu.RUnlock()

	if !ok || normalized == "" {
		return "", &ValidationError{Reason: ReasonInvalidSkin}
	}
	return normalized, nil
}

// SetAllowed replaces the allow-list.
func (v *SkinValidator) SetAllowed(skins []string) {
	if len(skins) == 0 {
		skins = DefaultSkins
	}
	normalized := lo.Compact(lo.Map(skins, func(s string, _ int) string {
		return normalizeSkin(s)
	}))
	allowed := lo.SliceToMap(normalized, func(s string) (string, struct{}) {
		return s, struct{}{}
	})

	v.mu.Lock()
	v.allowed = allowed
	v.mu.Unlock()
}

// Allowed returns the allow-list in sorted order.
func (v *SkinValidator) Allowed() []string {
	v.mu.RLock()
	skins := lo.Keys(v.allowed)
	v.mu.RUnlock()

	sort.Strings(skins)
	return skins
}

func normalizeSkin(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
