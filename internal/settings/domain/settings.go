// Package domain names the operator-managed settings read by the verification core.
package domain

import "time"

// Setting keys stored in the settings table.
const (
	KeyCaptcha     = "captcha"
	KeyTGuardURL   = "tguard_api_url"
	KeyTGuardKey   = "tguard_api_key"
	CacheKeyPrefix = "setting_"
)

// CacheTTL is how long a settings projection lives in the cache.
const CacheTTL = time.Hour

// Setting is one row of the settings table. A nil Value is an unset (NULL) setting.
type Setting struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

// CacheKey returns the projection key for a setting.
func CacheKey(key string) string {
	return CacheKeyPrefix + key
}
