package domain

import (
	"errors"
	"fmt"
	"strings"
)

// AssetKeyNative is the key of the network's native asset (XLM).
const AssetKeyNative = "native"

// Asset identifies a Stellar asset. The zero value is the native asset.
type Asset struct {
	Code   string
	Issuer string
}

// NativeAsset returns the native asset.
func NativeAsset() Asset {
	return Asset{}
}

// NewAsset builds an asset from effect/offer fields: a credit asset when both
// code and issuer are present, the native asset otherwise.
func NewAsset(code, issuer string) Asset {
	if code != "" && issuer != "" {
		return Asset{Code: code, Issuer: issuer}
	}
	return NativeAsset()
}

// IsNative reports whether a is the native asset.
func (a Asset) IsNative() bool {
	return a.Issuer == ""
}

// String returns the asset key: "native" or "CODE:ISSUER".
func (a Asset) String() string {
	if a.IsNative() {
		return AssetKeyNative
	}
	return a.Code + ":" + a.Issuer
}

// DisplayCode returns the short code shown to users.
func (a Asset) DisplayCode() string {
	if a.IsNative() {
		return "XLM"
	}
	return a.Code
}

// MarshalText encodes the asset as its key.
func (a Asset) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes an asset key. An empty key is the native asset.
func (a *Asset) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*a = NativeAsset()
		return nil
	}
	parsed, err := ParseAsset(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAsset parses an asset key produced by Asset.String.
func ParseAsset(key string) (Asset, error) {
	if key == AssetKeyNative {
		return NativeAsset(), nil
	}
	code, issuer, ok := strings.Cut(key, ":")
	if !ok || code == "" || issuer == "" {
		return Asset{}, fmt.Errorf("invalid asset key %q", key)
	}
	return Asset{Code: code, Issuer: issuer}, nil
}

// ErrUnmatchedSelection is returned when a selected key has no backing asset.
var ErrUnmatchedSelection = errors.New("selected asset has no matching entry")

// SelectAsset resolves a selected key against the native asset plus assets.
func SelectAsset(assets []Asset, key string) (Asset, error) {
	if key == AssetKeyNative {
		return NativeAsset(), nil
	}
	for _, a := range assets {
		if a.String() == key {
			return a, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: %s", ErrUnmatchedSelection, key)
}
