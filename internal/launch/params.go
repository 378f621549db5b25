// Package launch reads the parameters a host injects when it opens a
// miniapp, and caches them for the rest of the session.
package launch

import (
	"encoding/json"
	"fmt"

	"github.com/alien-id/miniapp-sdk/internal/capability"
)

// Globals a host injects.
const (
	GlobalAuthToken       = "MINIAPP_AUTH_TOKEN"
	GlobalContractVersion = "MINIAPP_CONTRACT_VERSION"
	GlobalHostVersion     = "MINIAPP_HOST_VERSION"
	GlobalPlatform        = "MINIAPP_PLATFORM"
	GlobalStartParam      = "MINIAPP_START_PARAM"
	GlobalDisplayMode     = "MINIAPP_DISPLAY_MODE"
	GlobalSafeAreaInsets  = "MINIAPP_SAFE_AREA_INSETS"
)

var allGlobals = []string{
	GlobalAuthToken,
	GlobalContractVersion,
	GlobalHostVersion,
	GlobalPlatform,
	GlobalStartParam,
	GlobalDisplayMode,
	GlobalSafeAreaInsets,
}

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

type DisplayMode string

const (
	DisplayStandard   DisplayMode = "standard"
	DisplayFullscreen DisplayMode = "fullscreen"
)

type SafeAreaInsets struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Params is what the host told the miniapp at launch. Only AuthToken is
// guaranteed; a field the host omitted or sent malformed is left empty.
type Params struct {
	AuthToken       string          `json:"authToken"`
	ContractVersion string          `json:"contractVersion,omitempty"`
	HostAppVersion  string          `json:"hostAppVersion,omitempty"`
	Platform        Platform        `json:"platform,omitempty"`
	StartParam      string          `json:"startParam,omitempty"`
	DisplayMode     DisplayMode     `json:"displayMode,omitempty"`
	SafeAreaInsets  *SafeAreaInsets `json:"safeAreaInsets,omitempty"`
}

// Parse decodes params from JSON, dropping a malformed contract version,
// platform or display mode.
func Parse(raw []byte) (Params, error) {
	var p Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return Params{}, fmt.Errorf("parse launch params: %w", err)
	}
	return p.sanitized(), nil
}

func (p Params) sanitized() Params {
	p.ContractVersion = validVersion(p.ContractVersion)
	p.Platform = validPlatform(string(p.Platform))
	p.DisplayMode = validDisplayMode(string(p.DisplayMode))
	return p
}

func validVersion(s string) string {
	if _, err := capability.ParseVersion(s); err != nil {
		return ""
	}
	return s
}

func validPlatform(s string) Platform {
	switch p := Platform(s); p {
	case PlatformIOS, PlatformAndroid:
		return p
	}
	return ""
}

func validDisplayMode(s string) DisplayMode {
	switch m := DisplayMode(s); m {
	case DisplayStandard, DisplayFullscreen:
		return m
	}
	return ""
}
