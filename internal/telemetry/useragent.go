package telemetry

import (
	"fmt"

	"github.com/avct/uasurfer"

	"telemetry-client/internal/models"
)

// DeriveUserAgentData builds the structured user-agent description sent on
// checkin. Page-reported hints take precedence; parsed fields fill the rest.
func DeriveUserAgentData(ua string, hints *models.UserAgentData) *models.UserAgentData {
	parsed := uasurfer.Parse(ua)

	out := &models.UserAgentData{
		Browser:        parsed.Browser.Name.StringTrimPrefix(),
		BrowserVersion: formatVersion(parsed.Browser.Version),
		OS:             parsed.OS.Name.StringTrimPrefix(),
		OSVersion:      formatVersion(parsed.OS.Version),
		DeviceType:     parsed.DeviceType.StringTrimPrefix(),
		Platform:       parsed.OS.Platform.StringTrimPrefix(),
		Mobile:         parsed.DeviceType == uasurfer.DevicePhone,
	}

	if hints == nil {
		return out
	}
	if len(hints.Brands) > 0 {
		out.Brands = append([]models.Brand(nil), hints.Brands...)
	}
	if hints.Platform != "" {
		out.Platform = hints.Platform
	}
	out.Mobile = out.Mobile || hints.Mobile
	return out
}

func formatVersion(v uasurfer.Version) string {
	if v.Major == 0 && v.Minor == 0 && v.Patch == 0 {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
