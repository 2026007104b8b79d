package model

const (
	UnknownField       = "Unknown"
	UnknownCountryCode = "XX"
)

type GeoInfo struct {
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	City        string `json:"city"`
	Region      string `json:"region"`
	IP          string `json:"ip"`
}

func UnknownGeo() GeoInfo {
	return GeoInfo{
		Country:     UnknownField,
		CountryCode: UnknownCountryCode,
		City:        UnknownField,
		Region:      UnknownField,
		IP:          UnknownField,
	}
}

// Visit is the body posted to the analytics backend.
type Visit struct {
	Page      string   `json:"page"`
	UserAgent string   `json:"userAgent"`
	Referrer  string   `json:"referrer"`
	Location  *GeoInfo `json:"location,omitempty"`

	// ClientIP is the visitor address used for the geo lookup. It is not posted.
	ClientIP string `json:"-"`
}

// Normalize fills the defaults the backend expects for missing page and referrer.
func (v Visit) Normalize() Visit {
	if v.Page == "" {
		v.Page = "index.html"
	}
	if v.Referrer == "" {
		v.Referrer = "direct"
	}
	return v
}
