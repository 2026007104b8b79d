package tracker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"sitepulse/internal/model"
)

// IPPlaceholder marks where the visitor address goes in a lookup URL template,
// e.g. https://ipapi.co/{ip}/json/.
const IPPlaceholder = "{ip}"

// GeoClient resolves a visitor's coarse location through a public IP
// geolocation service.
type GeoClient struct {
	client *http.Client
	url    string
	logger *slog.Logger
}

func NewGeoClient(client *http.Client, endpoint string, logger *slog.Logger) *GeoClient {
	return &GeoClient{client: client, url: endpoint, logger: logger}
}

type geoResponse struct {
	CountryName string `json:"country_name"`
	CountryCode string `json:"country_code"`
	City        string `json:"city"`
	Region      string `json:"region"`
	IP          string `json:"ip"`
}

// Lookup resolves ip. It never fails: any problem yields the all-unknown
// location.
func (g *GeoClient) Lookup(ctx context.Context, ip string) model.GeoInfo {
	info := model.UnknownGeo()
	if g == nil || g.url == "" {
		return info
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL(g.url, ip), nil)
	if err != nil {
		return info
	}
	req.Header.Set("Accept", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Debug("geo lookup failed", "error", err)
		return info
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Debug("geo lookup rejected", "status", resp.StatusCode)
		return info
	}
	var body geoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		g.logger.Debug("geo lookup decode failed", "error", err)
		return info
	}
	info.Country = orDefault(body.CountryName, model.UnknownField)
	info.CountryCode = orDefault(body.CountryCode, model.UnknownCountryCode)
	info.City = orDefault(body.City, model.UnknownField)
	info.Region = orDefault(body.Region, model.UnknownField)
	info.IP = orDefault(body.IP, model.UnknownField)
	return info
}

// lookupURL fills the template with ip. Without an address the placeholder
// segment is dropped, which asks the service about the caller itself.
func lookupURL(template, ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		template = strings.Replace(template, IPPlaceholder+"/", "", 1)
		return strings.Replace(template, IPPlaceholder, "", 1)
	}
	return strings.Replace(template, IPPlaceholder, url.PathEscape(ip), 1)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
