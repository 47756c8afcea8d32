package services

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/shared"
	"github.com/rs/zerolog/log"
)

const (
	GEOLOCATION_SVC = "geolocation_svc"

	locationLocal   = "Local"
	locationUnknown = "Unknown"
)

// GeolocationService resolves client addresses to "City, Region, Country"
// for security alerts. Results are cached in Redis when it is available.
type GeolocationService struct {
	appContext.DefaultService
	httpClient  *http.Client
	apiURL      string
	redisSvc    *RedisService
	cacheExpiry time.Duration
}

func (svc GeolocationService) Id() string {
	return GEOLOCATION_SVC
}

func (svc *GeolocationService) Configure(ctx *appContext.Context) error {
	svc.httpClient = &http.Client{
		Timeout: 5 * time.Second,
	}
	svc.apiURL = getEnv("GEOLOCATION_API_URL", "http://ip-api.com/json")
	svc.cacheExpiry = 24 * time.Hour
	return svc.DefaultService.Configure(ctx)
}

func (svc *GeolocationService) Start() error {
	svc.redisSvc, _ = svc.Service(REDIS_SVC).(*RedisService)
	if os.Getenv("GEOLOCATION_DISABLED") == "true" {
		svc.apiURL = ""
	}
	return nil
}

// GetLocationByIP implements security.LocationResolver. Lookup failures
// resolve to "Unknown" rather than an error.
func (svc *GeolocationService) GetLocationByIP(ip string) (string, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return locationUnknown, nil
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
		return locationLocal, nil
	}
	if svc.apiURL == "" {
		return locationUnknown, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), svc.httpClient.Timeout)
	defer cancel()
	cacheKey := fmt.Sprintf("geolocation:simple:%s", addr.String())

	if svc.redisSvc != nil {
		if cached, err := svc.redisSvc.Get(ctx, cacheKey); err == nil && cached != "" {
			return cached, nil
		}
	}

	location, ok := svc.lookup(ctx, addr.String())
	if !ok {
		return locationUnknown, nil
	}

	if svc.redisSvc != nil {
		if err := svc.redisSvc.Set(ctx, cacheKey, location, svc.cacheExpiry); err != nil {
			log.Warn().Err(err).Str("ip", ip).Msg("Failed to cache geolocation result")
		}
	}
	return location, nil
}

func (svc *GeolocationService) lookup(ctx context.Context, ip string) (string, bool) {
	url := fmt.Sprintf("%s/%s?fields=status,country,regionName,city", svc.apiURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false
	}

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("Failed to get geolocation")
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("ip", ip).Msg("Geolocation API returned non-200 status")
		return "", false
	}

	var result struct {
		Status     string `json:"status"`
		Country    string `json:"country"`
		RegionName string `json:"regionName"`
		City       string `json:"city"`
	}
	if err := shared.JSON.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("Failed to decode geolocation response")
		return "", false
	}
	if result.Status != "success" {
		return "", false
	}

	var parts []string
	for _, p := range []string{result.City, result.RegionName, result.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, ", "), true
}
