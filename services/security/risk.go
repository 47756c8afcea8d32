package security

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var botUserAgents = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget", "python-requests",
	"python-urllib", "go-http-client", "java/", "okhttp", "libwww", "httpclient",
	"headless", "phantomjs", "selenium", "puppeteer",
}

var suspiciousUserAgents = []string{
	"sqlmap", "nikto", "nmap", "masscan", "zgrab", "scanner", "test", "null", "undefined",
}

var browserVersion = regexp.MustCompile(`(Chrome|Firefox|Edg|Version)/(\d+)`)

// userAgentScore grades a User-Agent header from 0.1 (ordinary browser) to 0.8 (automation).
func userAgentScore(userAgent string) float64 {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	for _, p := range botUserAgents {
		if strings.Contains(ua, p) {
			return 0.8
		}
	}
	if len(ua) < 10 {
		return 0.6
	}
	for _, p := range suspiciousUserAgents {
		if strings.Contains(ua, p) {
			return 0.6
		}
	}
	if unusualBrowserVersion(userAgent) {
		return 0.4
	}
	return 0.1
}

func unusualBrowserVersion(userAgent string) bool {
	if strings.Contains(userAgent, "MSIE ") {
		return true
	}
	for _, m := range browserVersion.FindAllStringSubmatch(userAgent, -1) {
		major, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		switch m[1] {
		case "Chrome", "Edg":
			if major < 70 || major > 200 {
				return true
			}
		case "Firefox":
			if major < 60 || major > 200 {
				return true
			}
		}
	}
	return false
}

// minPatternSamples is the fewest timestamps the regularity factor needs.
const minPatternSamples = 5

// regularityScore grades how machine-like the spacing of request timestamps is,
// using the coefficient of variation of inter-arrival times.
func regularityScore(timestamps []float64) float64 {
	if len(timestamps) < minPatternSamples {
		return 0.1
	}
	ts := append([]float64(nil), timestamps...)
	sort.Float64s(ts)

	intervals := make([]float64, 0, len(ts)-1)
	var sum float64
	for i := 1; i < len(ts); i++ {
		d := ts[i] - ts[i-1]
		intervals = append(intervals, d)
		sum += d
	}
	mean := sum / float64(len(intervals))
	if mean == 0 {
		return 0.9
	}

	var variance float64
	for _, d := range intervals {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(intervals))
	cov := math.Sqrt(variance) / mean

	switch {
	case cov < 0.1:
		return 0.9
	case cov < 0.3:
		return 0.6
	case cov > 2.0:
		return 0.4
	}
	return 0.1
}

// historyScore grades past behaviour: a recent block outweighs raw volume.
func historyScore(recentlyBlocked bool, dailyRequests int64) float64 {
	switch {
	case recentlyBlocked:
		return 0.8
	case dailyRequests > 10000:
		return 0.7
	case dailyRequests > 5000:
		return 0.5
	case dailyRequests > 1000:
		return 0.3
	}
	return 0.1
}

// frequencyScore compares the last minute's request rate with the per-second allowance of limit.
func frequencyScore(lastMinute int64, limit WindowLimit) float64 {
	if limit.MaxRequests <= 0 || limit.Window <= 0 {
		return 0
	}
	allowance := float64(limit.MaxRequests) / limit.Window.Seconds()
	rate := float64(lastMinute) / 60
	return math.Min(1, rate/allowance)
}

func combineRisk(w RiskWeights, frequency, userAgent, pattern, history float64) float64 {
	score := w.Frequency*frequency + w.UserAgent*userAgent + w.Pattern*pattern + w.History*history
	return math.Max(0, math.Min(100, score))
}
