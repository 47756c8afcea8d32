package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserAgentScore(t *testing.T) {
	cases := []struct {
		ua   string
		want float64
	}{
		{"Googlebot/2.1 (+http://www.google.com/bot.html)", 0.8},
		{"curl/8.4.0", 0.8},
		{"python-requests/2.31.0", 0.8},
		{"", 0.6},
		{"Mozilla", 0.6},
		{"sqlmap/1.7.2#stable (https://sqlmap.org)", 0.6},
		{"Mozilla/5.0 (Windows NT 6.1) Chrome/49.0.2623.112 Safari/537.36", 0.4},
		{"Mozilla/4.0 (compatible; MSIE 6.0; Windows NT 5.1)", 0.4},
		{browserUA, 0.1},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", 0.1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, userAgentScore(tc.ua), tc.ua)
	}
}

func TestRegularityScore(t *testing.T) {
	series := func(gaps ...float64) []float64 {
		out := []float64{0}
		for _, g := range gaps {
			out = append(out, out[len(out)-1]+g)
		}
		return out
	}

	assert.Equal(t, 0.1, regularityScore(series(100, 100, 100)), "too few samples")
	assert.Equal(t, 0.9, regularityScore([]float64{5, 5, 5, 5, 5}), "zero mean interval")
	assert.Equal(t, 0.9, regularityScore(series(1000, 1000, 1000, 1000, 1000)))
	assert.Equal(t, 0.6, regularityScore(series(1000, 1200, 800, 1000, 1200, 800)))
	assert.Equal(t, 0.1, regularityScore(series(200, 1800, 500, 1500, 300)))
	assert.Equal(t, 0.4, regularityScore(series(1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 100000)))
}

func TestHistoryScore(t *testing.T) {
	assert.Equal(t, 0.8, historyScore(true, 0))
	assert.Equal(t, 0.7, historyScore(false, 10001))
	assert.Equal(t, 0.5, historyScore(false, 5001))
	assert.Equal(t, 0.3, historyScore(false, 1001))
	assert.Equal(t, 0.1, historyScore(false, 1000))
}

func TestFrequencyScore(t *testing.T) {
	limit := WindowLimit{Window: time.Minute, MaxRequests: 100}

	assert.InDelta(t, 0.5, frequencyScore(50, limit), 1e-9)
	assert.Equal(t, 1.0, frequencyScore(300, limit))
	assert.Zero(t, frequencyScore(10, WindowLimit{}))
}

func TestCombineRisk(t *testing.T) {
	w := DefaultRiskWeights()

	assert.Equal(t, 100.0, combineRisk(w, 1, 1, 1, 1))
	assert.InDelta(t, 10.0, combineRisk(w, 0.1, 0.1, 0.1, 0.1), 1e-9)
	assert.Equal(t, 100.0, combineRisk(RiskWeights{Frequency: 200}, 1, 0, 0, 0))
}

func TestIPMatcher(t *testing.T) {
	m, err := NewIPMatcher([]string{"192.168.0.0/16", "203.0.113.5", " 2001:db8::/32 ", "::ffff:10.0.0.0/104", ""})
	require.NoError(t, err)
	assert.Equal(t, 4, m.Len())

	assert.True(t, m.ContainsString("192.168.44.1"))
	assert.True(t, m.ContainsString("203.0.113.5"))
	assert.False(t, m.ContainsString("203.0.113.6"))
	assert.True(t, m.ContainsString("2001:db8:ffff::1"))
	assert.False(t, m.ContainsString("2001:db9::1"))
	assert.True(t, m.ContainsString("10.9.8.7"))
	assert.True(t, m.ContainsString("::ffff:192.168.1.1"))
	assert.False(t, m.ContainsString("not-an-ip"))

	_, err = NewIPMatcher([]string{"300.1.1.1"})
	assert.Error(t, err)

	var empty *IPMatcher
	assert.False(t, empty.ContainsString("192.168.1.1"))
}

func TestIdentifierFamily(t *testing.T) {
	family, ok := identifierFamily("ip:192.0.2.77")
	require.True(t, ok)
	assert.Equal(t, "192.0.2.0/24", family)

	family, ok = identifierFamily("ip:2001:db8:1:2:3:4:5:6")
	require.True(t, ok)
	assert.Equal(t, "2001:db8:1:2::/64", family)

	_, ok = identifierFamily("user:42")
	assert.False(t, ok)

	_, ok = identifierFamily("ip:garbage")
	assert.False(t, ok)
}
