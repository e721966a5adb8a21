package audit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DeviceSummarySuite struct {
	suite.Suite
}

func TestDeviceSummarySuite(t *testing.T) {
	suite.Run(t, new(DeviceSummarySuite))
}

func (s *DeviceSummarySuite) TestUserAgentParsing() {
	s.Run("empty user agent yields nothing", func() {
		s.Empty(DeviceSummary(""))
		s.Empty(DeviceSummary("   "))
	})

	s.Run("chrome on desktop names browser and OS", func() {
		got := DeviceSummary("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		s.True(strings.HasPrefix(got, "Chrome on "), got)
		s.NotContains(got, "(mobile)")
	})

	s.Run("safari on iphone is tagged mobile", func() {
		got := DeviceSummary("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
		s.Contains(got, "iPhone")
		s.True(strings.HasSuffix(got, " (mobile)"), got)
	})

	s.Run("firefox on linux names browser", func() {
		got := DeviceSummary("Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
		s.True(strings.HasPrefix(got, "Firefox"), got)
		s.Contains(got, " on ")
	})

	s.Run("crawlers are tagged as bots", func() {
		got := DeviceSummary("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
		s.True(strings.HasPrefix(got, "bot: "), got)
	})

	s.Run("result has no surrounding whitespace", func() {
		got := DeviceSummary("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
		s.Equal(strings.TrimSpace(got), got)
	})
}
