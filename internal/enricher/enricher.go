package enricher

import (
	"net"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"

	"github.com/reviewsight/reviewsight/internal/model"
)

// Enricher derives client metadata from request headers.
type Enricher struct {
	geoIP *geoip2.Reader
}

func NewEnricher(geoIPPath string) *Enricher {
	// Try to load GeoIP database
	var geoIP *geoip2.Reader
	if geoIPPath != "" {
		reader, err := geoip2.Open(geoIPPath)
		if err != nil {
			log.Warn().Err(err).Str("path", geoIPPath).Msg("GeoIP database unavailable, country enrichment disabled")
		} else {
			geoIP = reader
		}
	}

	return &Enricher{
		geoIP: geoIP,
	}
}

func (e *Enricher) Enrich(userAgentString, clientIP string) model.ClientInfo {
	var info model.ClientInfo

	// Parse user agent
	if userAgentString != "" {
		ua := useragent.New(userAgentString)
		info.Browser, _ = ua.Browser()
		info.OS = ua.OS()
		info.DeviceType = deviceType(ua)
	}

	// GeoIP lookup
	if e != nil && e.geoIP != nil && clientIP != "" {
		if host, _, err := net.SplitHostPort(clientIP); err == nil {
			clientIP = host
		}
		if ip := net.ParseIP(clientIP); ip != nil {
			if record, err := e.geoIP.Country(ip); err == nil {
				info.Country = record.Country.IsoCode
			}
		}
	}

	return info
}

func deviceType(ua *useragent.UserAgent) string {
	if ua.Mobile() {
		return "mobile"
	}
	if ua.Bot() {
		return "bot"
	}
	return "desktop"
}

func (e *Enricher) Close() {
	if e != nil && e.geoIP != nil {
		e.geoIP.Close()
	}
}
