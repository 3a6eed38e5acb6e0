package enricher

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestEnrich_UserAgent(t *testing.T) {
	e := NewEnricher("")
	defer e.Close()

	mobile := e.Enrich("Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1", "203.0.113.7:5123")
	assert.Equal(t, "mobile", mobile.DeviceType)
	assert.Equal(t, "Safari", mobile.Browser)
	assert.Empty(t, mobile.Country)

	bot := e.Enrich("Googlebot/2.1 (+http://www.google.com/bot.html)", "")
	assert.Equal(t, "bot", bot.DeviceType)

	assert.Equal(t, "", e.Enrich("", "").DeviceType)
}

func TestNewEnricher_WarnsOnBadGeoIPPath(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	e := NewEnricher(filepath.Join(t.TempDir(), "missing.mmdb"))
	defer e.Close()

	assert.Contains(t, buf.String(), "country enrichment disabled")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Empty(t, e.Enrich("", "203.0.113.7:5123").Country)
}

func TestNewEnricher_NoPathIsSilent(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	NewEnricher("").Close()
	assert.Empty(t, buf.String())
}
