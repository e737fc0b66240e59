package control

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// loadCfgPayload is the subset of the URL-encoded JSON "load_cfg" body this
// client cares about: the GNSS fix embedded as a "(lat,lon,...)" string.
type loadCfgPayload struct {
	RxGPS string `json:"rx_gps"`
}

// handleLoadCfg decodes a load_cfg value, extracts the first two floats of
// rx_gps as (lat, lon), and invokes the GNSS callback, matching
// _process_msg_param's load_cfg branch in kiwiclient.py.
func (c *Channel) handleLoadCfg(value string) error {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return fmt.Errorf("control: load_cfg url-decode: %w", err)
	}
	var payload loadCfgPayload
	if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
		return fmt.Errorf("control: load_cfg json: %w", err)
	}
	lat, lon, ok := parseRxGPS(payload.RxGPS)
	if !ok {
		c.log.Debugf("load_cfg: rx_gps not parseable: %q", payload.RxGPS)
		return nil
	}
	if c.cfg.ConnIndex == 0 {
		c.log.Infof("GNSS position: lat,lon=[%+6.2f, %+7.2f]", lat, lon)
	}
	if c.cb.OnGNSSPosition != nil {
		c.cb.OnGNSSPosition(lat, lon)
	}
	return nil
}

// parseRxGPS parses a "(lat,lon,...)" string, possibly itself
// URL-escaped, into its first two float fields.
func parseRxGPS(raw string) (lat, lon float64, ok bool) {
	unescaped, err := url.QueryUnescape(raw)
	if err == nil {
		raw = unescaped
	}
	raw = strings.TrimPrefix(raw, "(")
	raw = strings.TrimSuffix(raw, ")")
	parts := strings.Split(raw, ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
