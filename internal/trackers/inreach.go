// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

// inreachLookback bounds the history requested for a device.
const inreachLookback = 24 * time.Hour

// InreachStrategy reads Garmin MapShare KML feeds.
//
// An account is either a MapShare name or a full feed URL. A MapShare
// password goes in the URL user info ("https://:secret@share.garmin.com/Feed/Share/name").
type InreachStrategy struct {
	baseURL     string
	concurrency int
	client      *Client
	clock       func() time.Time
}

// NewInreachStrategy creates the inReach strategy.
func NewInreachStrategy(cfg *config.VendorConfig, client *Client, clock func() time.Time) *InreachStrategy {
	return &InreachStrategy{
		baseURL:     cfg.URL,
		concurrency: max(cfg.Concurrency, 1),
		client:      client,
		clock:       clock,
	}
}

func (s *InreachStrategy) Kind() models.TrackerKind { return models.Inreach }
func (s *InreachStrategy) FetchAll() bool           { return false }
func (s *InreachStrategy) Curve() Curve             { return inreachCurve }

// Fetch requests each feed from a small worker pool.
func (s *InreachStrategy) Fetch(ctx context.Context, devices []Device, result *FetchCycleResult) error {
	if err := s.client.Ready(ctx); err != nil {
		return err
	}
	return pooled(ctx, devices, s.concurrency, func(ctx context.Context, d Device) error {
		return s.fetchDevice(ctx, d, result)
	})
}

func (s *InreachStrategy) fetchDevice(ctx context.Context, d Device, result *FetchCycleResult) error {
	feedURL, password, err := s.feedURL(d)
	if err != nil {
		result.DeviceError(d.PilotID, err)
		return nil
	}

	var header http.Header
	if password != "" {
		header = http.Header{}
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(":"+password)))
	}

	body, err := s.client.Get(ctx, feedURL, header)
	if err != nil {
		if isRateLimit(err) {
			return err
		}
		var he *HTTPError
		if errors.As(err, &he) && (he.StatusCode == http.StatusNotFound || he.StatusCode == http.StatusUnauthorized) {
			err = ErrInvalidAccount
		}
		result.DeviceError(d.PilotID, err)
		return nil
	}

	fixes, err := parseInreachKML(body)
	if err != nil {
		result.DeviceError(d.PilotID, err)
		return nil
	}
	result.AddFixes(d.PilotID, fixes)
	return nil
}

// feedURL returns the request URL of a device and its optional password.
func (s *InreachStrategy) feedURL(d Device) (string, string, error) {
	raw := strings.TrimSpace(d.Account)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = s.baseURL + url.PathEscape(raw)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", ErrInvalidAccount
	}

	var password string
	if u.User != nil {
		password, _ = u.User.Password()
		u.User = nil
	}

	since := s.clock().Add(-inreachLookback)
	if last := time.Unix(d.LastFixSec+1, 0); d.LastFixSec > 0 && last.After(since) {
		since = last
	}
	q := u.Query()
	q.Set("d1", since.UTC().Format("2006-01-02T15:04:05Z"))
	u.RawQuery = q.Encode()
	return u.String(), password, nil
}

type inreachKML struct {
	Placemarks []inreachPlacemark `xml:"Document>Folder>Placemark"`
}

type inreachPlacemark struct {
	When string        `xml:"TimeStamp>when"`
	Data []inreachData `xml:"ExtendedData>Data"`
}

type inreachData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// parseInreachKML extracts the fixes of a MapShare feed. Placemarks without
// a timestamp (the track line) are skipped.
func parseInreachKML(body []byte) ([]livetrack.Fix, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var doc inreachKML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &ParseError{Err: err}
	}

	var fixes []livetrack.Fix
	for _, pm := range doc.Placemarks {
		if pm.When == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, pm.When)
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		data := make(map[string]string, len(pm.Data))
		for _, d := range pm.Data {
			data[d.Name] = strings.TrimSpace(d.Value)
		}

		lat, errLat := strconv.ParseFloat(data["Latitude"], 64)
		lon, errLon := strconv.ParseFloat(data["Longitude"], 64)
		if errLat != nil || errLon != nil {
			continue
		}
		fix := livetrack.Fix{
			Lat:       lat,
			Lon:       lon,
			Alt:       leadingFloat(data["Elevation"]),
			TimeSec:   ts.Unix(),
			Device:    models.Inreach,
			Valid:     strings.EqualFold(data["Valid GPS Fix"], "true"),
			Emergency: strings.EqualFold(data["In Emergency"], "true"),
			Message:   data["Text"],
		}
		if v := data["Velocity"]; v != "" {
			speed := leadingFloat(v)
			fix.Speed = &speed
		}
		fixes = append(fixes, fix)
	}
	return fixes, nil
}

// leadingFloat parses the number at the start of values like "1234.56 m from MSL".
func leadingFloat(s string) float64 {
	field, _, _ := strings.Cut(strings.TrimSpace(s), " ")
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0
	}
	return v
}
