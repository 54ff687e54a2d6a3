// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

// SPOT error codes.
const (
	spotInvalidFeed = "E-0195"
	spotNoMessages  = "E-0160"
)

const spotLookback = 24 * time.Hour

var spotFeedID = regexp.MustCompile(`^\w+$`)

// SpotStrategy reads SPOT public feeds, one device at a time.
type SpotStrategy struct {
	baseURL string
	client  *Client
	clock   func() time.Time
}

// NewSpotStrategy creates the SPOT strategy.
func NewSpotStrategy(cfg *config.VendorConfig, client *Client, clock func() time.Time) *SpotStrategy {
	return &SpotStrategy{baseURL: cfg.URL, client: client, clock: clock}
}

func (s *SpotStrategy) Kind() models.TrackerKind { return models.Spot }
func (s *SpotStrategy) FetchAll() bool           { return false }
func (s *SpotStrategy) Curve() Curve             { return spotCurve }

func (s *SpotStrategy) Fetch(ctx context.Context, devices []Device, result *FetchCycleResult) error {
	return sequential(ctx, devices, func(ctx context.Context, d Device) error {
		return s.fetchDevice(ctx, d, result)
	})
}

func (s *SpotStrategy) fetchDevice(ctx context.Context, d Device, result *FetchCycleResult) error {
	id := strings.TrimSpace(d.Account)
	if !spotFeedID.MatchString(id) {
		result.DeviceError(d.PilotID, ErrInvalidAccount)
		return nil
	}

	since := s.clock().Add(-spotLookback)
	if last := time.Unix(d.LastFixSec+1, 0); d.LastFixSec > 0 && last.After(since) {
		since = last
	}
	feedURL := s.baseURL + url.PathEscape(id) + "/message.json?startDate=" +
		url.QueryEscape(since.UTC().Format("2006-01-02T15:04:05-0000"))

	body, err := s.client.Get(ctx, feedURL, nil)
	if err != nil {
		if isRateLimit(err) {
			return err
		}
		result.DeviceError(d.PilotID, err)
		return nil
	}

	fixes, err := parseSpotFeed(body)
	if err != nil {
		result.DeviceError(d.PilotID, err)
		return nil
	}
	result.AddFixes(d.PilotID, fixes)
	return nil
}

type spotFeed struct {
	Response struct {
		FeedMessageResponse *struct {
			Messages struct {
				// Message is an object for a single message, an array otherwise.
				Message json.RawMessage `json:"message"`
			} `json:"messages"`
		} `json:"feedMessageResponse"`
		Errors *struct {
			Error struct {
				Code string `json:"code"`
				Text string `json:"text"`
			} `json:"error"`
		} `json:"errors"`
	} `json:"response"`
}

type spotMessage struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Altitude       float64 `json:"altitude"`
	UnixTime       int64   `json:"unixTime"`
	MessageType    string  `json:"messageType"`
	MessageContent string  `json:"messageContent"`
	BatteryState   string  `json:"batteryState"`
}

// parseSpotFeed extracts the fixes of a SPOT feed. An invalid feed maps to
// ErrInvalidAccount and an empty feed to no fixes.
func parseSpotFeed(body []byte) ([]livetrack.Fix, error) {
	var feed spotFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, &ParseError{Err: err}
	}

	if e := feed.Response.Errors; e != nil {
		switch e.Error.Code {
		case spotNoMessages:
			return nil, nil
		case spotInvalidFeed:
			return nil, ErrInvalidAccount
		default:
			return nil, fmt.Errorf("spot error %s: %s", e.Error.Code, e.Error.Text)
		}
	}
	if feed.Response.FeedMessageResponse == nil {
		return nil, nil
	}

	raw := bytes.TrimSpace(feed.Response.FeedMessageResponse.Messages.Message)
	var messages []spotMessage
	switch {
	case len(raw) == 0:
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &messages); err != nil {
			return nil, &ParseError{Err: err}
		}
	default:
		var m spotMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &ParseError{Err: err}
		}
		messages = append(messages, m)
	}

	fixes := make([]livetrack.Fix, 0, len(messages))
	for _, m := range messages {
		msgType := strings.ToUpper(m.MessageType)
		fix := livetrack.Fix{
			Lat:        m.Latitude,
			Lon:        m.Longitude,
			Alt:        m.Altitude,
			TimeSec:    m.UnixTime,
			Device:     models.Spot,
			Valid:      true,
			Emergency:  msgType == "HELP" || msgType == "SOS",
			LowBattery: strings.EqualFold(m.BatteryState, "LOW"),
		}
		if msgType == "CUSTOM" || msgType == "OK" || fix.Emergency {
			fix.Message = m.MessageContent
		}
		fixes = append(fixes, fix)
	}
	return fixes, nil
}
