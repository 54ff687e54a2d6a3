// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"errors"

	"github.com/goccy/go-json"

	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

// zoleoMessage is the payload queued by the Zoleo webhook.
type zoleoMessage struct {
	IMEI      string   `json:"imei"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Altitude  float64  `json:"altitude"`
	TimeSec   int64    `json:"time"`
	Speed     *float64 `json:"speed,omitempty"`
	Battery   int      `json:"battery"`
	Message   string   `json:"message,omitempty"`
	Emergency bool     `json:"emergency"`
}

// zoleoLowBattery is the battery percentage below which fixes are flagged.
const zoleoLowBattery = 10

// NewZoleoStrategy creates the Zoleo strategy.
func NewZoleoStrategy(queue Queue) Strategy {
	return &pushStrategy{kind: models.Zoleo, queue: queue, decode: decodeZoleo}
}

func decodeZoleo(raw []byte) (pushMessage, error) {
	var m zoleoMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return pushMessage{}, &ParseError{Err: err}
	}
	if m.IMEI == "" || m.TimeSec == 0 {
		return pushMessage{}, &ParseError{Err: errors.New("zoleo: missing imei or time")}
	}
	return pushMessage{
		account: m.IMEI,
		fix: livetrack.Fix{
			Lat:        m.Lat,
			Lon:        m.Lon,
			Alt:        m.Altitude,
			TimeSec:    m.TimeSec,
			Device:     models.Zoleo,
			Valid:      true,
			Emergency:  m.Emergency,
			LowBattery: m.Battery > 0 && m.Battery < zoleoLowBattery,
			Speed:      m.Speed,
			Message:    m.Message,
		},
	}, nil
}
