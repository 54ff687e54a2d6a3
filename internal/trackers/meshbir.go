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

// meshbirMessage is the payload queued by the Meshtastic bridge. Type is
// "position" or "message". Text messages are flagged as invalid fixes.
type meshbirMessage struct {
	Type     string   `json:"type"`
	DeviceID string   `json:"user_id"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Alt      float64  `json:"alt"`
	TimeMs   int64    `json:"time"`
	Speed    *float64 `json:"speed,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// NewMeshbirStrategy creates the Meshbir strategy.
func NewMeshbirStrategy(queue Queue) Strategy {
	return &pushStrategy{kind: models.Meshbir, queue: queue, decode: decodeMeshbir}
}

func decodeMeshbir(raw []byte) (pushMessage, error) {
	var m meshbirMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return pushMessage{}, &ParseError{Err: err}
	}
	if m.DeviceID == "" || m.TimeMs == 0 {
		return pushMessage{}, &ParseError{Err: errors.New("meshbir: missing device or time")}
	}
	if m.Type != "position" && m.Type != "message" {
		return pushMessage{}, &ParseError{Err: errors.New("meshbir: unknown message type " + m.Type)}
	}
	fix := livetrack.Fix{
		Lat:     m.Lat,
		Lon:     m.Lon,
		Alt:     m.Alt,
		TimeSec: m.TimeMs / 1000,
		Device:  models.Meshbir,
		Valid:   m.Type == "position",
		Speed:   m.Speed,
	}
	if m.Type == "message" {
		fix.Message = m.Message
	}
	return pushMessage{account: m.DeviceID, fix: fix}, nil
}
