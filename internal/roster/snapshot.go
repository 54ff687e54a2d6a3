// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package roster

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// SnapshotVersion is bumped whenever the snapshot layout changes incompatibly.
const SnapshotVersion = 1

// ErrSnapshotVersion is returned when decoding a snapshot written by an incompatible version.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

type snapshot struct {
	Version int     `cbor:"v"`
	Roster  *Roster `cbor:"r"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	// zstd encoders and decoders are safe for concurrent use.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	// Core Deterministic Encoding: the same roster always produces the same
	// bytes, so unchanged snapshots compress and diff identically.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("roster: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("roster: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("roster: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("roster: zstd decoder initialization failed: " + err.Error())
	}
}

// EncodeSnapshot serializes r as zstd-compressed CBOR.
func EncodeSnapshot(r *Roster) ([]byte, error) {
	raw, err := encMode.Marshal(snapshot{Version: SnapshotVersion, Roster: r})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Roster, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap snapshot
	if err := decMode.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}
	if snap.Roster == nil {
		return nil, errors.New("decode snapshot: missing roster")
	}
	snap.Roster.normalize()
	return snap.Roster, nil
}
