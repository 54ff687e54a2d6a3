// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package livetrack

import "github.com/vicb/flyXC-sub000/internal/models"

// Flags word layout:
//
//	bit 0      valid
//	bit 1      emergency
//	bit 2      low battery
//	bits 8-15  vendor ordinal
const (
	flagValid     uint32 = 1 << 0
	flagEmergency uint32 = 1 << 1
	flagLowBat    uint32 = 1 << 2

	deviceShift        = 8
	deviceMask  uint32 = 0xff << deviceShift
)

// FlagOptions are the inputs packed into a fix's flags.
type FlagOptions struct {
	Device     models.TrackerKind
	Valid      bool
	Emergency  bool
	LowBattery bool
}

// PackFlags encodes opts into a flags word.
func PackFlags(opts FlagOptions) uint32 {
	flags := uint32(opts.Device) << deviceShift
	if opts.Valid {
		flags |= flagValid
	}
	if opts.Emergency {
		flags |= flagEmergency
	}
	if opts.LowBattery {
		flags |= flagLowBat
	}
	return flags
}

// UnpackFlags is the inverse of PackFlags.
func UnpackFlags(flags uint32) FlagOptions {
	return FlagOptions{
		Device:     DeviceOf(flags),
		Valid:      IsValidFix(flags),
		Emergency:  IsEmergencyFix(flags),
		LowBattery: IsLowBatFix(flags),
	}
}

// IsValidFix reports whether the vendor marked the fix as a valid position.
func IsValidFix(flags uint32) bool { return flags&flagValid != 0 }

// IsEmergencyFix reports whether the fix was sent in emergency mode.
func IsEmergencyFix(flags uint32) bool { return flags&flagEmergency != 0 }

// IsLowBatFix reports whether the device reported a low battery.
func IsLowBatFix(flags uint32) bool { return flags&flagLowBat != 0 }

// DeviceOf returns the vendor that produced the fix.
func DeviceOf(flags uint32) models.TrackerKind {
	return models.TrackerKind((flags & deviceMask) >> deviceShift)
}
