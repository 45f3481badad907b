// RailAtlas - Minecraft Rail Network Telemetry and Geometry Mirror
// Copyright 2026 RailAtlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/railatlas/railatlas

// Package blockpos packs and unpacks Minecraft block coordinates.
//
// A block position is transmitted by Beacon as a single signed 64-bit
// integer using the vanilla layout: x in the top 26 bits (shifted 38),
// z in the middle 26 bits (shifted 12), y in the low 12 bits. Each field
// is an independent two's-complement value, so Decode sign-extends every
// field before returning it.
//
// Representable range: x,z in [-2^25, 2^25-1], y in [-2^11, 2^11-1].
// Decode(Encode(p)) == p for every representable p.
package blockpos

import (
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

const (
	xBits = 26
	yBits = 12
	zBits = 26

	xShift = 38
	zShift = 12

	xMask = (1 << xBits) - 1
	yMask = (1 << yBits) - 1
	zMask = (1 << zBits) - 1
)

// Pos is a block coordinate in a Minecraft dimension.
type Pos struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
	Z int64 `json:"z"`
}

// String returns the position as "x,y,z".
func (p Pos) String() string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

// Encode packs a position into a single signed 64-bit integer. Coordinates
// outside the representable range are masked to their field width, matching
// the behavior of the in-game encoder.
func Encode(p Pos) int64 {
	packed := (p.X & xMask) << xShift
	packed |= (p.Z & zMask) << zShift
	packed |= p.Y & yMask
	return packed
}

// Decode unpacks a packed position, sign-extending each field.
func Decode(packed int64) Pos {
	return Pos{
		X: signExtend((packed>>xShift)&xMask, xBits),
		Y: signExtend(packed&yMask, yBits),
		Z: signExtend((packed>>zShift)&zMask, zBits),
	}
}

// signExtend interprets the low width bits of v as a two's-complement value.
func signExtend(v int64, width int) int64 {
	shift := 64 - width
	return v << shift >> shift
}

// FromAny decodes a packed position from a loosely typed payload field.
// Beacon payloads deliver packed positions as JSON numbers or base-10
// strings depending on the log source, so this accepts int64,
// json.Number, float64 (truncated), and string forms. It reports
// ok=false on anything it cannot parse instead of returning an error.
// Callers decoding wire payloads must use a UseNumber decoder: a plain
// float64 decode cannot represent the high x bits exactly.
func FromAny(v any) (Pos, bool) {
	n, ok := Int64FromAny(v)
	if !ok {
		return Pos{}, false
	}
	return Decode(n), true
}

// Int64FromAny coerces a loosely typed payload field to int64. Floats are
// truncated; NaN and infinities are rejected. json.Number parses as an
// exact integer first so 64-bit packed values survive.
func Int64FromAny(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case uint64:
		return int64(t), true
	case json.Number:
		if n, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return n, true
		}
		f, err := t.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
