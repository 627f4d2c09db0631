// SPDX-License-Identifier: MIT
package store

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestDecodeFloat(t *testing.T) {
	blob := make([]byte, 4)
	binary.LittleEndian.PutUint32(blob, math.Float32bits(-12.5))

	tests := []struct {
		name   string
		in     any
		want   float64
		wantOK bool
	}{
		{"float64", 47.5, 47.5, true},
		{"int64", int64(50), 50, true},
		{"float32 blob", blob, -12.5, true},
		{"text bytes", []byte("60.25"), 60.25, true},
		{"text string", "48", 48, true},
		{"garbage bytes", []byte("not a number"), 0, false},
		{"garbage string", "nope", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeFloat(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("decodeFloat(%v) = (%v, %v), want (%v, %v)",
					tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
