//go:build cgo

package main

import (
	"errors"
	"testing"

	"github.com/logicossoftware/go-apng"
)

func TestCheckFrameSize(t *testing.T) {
	l := apng.DefaultLimits()
	cases := []struct {
		name string
		w, h int
		ok   bool
	}{
		{"small", 64, 32, true},
		{"max pixels", 8192, 8192, true},
		{"width", int(l.MaxWidth) + 1, 1, false},
		{"height", 1, int(l.MaxHeight) + 1, false},
		{"pixels", 1 << 16, 1 << 16, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkFrameSize(l, tc.w, tc.h)
			if tc.ok != (err == nil) {
				t.Fatalf("got %v", err)
			}
			if err != nil && !errors.Is(err, apng.ErrLimitExceeded) {
				t.Fatalf("expected ErrLimitExceeded, got %v", err)
			}
		})
	}

	// Byte count past a C int even when the pixel limit allows it.
	wide := apng.Limits{MaxWidth: 1 << 16, MaxHeight: 1 << 16, MaxPixels: 1 << 32}
	if err := checkFrameSize(wide, 1<<15, 1<<14); !errors.Is(err, apng.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}
