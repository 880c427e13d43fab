package hexutil

import (
	"bytes"
	"strings"
	"testing"
)

func TestTrim0x(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0xabcd", "abcd"},
		{"0Xabcd", "abcd"},
		{"abcd", "abcd"},
		{"0x", ""},
		{"", ""},
		{"0", "0"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := Trim0x(tc.input); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestDecodeBytes_Valid(t *testing.T) {
	tests := []struct {
		input    string
		expected []byte
	}{
		{"0x", []byte{}},
		{"0x00", []byte{0x00}},
		{"0xdeadbeef", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"DEADBEEF", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"  0x0102  ", []byte{0x01, 0x02}},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := DecodeBytes(tc.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tc.expected) {
				t.Errorf("expected %x, got %x", tc.expected, got)
			}
		})
	}
}

func TestDecodeBytes_Invalid(t *testing.T) {
	tests := []struct {
		input       string
		errContains string
	}{
		{"0x123", "odd length"},
		{"0xzz", "decoding hex"},
		{"hello!", "decoding hex"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			_, err := DecodeBytes(tc.input)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.errContains) {
				t.Errorf("expected error containing %q, got %q", tc.errContains, err.Error())
			}
		})
	}
}

func TestDecodeFixed32(t *testing.T) {
	id := "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"
	got, err := DecodeFixed32(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0] != 0xff || got[31] != 0xce {
		t.Errorf("unexpected decoded bytes: %x", got)
	}

	if _, err := DecodeFixed32("0xabcd"); err == nil {
		t.Error("expected error for short input")
	}
	if _, err := DecodeFixed32(id + "00"); err == nil {
		t.Error("expected error for long input")
	}
}
