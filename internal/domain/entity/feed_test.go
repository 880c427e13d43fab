package entity

import (
	"strings"
	"testing"
	"time"
)

const ethUSD = "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"

func TestParseFeedID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "without prefix", input: ethUSD},
		{name: "with prefix", input: "0x" + ethUSD},
		{name: "upper case", input: strings.ToUpper(ethUSD)},
		{name: "too short", input: "0xabcd", wantErr: true},
		{name: "not hex", input: strings.Repeat("zz", 32), wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseFeedID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.Hex() != ethUSD {
				t.Errorf("Hex() = %s, want %s", id.Hex(), ethUSD)
			}
			if id.String() != "0x"+ethUSD {
				t.Errorf("String() = %s, want 0x%s", id.String(), ethUSD)
			}
		})
	}
}

func TestNewFeedSpec(t *testing.T) {
	id, _ := ParseFeedID(ethUSD)

	tests := []struct {
		name        string
		id          FeedID
		symbol      string
		deviation   float64
		heartbeat   uint64
		networks    []string
		errContains string
	}{
		{name: "valid", id: id, symbol: "ETH/USD", deviation: 0.5, heartbeat: 3600, networks: []string{"base"}},
		{name: "zero deviation is allowed", id: id, symbol: "USDC/USD", deviation: 0, heartbeat: 60, networks: []string{"base"}},
		{name: "zero id", symbol: "ETH/USD", deviation: 1, heartbeat: 60, networks: []string{"base"}, errContains: "feed id"},
		{name: "empty symbol", id: id, deviation: 1, heartbeat: 60, networks: []string{"base"}, errContains: "symbol"},
		{name: "negative deviation", id: id, symbol: "ETH/USD", deviation: -1, heartbeat: 60, networks: []string{"base"}, errContains: "non-negative"},
		{name: "zero heartbeat", id: id, symbol: "ETH/USD", deviation: 1, networks: []string{"base"}, errContains: "heartbeat"},
		{name: "no networks", id: id, symbol: "ETH/USD", deviation: 1, heartbeat: 60, errContains: "at least one network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed, err := NewFeedSpec(tt.id, tt.symbol, tt.deviation, tt.heartbeat, tt.networks)
			if tt.errContains != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errContains)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %q", tt.errContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if feed.Heartbeat() != time.Duration(tt.heartbeat)*time.Second {
				t.Errorf("Heartbeat() = %v", feed.Heartbeat())
			}
		})
	}
}

func TestFeedSpec_IsStable(t *testing.T) {
	tests := []struct {
		deviation float64
		want      bool
	}{
		{0, true},
		{0.05, true},
		{0.1, true},
		{0.11, false},
		{1, false},
	}
	for _, tt := range tests {
		f := FeedSpec{DeviationThresholdPct: tt.deviation}
		if got := f.IsStable(); got != tt.want {
			t.Errorf("IsStable() with %v = %v, want %v", tt.deviation, got, tt.want)
		}
	}
}

func TestFeedSpec_TargetsNetwork(t *testing.T) {
	f := FeedSpec{Networks: []string{"base", "arbitrum"}}
	if !f.TargetsNetwork("base") {
		t.Error("expected feed to target base")
	}
	if f.TargetsNetwork("optimism") {
		t.Error("expected feed not to target optimism")
	}
}

func TestFeedState_IsObserved(t *testing.T) {
	if (FeedState{}).IsObserved() {
		t.Error("zero state must be unobserved")
	}
	if !(FeedState{LastPrice: 1}).IsObserved() {
		t.Error("non-zero price must be observed")
	}
}

func TestPairKey_DistinctAcrossNetworks(t *testing.T) {
	id, _ := ParseFeedID(ethUSD)
	m := map[PairKey]int{
		{FeedID: id, Network: "a:b"}: 1,
		{FeedID: id, Network: "a"}:   2,
	}
	if len(m) != 2 {
		t.Fatalf("expected 2 distinct keys, got %d", len(m))
	}
}
