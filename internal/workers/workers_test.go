package workers

import (
	"runtime"
	"testing"
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func TestCount(t *testing.T) {
	availableCPU := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		minExpect  int
		maxExpect  int
	}{
		{"CPU-bound task (1.0x multiplier)", 1.0, 0, 1, availableCPU},
		{"I/O-bound task (2.0x multiplier)", 2.0, 0, 1, availableCPU * 2},
		{"Mixed task (1.5x multiplier)", 1.5, 0, 1, int(float64(availableCPU) * 1.5)},
		{"With limit lower than calculated", 2.0, 2, 1, 2},
		{"Very low multiplier", 0.1, 0, 1, maxInt(1, int(float64(availableCPU)*0.1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(tt.multiplier, tt.limit)

			if got < tt.minExpect {
				t.Errorf("Count(%v, %d) = %d, expected >= %d", tt.multiplier, tt.limit, got, tt.minExpect)
			}
			if got > tt.maxExpect {
				t.Errorf("Count(%v, %d) = %d, expected <= %d", tt.multiplier, tt.limit, got, tt.maxExpect)
			}
		})
	}
}

func TestForHelpers(t *testing.T) {
	if got := ForCPU(1); got != 1 {
		t.Errorf("ForCPU(1) = %d, want 1", got)
	}
	if got := ForIO(8); got < 1 || got > 8 {
		t.Errorf("ForIO(8) = %d, want 1..8", got)
	}
	if got := ForMixed(0); got < 1 {
		t.Errorf("ForMixed(0) = %d, want >= 1", got)
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback int
		limit    int
		expected int
	}{
		{"Unset uses fallback", "", 2, 0, 2},
		{"Valid override", "8", 2, 0, 8},
		{"Override capped by limit", "20", 2, 10, 10},
		{"Fallback capped by limit", "", 12, 4, 4},
		{"Non-numeric override ignored", "lots", 2, 0, 2},
		{"Zero override ignored", "0", 3, 0, 3},
		{"Negative override ignored", "-5", 3, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvThumbnailWorkers, tt.envValue)

			got := FromEnv(EnvThumbnailWorkers, tt.fallback, tt.limit)
			if got != tt.expected {
				t.Errorf("FromEnv(%q=%q, %d, %d) = %d, want %d",
					EnvThumbnailWorkers, tt.envValue, tt.fallback, tt.limit, got, tt.expected)
			}
		})
	}
}

func TestFromEnvAutoSize(t *testing.T) {
	t.Setenv(EnvLoaderConcurrency, "")

	got := FromEnv(EnvLoaderConcurrency, 0, 3)
	if got < 1 || got > 3 {
		t.Errorf("FromEnv with auto fallback = %d, want 1..3", got)
	}
}
