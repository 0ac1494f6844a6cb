package indicators

import (
	"testing"
)

func TestRSISeries(t *testing.T) {
	tests := []struct {
		name      string
		closings  []float64
		period    int
		wantError bool
		check     func(t *testing.T, last float64)
	}{
		{
			name: "all gains read overbought",
			closings: []float64{
				44.0, 44.5, 45.0, 45.5, 46.0, 46.5, 47.0, 47.5, 48.0, 48.5,
				49.0, 49.5, 50.0, 50.5, 51.0, 51.5, 52.0, 52.5, 53.0, 53.5,
			},
			period: 14,
			check: func(t *testing.T, last float64) {
				if last <= 70 {
					t.Errorf("RSI = %.2f, want > 70 for a pure up-series", last)
				}
			},
		},
		{
			name: "all losses read oversold",
			closings: []float64{
				53.5, 53.0, 52.5, 52.0, 51.5, 51.0, 50.5, 50.0, 49.5, 49.0,
				48.5, 48.0, 47.5, 47.0, 46.5, 46.0, 45.5, 45.0, 44.5, 44.0,
			},
			period: 14,
			check: func(t *testing.T, last float64) {
				if last >= 30 {
					t.Errorf("RSI = %.2f, want < 30 for a pure down-series", last)
				}
			},
		},
		{
			name:      "period larger than input",
			closings:  []float64{1, 2, 3},
			period:    14,
			wantError: true,
		},
		{
			name:      "zero period",
			closings:  []float64{1, 2, 3},
			period:    0,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := RSISeries(tt.closings, tt.period)
			if tt.wantError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(out) == 0 {
				t.Fatal("expected RSI values")
			}

			last := out[len(out)-1]
			if last < 0 || last > 100 {
				t.Errorf("RSI %.2f outside [0, 100]", last)
			}
			if tt.check != nil {
				tt.check(t, last)
			}
		})
	}
}

func TestClassifyRSI(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{15, "oversold"},
		{29.99, "oversold"},
		{30, "neutral"},
		{50, "neutral"},
		{70, "neutral"},
		{70.01, "overbought"},
		{95, "overbought"},
	}

	for _, tt := range tests {
		if got := ClassifyRSI(tt.value); got != tt.want {
			t.Errorf("ClassifyRSI(%.2f) = %s, want %s", tt.value, got, tt.want)
		}
	}
}
