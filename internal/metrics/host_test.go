package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestParseLoadAvg(t *testing.T) {
	tests := []struct {
		in          string
		l1, l5, l15 float64
	}{
		{"0.52 0.41 0.30 2/512 12345\n", 0.52, 0.41, 0.30},
		{"1.00 2.00", 0, 0, 0},
		{"", 0, 0, 0},
	}
	for _, tt := range tests {
		l1, l5, l15 := parseLoadAvg(strings.NewReader(tt.in))
		if l1 != tt.l1 || l5 != tt.l5 || l15 != tt.l15 {
			t.Errorf("parseLoadAvg(%q) = %v %v %v", tt.in, l1, l5, l15)
		}
	}
}

func TestParseMemInfo(t *testing.T) {
	in := `MemTotal:        8000000 kB
MemFree:          100000 kB
MemAvailable:    4000000 kB
Buffers:           20000 kB
`
	total, avail := parseMemInfo(strings.NewReader(in))
	if total != 8000000*1024 || avail != 4000000*1024 {
		t.Errorf("got %d %d", total, avail)
	}
}

func TestHostCollector(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewHostCollector(t.TempDir())); err != nil {
		t.Fatal(err)
	}
	n, err := testutil.GatherAndCount(reg, "echotherm_host_load")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("load series = %d, want 3", n)
	}
}
