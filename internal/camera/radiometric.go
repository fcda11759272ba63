package camera

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/echotherm/internal/thermal"
)

// Radiometric capture states. A request moves Idle -> Requested ->
// InProgress -> Idle; requests are rejected outside Idle.
const (
	radioIdle int32 = iota
	radioRequested
	radioInProgress
)

type radiometricRequest struct {
	state atomic.Int32

	mu     sync.Mutex
	path   string // empty selects a name from the frame timestamp
	format thermal.Format
}

// request moves Idle -> Requested. It returns the state that blocked the
// request on failure.
func (r *radiometricRequest) request(path string, format thermal.Format) (int32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.CompareAndSwap(radioIdle, radioRequested) {
		return r.state.Load(), false
	}
	r.path = path
	r.format = format
	return radioRequested, true
}

// begin moves Requested -> InProgress and returns the request.
func (r *radiometricRequest) begin() (path string, format thermal.Format, ok bool) {
	if !r.state.CompareAndSwap(radioRequested, radioInProgress) {
		return "", 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path, r.format, true
}

func (r *radiometricRequest) finish() {
	r.state.Store(radioIdle)
}

// writeRadiometricCSV serializes a thermography image with the frame's
// identification and header.
func writeRadiometricCSV(path string, f thermal.Frame, im *thermal.Image) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	w := csv.NewWriter(file)
	records := [][]string{
		{"[identification]"},
		{"filename", path},
		{"frame_counter", strconv.FormatUint(uint64(f.Counter()), 10)},
		{"utc_time", f.Timestamp().UTC().Format(time.RFC3339Nano)},
		{"[header]"},
	}
	for _, h := range f.Header() {
		records = append(records, []string{h.Key, h.Value})
	}
	records = append(records,
		[]string{"[matrix]"},
		[]string{"rows", strconv.Itoa(im.Height)},
		[]string{"cols", strconv.Itoa(im.Width)},
		[]string{"format", im.Format.String()},
		[]string{"units", "celsius"},
	)
	if err := w.WriteAll(records); err != nil {
		return err
	}

	prec := 2
	if im.Format == thermal.FormatThermographyFixed {
		prec = 1
	}
	row := make([]string, im.Width)
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			row[x] = strconv.FormatFloat(im.Celsius(y*im.Width+x), 'f', prec, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
