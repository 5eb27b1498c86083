package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/saintparish4/wifisim/qos"
	"github.com/saintparish4/wifisim/rssi"
)

var (
	rssiHeader = []string{"Time", "RSSI(dBm)"}
	flowHeader = []string{"FlowID", "Source", "Dest", "Throughput(Mbps)", "Delay(s)", "Jitter(s)", "QoS"}
)

// FormatFloat renders v with six significant digits, dropping trailing zeros.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// WriteRSSI writes one device's samples as Time,RSSI(dBm) rows.
func WriteRSSI(w io.Writer, samples []rssi.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rssiHeader); err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write([]string{FormatFloat(s.Time), FormatFloat(s.SignalDbm)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFlows writes one row per flow of the report.
func WriteFlows(w io.Writer, r qos.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(flowHeader); err != nil {
		return err
	}
	for _, f := range r.Flows {
		row := []string{
			strconv.Itoa(f.Number),
			f.ID.Source.String(),
			f.ID.Destination.String(),
			FormatFloat(f.ThroughputMbps),
			FormatFloat(f.AvgDelay),
			FormatFloat(f.AvgJitter),
			FormatFloat(f.QoSRatio),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRSSIFile creates (or truncates) path and writes the samples to it.
func WriteRSSIFile(path string, samples []rssi.Sample) error {
	return writeFile(path, func(w io.Writer) error { return WriteRSSI(w, samples) })
}

// WriteFlowsFile creates (or truncates) path and writes the report to it.
func WriteFlowsFile(path string, r qos.Report) error {
	return writeFile(path, func(w io.Writer) error { return WriteFlows(w, r) })
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
