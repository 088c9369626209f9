package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/evidlo/rosen/metrics"
	"github.com/evidlo/rosen/types"
)

// SessionReport is the structured JSON report written by --report.
type SessionReport struct {
	SessionID  string              `json:"session_id"`
	Station    string              `json:"station"`
	Mode       types.SessionMode   `json:"mode"`
	Status     types.SessionStatus `json:"status"`
	Message    string              `json:"message,omitempty"`
	ExitCode   int                 `json:"exit_code"`
	DurationMs int64               `json:"duration_ms"`
	Observed   int                 `json:"observed"`

	Download *ReportDownload   `json:"download,omitempty"`
	Metrics  *metrics.Snapshot `json:"metrics"`
}

// ReportDownload holds download results in the report.
type ReportDownload struct {
	Filename      string           `json:"filename"`
	Probed        int              `json:"probed"`
	Expected      int              `json:"expected"`
	Received      int              `json:"received"`
	ErrorRegister int64            `json:"error_reg"`
	ErrorClass    types.ErrorClass `json:"error_class"`
	Path          string           `json:"path,omitempty"`
}

// BuildSessionReport composes a SessionReport from a SessionResult.
func BuildSessionReport(result *SessionResult) *SessionReport {
	snap := result.Metrics
	report := &SessionReport{
		SessionID:  result.Meta.SessionID,
		Station:    result.Meta.Station,
		Mode:       result.Meta.Mode,
		Status:     result.Status,
		ExitCode:   result.ExitCode,
		DurationMs: result.Duration.Milliseconds(),
		Observed:   result.Observed,
		Metrics:    &snap,
	}
	if result.Err != nil {
		report.Message = result.Err.Error()
	}
	if res := result.Download; res != nil {
		report.Download = &ReportDownload{
			Filename:      res.Filename,
			Probed:        res.Probed,
			Expected:      res.Expected,
			Received:      res.Received,
			ErrorRegister: res.ErrorMax,
			ErrorClass:    res.Class,
			Path:          res.Path,
		}
	}
	return report
}

// WriteSessionReport writes the report as JSON to path.
// If path is "-", writes to stderr.
func WriteSessionReport(report *SessionReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeSessionReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

func writeSessionReportTo(report *SessionReport, w io.Writer) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func marshalReport(report *SessionReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
