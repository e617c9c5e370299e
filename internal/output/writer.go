package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"wpool/internal/worker"

	"github.com/fatih/color"
)

// Type selects the rendering a Writer produces.
type Type string

const (
	// Table renders worker snapshots as an aligned, colorized table.
	Table Type = "table"
	// JSON renders worker snapshots as indented JSON.
	JSON Type = "json"
)

// Config holds output configuration for a Writer.
type Config struct {
	Type Type
	// Out is the destination stream. Defaults to os.Stdout.
	Out io.Writer
}

// Writer renders worker.Info snapshots and pool metrics for the status
// and run commands.
type Writer struct {
	config Config
}

// NewWriter creates a Writer with default settings.
func NewWriter(config Config) *Writer {
	if config.Out == nil {
		config.Out = os.Stdout
	}
	if config.Type == "" {
		config.Type = Table
	}
	return &Writer{config: config}
}

// statusRow is the JSON-friendly shape of a worker snapshot.
type statusRow struct {
	Index   int    `json:"index"`
	Status  string `json:"status"`
	Type    string `json:"type"`
	Error   int    `json:"error"`
	HasTask bool   `json:"has_task"`
}

func toRows(snapshots []worker.Info) []statusRow {
	rows := make([]statusRow, len(snapshots))
	for i, s := range snapshots {
		rows[i] = statusRow{
			Index:   s.Index,
			Status:  s.Status.String(),
			Type:    s.Type.String(),
			Error:   s.Error,
			HasTask: s.Action != nil,
		}
	}
	return rows
}

// WriteThreadStatus renders a slice of worker snapshots.
func (w *Writer) WriteThreadStatus(snapshots []worker.Info) error {
	switch w.config.Type {
	case JSON:
		return w.writeJSON(toRows(snapshots))
	default:
		return w.writeTable(snapshots)
	}
}

func (w *Writer) writeJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	_, err = fmt.Fprintln(w.config.Out, string(data))
	return err
}

func statusColor(s worker.Status) *color.Color {
	switch s {
	case worker.Running:
		return color.New(color.FgGreen)
	case worker.Blocked:
		return color.New(color.FgRed)
	case worker.Locked:
		return color.New(color.FgYellow)
	case worker.Stopped:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgCyan)
	}
}

func (w *Writer) writeTable(snapshots []worker.Info) error {
	tw := tabwriter.NewWriter(w.config.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tSTATUS\tTYPE\tERROR\tHAS TASK")
	for _, s := range snapshots {
		c := statusColor(s.Status)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%v\n",
			s.Index, c.Sprint(s.Status.String()), s.Type.String(), s.Error, s.Action != nil)
	}
	return tw.Flush()
}

// WriteMetrics renders a PoolMetrics summary.
func (w *Writer) WriteMetrics(m worker.PoolMetrics) error {
	if w.config.Type == JSON {
		return w.writeJSON(m)
	}

	bold := color.New(color.Bold)
	var b strings.Builder
	fmt.Fprintf(&b, "total tasks:     %d\n", m.TotalTasks)
	fmt.Fprintf(&b, "completed tasks: %d\n", m.CompletedTasks)
	fmt.Fprintf(&b, "failed tasks:    %d\n", m.FailedTasks)
	fmt.Fprintf(&b, "peak running:    %d\n", m.PeakRunning)
	fmt.Fprintf(&b, "total exec time: %s\n", m.TotalExecTime)
	bold.Fprint(w.config.Out, "pool metrics\n")
	_, err := fmt.Fprint(w.config.Out, b.String())
	return err
}
