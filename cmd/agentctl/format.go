package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/rickgao/agentlink/internal/eventbus"
	"github.com/rickgao/agentlink/internal/geo"
	"github.com/rickgao/agentlink/internal/protocol"
	"github.com/rickgao/agentlink/internal/status"
)

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

func formatPosition(p *protocol.Position) string {
	if p == nil {
		return "-"
	}
	s := geo.FormatCoordinates(p.Lat, p.Lon, p.Depth)
	if p.Time != "" {
		s += " @ " + p.Time
	}
	return s
}

// printStatus renders a status snapshot as a small block.
func printStatus(w io.Writer, snap status.Snapshot) {
	if snap.IsEmpty() {
		yellow.Fprintln(w, "no status received")
		return
	}
	s := snap.Status

	cyan.Fprintf(w, "%-10s", "simulator")
	if s.HoloOcean.Running {
		green.Fprintf(w, "running (tick %d)\n", s.HoloOcean.TickCount)
	} else {
		yellow.Fprintf(w, "stopped (tick %d)\n", s.HoloOcean.TickCount)
	}
	if s.HoloOcean.LastError != nil {
		cyan.Fprintf(w, "%-10s", "error")
		red.Fprintln(w, *s.HoloOcean.LastError)
	}

	cyan.Fprintf(w, "%-10s", "current")
	fmt.Fprintln(w, formatPosition(s.Current))
	cyan.Fprintf(w, "%-10s", "target")
	fmt.Fprintln(w, formatPosition(s.Target))

	if s.Current != nil && s.Target != nil {
		d := geo.Distance(s.Current.Lat, s.Current.Lon, s.Target.Lat, s.Target.Lon)
		cyan.Fprintf(w, "%-10s", "to go")
		fmt.Fprintf(w, "%.1f m horizontal, %.1f m vertical\n", d, s.Target.Depth-s.Current.Depth)
	}
	if s.UpdatedAt != "" {
		cyan.Fprintf(w, "%-10s", "updated")
		fmt.Fprintln(w, s.UpdatedAt)
	}
}

// printEvent renders one bus event as a timestamped line.
func printEvent(w io.Writer, ev eventbus.Event) {
	fmt.Fprintf(w, "%s ", ev.At.Format(time.TimeOnly))

	switch data := ev.Data.(type) {
	case eventbus.Connected:
		green.Fprintf(w, "connected    ")
		fmt.Fprintf(w, "%s session=%s\n", data.Endpoint, data.SessionID)
	case eventbus.Disconnected:
		yellow.Fprintf(w, "disconnected ")
		if data.Err != nil {
			fmt.Fprintf(w, "%v ", data.Err)
		}
		fmt.Fprintf(w, "reconnect=%t\n", data.WillReconnect)
	case eventbus.ConnectionError:
		red.Fprintf(w, "conn-error   ")
		if data.Exhausted {
			fmt.Fprintf(w, "gave up after %d attempts\n", data.Attempt)
			return
		}
		fmt.Fprintf(w, "attempt %d: %v\n", data.Attempt, data.Err)
	case eventbus.Status:
		s := data.Status
		cyan.Fprintf(w, "status       ")
		fmt.Fprintf(w, "running=%t tick=%d at %s\n",
			s.HoloOcean.Running, s.HoloOcean.TickCount, formatPosition(s.Current))
	case eventbus.TargetUpdated:
		green.Fprintf(w, "target       ")
		fmt.Fprintln(w, formatPosition(&data.Target))
	case eventbus.Error:
		red.Fprintf(w, "%-13s", data.Type)
		fmt.Fprintln(w, data.Message)
	default:
		fmt.Fprintf(w, "%s %v\n", ev.Name, ev.Data)
	}
}
