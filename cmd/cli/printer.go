package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/netip"
	"sort"
	"sync"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/hostsweep/internal/scanner"
)

// eventPrinter renders scan events on a terminal or as JSON lines. It is
// the engine's listener for the scan command.
type eventPrinter struct {
	out      io.Writer
	jsonMode bool

	mu       sync.Mutex
	total    int
	done     int
	complete *scanner.CompleteData
	failure  *scanner.ErrorData
}

func newEventPrinter(out io.Writer, jsonMode bool) *eventPrinter {
	return &eventPrinter{out: out, jsonMode: jsonMode}
}

// OnEvent implements scanner.Listener.
func (p *eventPrinter) OnEvent(ev scanner.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch data := ev.Data.(type) {
	case scanner.StartData:
		p.total = data.Total
	case scanner.Outcome:
		p.done++
	case scanner.CompleteData:
		p.complete = &data
	case scanner.ErrorData:
		p.failure = &data
	}

	if p.jsonMode {
		_ = json.NewEncoder(p.out).Encode(ev)
		return
	}

	switch data := ev.Data.(type) {
	case scanner.StartData:
		fmt.Fprintf(p.out, "Scanning %d addresses (scan %s)\n", data.Total, ev.ScanID)
	case scanner.Outcome:
		if data.Active() {
			fmt.Fprintf(p.out, "[%d/%d] %-15s up %s\n", p.done, p.total, data.Address, describe(data))
		}
	case scanner.CompleteData:
		if data.Canceled {
			fmt.Fprintf(p.out, "Scan canceled after %d of %d addresses\n", len(data.Results), p.total)
		} else {
			fmt.Fprintf(p.out, "Scan complete: %d addresses\n", len(data.Results))
		}
	}
}

func describe(o scanner.Outcome) string {
	s := o.Hostname
	if o.Known {
		if s != "" {
			s += " "
		}
		s += "(known)"
	}
	return s
}

// result returns the complete payload, if the scan finished, and the error
// payload, if the request was rejected or the scan failed.
func (p *eventPrinter) result() (*scanner.CompleteData, *scanner.ErrorData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.complete, p.failure
}

// addrLess orders dotted quads numerically, falling back to string order.
func addrLess(a, b string) bool {
	x, errA := netip.ParseAddr(a)
	y, errB := netip.ParseAddr(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return x.Less(y)
}

// renderResults prints the active hosts of a finished scan in address order.
func renderResults(out io.Writer, results []scanner.Outcome) error {
	active := make([]scanner.Outcome, 0, len(results))
	for _, o := range results {
		if o.Active() {
			active = append(active, o)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return addrLess(active[i].Address, active[j].Address)
	})

	if len(active) == 0 {
		fmt.Fprintf(out, "No active hosts among %d addresses\n", len(results))
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Address", "Hostname", "Known")
	for _, o := range active {
		known := "no"
		if o.Known {
			known = "yes"
		}
		hostname := o.Hostname
		if hostname == "" {
			hostname = "-"
		}
		if err := table.Append([]string{o.Address, hostname, known}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d of %d hosts active\n", len(active), len(results))
	return nil
}
