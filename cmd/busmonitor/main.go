// Command busmonitor is a read-only companion to busmaster: it tails
// the console link and renders a live table of device state by
// parsing the same ACTIVE/INACTIVE/POLL lines busmaster writes there.
// It never writes to the console link and never touches the bus UART
// or GPIO — it cannot be mistaken for a second master.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"github.com/tarm/serial"
)

func main() {
	device := pflag.String("console-device", "/dev/ttyUSB0", "console tty device to tail")
	baud := pflag.Int("console-baud", 115200, "console baud rate")
	pflag.Parse()

	port, err := serial.OpenPort(&serial.Config{Name: *device, Baud: *baud})
	if err != nil {
		fmt.Fprintf(os.Stderr, "busmonitor: open %s: %v\n", *device, err)
		os.Exit(1)
	}

	lines := make(chan reportLine, 64)
	go tailPort(port, lines)

	p := tea.NewProgram(newModel(lines), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "busmonitor: %v\n", err)
		os.Exit(1)
	}
}

// reportLine is one parsed console-link line, tagged by kind so the
// model doesn't need to re-parse.
type reportLine struct {
	kind string // "active", "inactive", "poll"
	dev  int

	pollIntervalS int
	description   string
	unit          string
	valueText     string
}

// tailPort reads the console link line by line forever, forwarding
// every line this process understands. It's the only goroutine in
// this binary besides bubbletea's own event loop — busmonitor has no
// "single hot-path goroutine" constraint the way busmaster does,
// since it never mutates shared device state outside the Update loop.
func tailPort(port *serial.Port, out chan<- reportLine) {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		if line, ok := parseReportLine(scanner.Text()); ok {
			out <- line
		}
	}
}

func parseReportLine(text string) (reportLine, bool) {
	text = strings.TrimRight(text, "\r\n")
	switch {
	case strings.HasPrefix(text, "ACTIVE "):
		fields := strings.SplitN(strings.TrimPrefix(text, "ACTIVE "), "|", 4)
		if len(fields) != 4 {
			return reportLine{}, false
		}
		dev, err1 := strconv.Atoi(fields[0])
		interval, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return reportLine{}, false
		}
		return reportLine{kind: "active", dev: dev, pollIntervalS: interval, description: fields[2], unit: fields[3]}, true

	case strings.HasPrefix(text, "INACTIVE "):
		dev, err := strconv.Atoi(strings.TrimPrefix(text, "INACTIVE "))
		if err != nil {
			return reportLine{}, false
		}
		return reportLine{kind: "inactive", dev: dev}, true

	case strings.HasPrefix(text, "POLL "):
		fields := strings.SplitN(strings.TrimPrefix(text, "POLL "), " ", 2)
		if len(fields) != 2 {
			return reportLine{}, false
		}
		dev, err := strconv.Atoi(fields[0])
		if err != nil {
			return reportLine{}, false
		}
		return reportLine{kind: "poll", dev: dev, valueText: fields[1]}, true
	}
	return reportLine{}, false
}

// deviceRow is the monitor's own reconstruction of a device's state,
// built purely from report lines rather than from any shared table.
type deviceRow struct {
	active      bool
	interval    int
	description string
	unit        string
	lastValue   string
	lastSeen    time.Time
}

type model struct {
	lines   <-chan reportLine
	devices map[int]*deviceRow
	table   table.Model
}

func newModel(lines <-chan reportLine) model {
	columns := []table.Column{
		{Title: "ID", Width: 4},
		{Title: "Status", Width: 8},
		{Title: "Interval(s)", Width: 11},
		{Title: "Description", Width: 24},
		{Title: "Unit", Width: 8},
		{Title: "Last value", Width: 12},
		{Title: "Last seen", Width: 12},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(false), table.WithHeight(20))
	return model{lines: lines, devices: map[int]*deviceRow{}, table: t}
}

func (m model) Init() tea.Cmd {
	return waitForLine(m.lines)
}

type lineMsg reportLine

func waitForLine(lines <-chan reportLine) tea.Cmd {
	return func() tea.Msg {
		return lineMsg(<-lines)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case lineMsg:
		m.applyLine(reportLine(msg))
		m.table.SetRows(m.renderRows())
		return m, waitForLine(m.lines)
	}
	return m, nil
}

func (m model) applyLine(line reportLine) {
	row, ok := m.devices[line.dev]
	if !ok {
		row = &deviceRow{}
		m.devices[line.dev] = row
	}
	switch line.kind {
	case "active":
		row.active = true
		row.interval = line.pollIntervalS
		row.description = line.description
		row.unit = line.unit
		row.lastSeen = now()
	case "inactive":
		row.active = false
	case "poll":
		row.lastValue = line.valueText
		row.lastSeen = now()
	}
}

// now is the one place this file would need to change to make the
// model replayable against recorded logs instead of live time.
func now() time.Time { return time.Now() }

func (m model) renderRows() []table.Row {
	ids := make([]int, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	rows := make([]table.Row, 0, len(ids))
	for _, id := range ids {
		d := m.devices[id]
		status := "inactive"
		if d.active {
			status = "active"
		}
		seen := ""
		if !d.lastSeen.IsZero() {
			seen = d.lastSeen.Format("15:04:05")
		}
		rows = append(rows, table.Row{
			strconv.Itoa(id), status, strconv.Itoa(d.interval),
			d.description, d.unit, d.lastValue, seen,
		})
	}
	return rows
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#60A5FA"))

func (m model) View() string {
	return headerStyle.Render("busmonitor — read-only console tail") + "\n\n" + m.table.View() + "\n\nq to quit\n"
}
