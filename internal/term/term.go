package term

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	xterm "golang.org/x/term"

	"github.com/ngenohkevin/hivetop/internal/monitor"
	"github.com/ngenohkevin/hivetop/internal/process"
)

const (
	clearScreen     = "\033[H\033[2J"
	altScreenOn     = "\033[?1049h"
	altScreenOff    = "\033[?1049l"
	cursorHide      = "\033[?25l"
	cursorShow      = "\033[?25h"
	defaultNameCols = 40
	minNameCols     = 10
)

// Presenter renders frames as a refreshed table on a terminal
type Presenter struct {
	out    io.Writer
	color  bool
	clear  bool
	width  func() int
	header func(ctx context.Context) string
}

// Option configures a Presenter
type Option func(*Presenter)

// WithColor turns ANSI colors on or off
func WithColor(on bool) Option {
	return func(p *Presenter) { p.color = on }
}

// WithClear clears the screen before each frame
func WithClear(on bool) Option {
	return func(p *Presenter) { p.clear = on }
}

// WithWidth supplies the terminal width; zero or less means unknown
func WithWidth(fn func() int) Option {
	return func(p *Presenter) { p.width = fn }
}

// WithHeader supplies a line printed above the table
func WithHeader(fn func(ctx context.Context) string) Option {
	return func(p *Presenter) { p.header = fn }
}

// New creates a presenter writing to out, plain text by default
func New(out io.Writer, opts ...Option) *Presenter {
	p := &Presenter{
		out:   out,
		width: func() int { return 0 },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewStdout creates a presenter for os.Stdout. On a terminal it switches to the
// alternate screen, hides the cursor and stops input echo; the returned func undoes that.
func NewStdout(logger *slog.Logger, opts ...Option) (*Presenter, func()) {
	fd := int(os.Stdout.Fd())
	if !xterm.IsTerminal(fd) {
		return New(os.Stdout, opts...), func() {}
	}

	_, noColor := os.LookupEnv("NO_COLOR")
	base := []Option{
		WithColor(!noColor),
		WithClear(true),
		WithWidth(func() int {
			w, _, err := xterm.GetSize(fd)
			if err != nil {
				return 0
			}
			return w
		}),
	}
	p := New(os.Stdout, append(base, opts...)...)

	fmt.Fprint(os.Stdout, altScreenOn+cursorHide)

	var restore []func()
	stdinFD := int(os.Stdin.Fd())
	if xterm.IsTerminal(stdinFD) {
		if undoEcho, err := disableInputEcho(stdinFD); err != nil {
			logger.Warn("unable to suppress stdin echo", "error", err)
		} else if undoEcho != nil {
			restore = append(restore, undoEcho)
		}
	}

	return p, func() {
		for i := len(restore) - 1; i >= 0; i-- {
			restore[i]()
		}
		fmt.Fprint(os.Stdout, cursorShow+altScreenOff)
	}
}

// Present writes one frame
func (p *Presenter) Present(ctx context.Context, f monitor.Frame) error {
	var buf bytes.Buffer
	if p.clear {
		buf.WriteString(clearScreen)
	}
	p.render(ctx, &buf, f)

	if _, err := p.out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Render returns the frame as text without screen control sequences
func (p *Presenter) Render(ctx context.Context, f monitor.Frame) string {
	var buf bytes.Buffer
	p.render(ctx, &buf, f)
	return buf.String()
}

func (p *Presenter) render(ctx context.Context, buf *bytes.Buffer, f monitor.Frame) {
	if p.header != nil {
		if line := p.header(ctx); line != "" {
			buf.WriteString(p.paint(bold, line))
			buf.WriteString("\n")
		}
	}
	fmt.Fprintf(buf, "Cycle #%d | %s | %d listed, %d degraded, %d omitted | took %v (press Ctrl+C to exit)\n\n",
		f.Seq, f.TakenAt.Format(time.TimeOnly), f.Stats.Listed, f.Stats.Degraded, f.Stats.Omitted,
		f.Elapsed.Round(time.Millisecond))

	if len(f.Rows) == 0 {
		buf.WriteString("No processes to show\n")
		return
	}

	withContainer := false
	for _, row := range f.Rows {
		if row.Container != "" {
			withContainer = true
			break
		}
	}

	t := newTable(p.nameWidth(withContainer), withContainer)
	for _, row := range f.Rows {
		t.add(row)
	}
	t.write(buf, p)
}

func (p *Presenter) paint(color, s string) string {
	if !p.color || color == "" {
		return s
	}
	return color + s + reset
}

// nameWidth leaves the name column whatever the other columns do not need
func (p *Presenter) nameWidth(withContainer bool) int {
	w := p.width()
	if w <= 0 {
		return defaultNameCols
	}
	// pid, cpu, memory, status and user columns plus separators
	fixed := 8 + 8 + 12 + 10 + 14 + 5*2
	if withContainer {
		fixed += 20 + 2
	}
	return max(w-fixed, minNameCols)
}

type column struct {
	title string
	right bool
}

type cell struct {
	text  string
	color string
}

type table struct {
	cols     []column
	rows     [][]cell
	nameCols int
	withCtr  bool
}

func newTable(nameCols int, withContainer bool) *table {
	cols := []column{
		{title: "PID", right: true},
		{title: "Name"},
		{title: "CPU %", right: true},
		{title: "Memory", right: true},
		{title: "Status"},
		{title: "User"},
	}
	if withContainer {
		cols = append(cols, column{title: "Container"})
	}
	return &table{cols: cols, nameCols: nameCols, withCtr: withContainer}
}

func (t *table) add(s process.Snapshot) {
	row := []cell{
		{text: fmt.Sprintf("%d", s.PID)},
		{text: truncate(printable(s.Name), t.nameCols)},
		{text: fmt.Sprintf("%.1f", s.CPUPercent), color: cpuColor(s.CPUPercent)},
		{text: FormatMemory(s.MemoryBytes)},
		{text: string(s.Status), color: statusColor(s.Status)},
		{text: printable(s.Owner)},
	}
	if t.withCtr {
		row = append(row, cell{text: printable(s.Container), color: dim})
	}
	t.rows = append(t.rows, row)
}

// write pads cells on their plain text so color codes do not skew alignment
func (t *table) write(buf *bytes.Buffer, p *Presenter) {
	widths := make([]int, len(t.cols))
	for i, c := range t.cols {
		widths[i] = utf8.RuneCountInString(c.title)
	}
	for _, row := range t.rows {
		for i, c := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(c.text))
		}
	}

	header := make([]string, len(t.cols))
	for i, c := range t.cols {
		header[i] = pad(c.title, widths[i], c.right)
	}
	buf.WriteString(p.paint(bold, strings.TrimRight(strings.Join(header, "  "), " ")))
	buf.WriteString("\n")

	for _, row := range t.rows {
		parts := make([]string, len(row))
		for i, c := range row {
			parts[i] = p.paint(c.color, pad(c.text, widths[i], t.cols[i].right))
		}
		buf.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		buf.WriteString("\n")
	}
}

func pad(s string, width int, right bool) string {
	gap := width - utf8.RuneCountInString(s)
	if gap <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", gap) + s
	}
	return s + strings.Repeat(" ", gap)
}
