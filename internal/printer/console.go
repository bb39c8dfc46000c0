package printer

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/funnyzak/gqltap/internal/logger"
	"github.com/funnyzak/gqltap/pkg/i18n"
	"github.com/funnyzak/gqltap/pkg/inspect"
	"github.com/funnyzak/gqltap/pkg/stats"
	"github.com/mattn/go-runewidth"
	"golang.org/x/net/idna"
	"golang.org/x/term"
)

const (
	minWidth = 60
	maxWidth = 200

	timeLayout = "15:04:05"
)

// ColorScheme color scheme
type ColorScheme struct {
	MethodGET    *color.Color
	MethodPOST   *color.Color
	MethodPUT    *color.Color
	MethodDELETE *color.Color
	MethodPATCH  *color.Color
	Normal       *color.Color
	Warning      *color.Color
	Critical     *color.Color
	StatusError  *color.Color
	Header       *color.Color
	Separator    *color.Color
	Timestamp    *color.Color
	Domain       *color.Color
	Trace        *color.Color
	Notice       *color.Color
}

// NewColorScheme creates a new color scheme
func NewColorScheme() *ColorScheme {
	return &ColorScheme{
		MethodGET:    color.New(color.FgBlue, color.Bold),
		MethodPOST:   color.New(color.FgGreen, color.Bold),
		MethodPUT:    color.New(color.FgYellow, color.Bold),
		MethodDELETE: color.New(color.FgRed, color.Bold),
		MethodPATCH:  color.New(color.FgMagenta, color.Bold),
		Normal:       color.New(color.FgWhite),
		Warning:      color.New(color.FgYellow, color.Bold),
		Critical:     color.New(color.FgRed, color.Bold),
		StatusError:  color.New(color.FgHiRed),
		Header:       color.New(color.FgCyan, color.Bold),
		Separator:    color.New(color.FgYellow, color.Bold),
		Timestamp:    color.New(color.FgHiBlack),
		Domain:       color.New(color.FgHiBlue),
		Trace:        color.New(color.FgHiMagenta),
		Notice:       color.New(color.FgHiCyan, color.Bold),
	}
}

// ConsolePrinter prints one table line per row, colored by latency bucket.
type ConsolePrinter struct {
	colorScheme *ColorScheme
	logger      logger.Logger
	labels      i18n.Labels
	out         io.Writer

	mu            sync.Mutex
	headerPrinted bool
}

// NewConsolePrinter creates a new console printer writing to stdout.
func NewConsolePrinter(log logger.Logger, labels i18n.Labels) *ConsolePrinter {
	return &ConsolePrinter{
		colorScheme: NewColorScheme(),
		logger:      log,
		labels:      labels,
		out:         os.Stdout,
	}
}

// SetOutput replaces the output target.
func (p *ConsolePrinter) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	p.out = w
}

// getTerminalWidth gets the current terminal width with fallback
func (p *ConsolePrinter) getTerminalWidth() int {
	if testWidth := os.Getenv("GQLTAP_TEST_WIDTH"); testWidth != "" {
		if width, err := strconv.Atoi(testWidth); err == nil {
			return clampWidth(width)
		}
	}

	f, ok := p.out.(*os.File)
	if !ok {
		return 120
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 120
	}
	return clampWidth(width)
}

func clampWidth(width int) int {
	if width < minWidth {
		return minWidth
	}
	if width > maxWidth {
		return maxWidth
	}
	return width
}

// PrintRow prints row as a single table line, followed by the trace link when
// the request carried one.
func (p *ConsolePrinter) PrintRow(row *inspect.Row) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	width := p.getTerminalWidth()
	if !p.headerPrinted {
		p.printHeader(width)
		p.headerPrinted = true
	}

	bucketColor := p.getBucketColor(row.Bucket)

	p.colorScheme.Timestamp.Fprint(p.out, row.CompletedAt.Local().Format(timeLayout))
	fmt.Fprint(p.out, " ")
	p.getMethodColor(row.Method).Fprint(p.out, padRight(strings.ToUpper(row.Method), 7))
	fmt.Fprint(p.out, " ")
	p.getStatusColor(row.Status).Fprint(p.out, padRight(formatStatus(row.Status), 3))
	fmt.Fprint(p.out, " ")
	bucketColor.Fprint(p.out, padLeft(row.Duration, 9))
	fmt.Fprint(p.out, " ")
	fmt.Fprint(p.out, padLeft(formatSize(row.BodySize), 8))
	fmt.Fprint(p.out, "  ")

	domain := displayDomain(row.Domain)
	available := width - fixedColumnsWidth
	if available < 10 {
		available = 10
	}
	domainWidth := runewidth.StringWidth(domain)
	if domainWidth >= available {
		domain = runewidth.Truncate(domain, available, "…")
		domainWidth = available
	}
	p.colorScheme.Domain.Fprint(p.out, domain)
	bucketColor.Fprintln(p.out, runewidth.Truncate(row.DisplayPath, available-domainWidth, "…"))

	if row.TraceURL != "" {
		fmt.Fprint(p.out, strings.Repeat(" ", 9))
		p.colorScheme.Trace.Fprintf(p.out, "↳ %s: %s\n", p.labels.Text(keyRowTrace), row.TraceURL)
	}
	return nil
}

// fixedColumnsWidth is the width of time, method, status, duration and size
// columns including separators.
const fixedColumnsWidth = 8 + 1 + 7 + 1 + 3 + 1 + 9 + 1 + 8 + 2

func (p *ConsolePrinter) printHeader(width int) {
	header := fmt.Sprintf("%s %s %s %s %s  %s",
		padRight(p.labels.Text(keyTableTime), 8),
		padRight(p.labels.Text(keyTableMethod), 7),
		padRight(p.labels.Text(keyTableStatus), 3),
		padLeft(p.labels.Text(keyTableDuration), 9),
		padLeft(p.labels.Text(keyTableSize), 8),
		p.labels.Text(keyTablePath),
	)
	p.colorScheme.Header.Fprintln(p.out, runewidth.Truncate(header, width, ""))
	p.colorScheme.Separator.Fprintln(p.out, strings.Repeat("-", width))
}

// PrintStats prints the status bar.
func (p *ConsolePrinter) PrintStats(snap stats.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	width := p.getTerminalWidth()
	p.colorScheme.Separator.Fprintln(p.out, strings.Repeat("-", width))
	fmt.Fprintln(p.out, p.statusLine(snap))
	return nil
}

func (p *ConsolePrinter) statusLine(snap stats.Snapshot) string {
	parts := []string{
		categoryPart(p.labels.Text(keyStatusGraphQL), snap.GraphQL.Count, snap.GraphQL.TotalTimeMs),
		categoryPart(p.labels.Text(keyStatusToken), snap.Token.Count, snap.Token.TotalTimeMs),
		categoryPart(p.labels.Text(keyStatusAccess), snap.Access.Count, snap.Access.TotalTimeMs),
		p.colorScheme.Warning.Sprint(categoryPart(p.labels.Text(keyStatusWarning), snap.Slow.WarningCount, snap.Slow.WarningTimeMs)),
		p.colorScheme.Critical.Sprint(categoryPart(p.labels.Text(keyStatusCritical), snap.Slow.CriticalCount, snap.Slow.CriticalTimeMs)),
		fmt.Sprintf("%s: %s", p.labels.Text(keyStatusElapsed), FormatElapsed(snap.ElapsedSeconds)),
	}
	return strings.Join(parts, " | ")
}

// PrintNotice prints a session event on its own line and restarts the table.
func (p *ConsolePrinter) PrintNotice(n Notice) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.colorScheme.Notice.Fprintf(p.out, "== %s ==\n", p.labels.Text(keyNoticePrefix+string(n)))
	if n != NoticePaused && n != NoticeResumed && n != NoticeNavigatedPreserved {
		p.headerPrinted = false
	}
	return nil
}

func categoryPart(label string, count int, totalMs float64) string {
	return fmt.Sprintf("%s: %s (%s)", label, humanize.Comma(int64(count)), inspect.FormatDuration(totalMs))
}

// FormatElapsed renders seconds as mm:ss, or h:mm:ss past the hour.
func FormatElapsed(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds/60)%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func formatStatus(status int) string {
	if status <= 0 {
		return "-"
	}
	return strconv.Itoa(status)
}

func formatSize(size int) string {
	if size <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(size))
}

// displayDomain renders punycode hosts in Unicode; anything idna rejects is
// shown as-is.
func displayDomain(domain string) string {
	if !strings.Contains(domain, "xn--") {
		return domain
	}
	host, port := domain, ""
	if i := strings.LastIndex(domain, ":"); i > 0 && !strings.Contains(domain[i:], "]") {
		host, port = domain[:i], domain[i:]
	}
	unicode, err := idna.Display.ToUnicode(host)
	if err != nil {
		return domain
	}
	return unicode + port
}

func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func padLeft(s string, width int) string {
	return runewidth.FillLeft(s, width)
}

func (p *ConsolePrinter) getBucketColor(b inspect.Bucket) *color.Color {
	switch b {
	case inspect.BucketCritical:
		return p.colorScheme.Critical
	case inspect.BucketWarning:
		return p.colorScheme.Warning
	default:
		return p.colorScheme.Normal
	}
}

func (p *ConsolePrinter) getStatusColor(status int) *color.Color {
	if status >= 400 {
		return p.colorScheme.StatusError
	}
	return p.colorScheme.Normal
}

// getMethodColor gets the corresponding color based on HTTP method
func (p *ConsolePrinter) getMethodColor(method string) *color.Color {
	switch strings.ToUpper(method) {
	case "GET":
		return p.colorScheme.MethodGET
	case "POST":
		return p.colorScheme.MethodPOST
	case "PUT":
		return p.colorScheme.MethodPUT
	case "DELETE":
		return p.colorScheme.MethodDELETE
	case "PATCH":
		return p.colorScheme.MethodPATCH
	default:
		return color.New(color.FgWhite, color.Bold)
	}
}
