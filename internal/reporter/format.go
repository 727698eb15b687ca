package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RupiahFormatter renders whole-rupiah amounts with Indonesian digit
// grouping, e.g. "Rp 1.000.000".
type RupiahFormatter struct {
	printer *message.Printer
}

// NewRupiahFormatter creates a formatter for the Indonesian locale
func NewRupiahFormatter() *RupiahFormatter {
	return &RupiahFormatter{printer: message.NewPrinter(language.Indonesian)}
}

// Digits returns the grouped amount without the currency symbol. Amounts
// are rounded to whole rupiah.
func (f *RupiahFormatter) Digits(amount decimal.Decimal) string {
	return f.printer.Sprintf("%d", amount.Round(0).IntPart())
}

// Format returns the amount with the currency symbol
func (f *RupiahFormatter) Format(amount decimal.Decimal) string {
	return "Rp " + f.Digits(amount)
}

// palette holds the console colours. Every colour is disabled together.
type palette struct {
	title   *color.Color
	header  *color.Color
	good    *color.Color
	bad     *color.Color
	warning *color.Color
	muted   *color.Color
}

func newPalette(enabled bool) *palette {
	p := &palette{
		title:   color.New(color.FgCyan, color.Bold),
		header:  color.New(color.Bold),
		good:    color.New(color.FgGreen),
		bad:     color.New(color.FgRed),
		warning: color.New(color.FgYellow),
		muted:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.title, p.header, p.good, p.bad, p.warning, p.muted} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// errWriter keeps the first write error so a long report can be printed
// without checking every line.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	ew.printf("%s\n", s)
}

// dotted pads label with dots to width, like a table of contents.
func dotted(label string, width int) string {
	if len(label) >= width {
		return label
	}
	return label + strings.Repeat(".", width-len(label))
}
