// Package report streams bill listings as CSV downloads.
package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/scrapledger/scrapledger/internal/billing"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

// inPrinter renders the metadata totals with Indian digit grouping. Data
// cells stay plain so downstream tools can parse them.
var inPrinter = message.NewPrinter(language.MustParse("en-IN"))

// billHeaders is the exported column set, one row per bill.
var billHeaders = []string{
	"Bill Number",
	"Party Name",
	"Party Mobile",
	"GST Number",
	"Material Type",
	"Weight",
	"Weight Unit",
	"Rate Per Kg",
	"Total Amount",
	"Paid Amount",
	"Pending Amount",
	"Status",
	"Bill Date",
	"Due Date",
	"Financial Year",
	"Notes",
}

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

// WriteBillsCSV streams one bill listing with two metadata comment lines
// followed by the header row and one row per bill.
func WriteBillsCSV(w io.Writer, title, financialYear string, bills []billing.Bill, now time.Time) error {
	streamer := newCSVStreamer(w)

	if err := streamer.writeComment(fmt.Sprintf("# Report: %s", title)); err != nil {
		return err
	}
	fy := financialYear
	if fy == "" {
		fy = "all"
	}
	var total float64
	for i := range bills {
		total += bills[i].TotalAmount
	}
	meta := inPrinter.Sprintf("# Financial Year: %s | Bills: %d | Total Amount: %.2f", fy, len(bills), total)
	if err := streamer.writeComment(meta); err != nil {
		return err
	}

	if err := streamer.writeRow(billHeaders); err != nil {
		return err
	}
	for i := range bills {
		if err := streamer.writeRow(billRow(&bills[i], now)); err != nil {
			return err
		}
	}
	return streamer.Close()
}

func billRow(b *billing.Bill, now time.Time) []string {
	dueDate := ""
	if b.DueDate != nil {
		dueDate = b.DueDate.Format("02/01/2006")
	}
	return []string{
		b.BillNumber,
		b.PartyName,
		b.PartyMobile,
		b.PartyGSTNo,
		b.MaterialType,
		formatDecimal(b.Weight),
		string(b.WeightUnit),
		formatDecimal(b.RatePerKg),
		formatDecimal(b.TotalAmount),
		formatDecimal(b.PaidAmount()),
		formatDecimal(b.PendingAmount()),
		string(b.EffectiveStatus(now)),
		b.BillDate.Format("02/01/2006"),
		dueDate,
		b.FinancialYear,
		b.Notes,
	}
}

func formatDecimal(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
