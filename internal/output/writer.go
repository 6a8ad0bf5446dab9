// Package output exports leads to CSV, JSONL, and XLSX files.
package output

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/model"
)

// csvColumns is the fixed column order of the tabular exports.
var csvColumns = []string{
	"place_id",
	"name",
	"address",
	"city",
	"state",
	"postal_code",
	"country",
	"phone",
	"international_phone",
	"website",
	"emails",
	"types",
	"rating",
	"user_ratings_total",
	"source_query",
	"source_location",
	"fetched_at",
}

var failureColumns = []string{
	"place_id", "domain", "error_type", "error_message", "retry_count", "created_at",
}

// Writer writes lead exports into a directory under a common file prefix.
type Writer struct {
	dir    string
	prefix string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir, prefix string) (*Writer, error) {
	if prefix == "" {
		prefix = "leads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "output: create directory")
	}
	return &Writer{dir: dir, prefix: prefix}, nil
}

func (w *Writer) CSVPath() string      { return filepath.Join(w.dir, w.prefix+".csv") }
func (w *Writer) JSONLPath() string    { return filepath.Join(w.dir, w.prefix+".jsonl") }
func (w *Writer) XLSXPath() string     { return filepath.Join(w.dir, w.prefix+".xlsx") }
func (w *Writer) FailuresPath() string { return filepath.Join(w.dir, w.prefix+"_failures.csv") }

// WriteLeads writes both the CSV and JSONL exports.
func (w *Writer) WriteLeads(leads []*model.Lead) error {
	if err := w.WriteCSV(leads); err != nil {
		return err
	}
	if err := w.WriteJSONL(leads); err != nil {
		return err
	}
	zap.L().Info("wrote leads",
		zap.Int("count", len(leads)),
		zap.String("csv", w.CSVPath()),
		zap.String("jsonl", w.JSONLPath()))
	return nil
}

// WriteCSV writes the tabular export with semicolon-joined list fields.
func (w *Writer) WriteCSV(leads []*model.Lead) error {
	f, err := os.Create(w.CSVPath())
	if err != nil {
		return eris.Wrap(err, "output: create csv")
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if err := cw.Write(csvColumns); err != nil {
		return eris.Wrap(err, "output: write csv header")
	}
	for _, lead := range leads {
		if err := cw.Write(leadRow(lead)); err != nil {
			return eris.Wrap(err, "output: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "output: flush csv")
}

// WriteJSONL writes one full-fidelity JSON object per line: list fields stay
// lists, and domain plus per-email quality are included.
func (w *Writer) WriteJSONL(leads []*model.Lead) error {
	f, err := os.Create(w.JSONLPath())
	if err != nil {
		return eris.Wrap(err, "output: create jsonl")
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, lead := range leads {
		if err := enc.Encode(lead); err != nil {
			return eris.Wrap(err, "output: encode lead")
		}
	}
	return nil
}

// WriteXLSX writes the same columns as the CSV export into a spreadsheet.
func (w *Writer) WriteXLSX(leads []*model.Lead) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "output: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range csvColumns {
		header.AddCell().Value = col
	}
	for _, lead := range leads {
		row := sheet.AddRow()
		for _, val := range leadRow(lead) {
			row.AddCell().Value = val
		}
	}

	if err := file.Save(w.XLSXPath()); err != nil {
		return eris.Wrap(err, "output: save xlsx")
	}
	zap.L().Info("wrote xlsx", zap.Int("count", len(leads)), zap.String("path", w.XLSXPath()))
	return nil
}

// WriteFailures mirrors the failure ledger into a CSV. No file is written
// when there are no failures.
func (w *Writer) WriteFailures(failures []model.FailureRecord) error {
	if len(failures) == 0 {
		return nil
	}

	f, err := os.Create(w.FailuresPath())
	if err != nil {
		return eris.Wrap(err, "output: create failures csv")
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if err := cw.Write(failureColumns); err != nil {
		return eris.Wrap(err, "output: write failures header")
	}
	for _, fr := range failures {
		row := []string{
			fr.PlaceID,
			fr.Domain,
			fr.ErrorType,
			fr.ErrorMessage,
			strconv.Itoa(fr.RetryCount),
			formatTime(fr.CreatedAt),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "output: write failures row")
		}
	}
	cw.Flush()

	zap.L().Info("wrote failures", zap.Int("count", len(failures)), zap.String("path", w.FailuresPath()))
	return eris.Wrap(cw.Error(), "output: flush failures")
}

func leadRow(lead *model.Lead) []string {
	rating := ""
	if lead.Rating != nil {
		rating = strconv.FormatFloat(*lead.Rating, 'f', -1, 64)
	}
	ratingsTotal := ""
	if lead.UserRatingsTotal != nil {
		ratingsTotal = strconv.Itoa(*lead.UserRatingsTotal)
	}

	return []string{
		lead.PlaceID,
		lead.Name,
		lead.Address,
		lead.City,
		lead.State,
		lead.PostalCode,
		lead.Country,
		lead.Phone,
		lead.InternationalPhone,
		lead.Website,
		strings.Join(lead.Emails, ";"),
		strings.Join(lead.Types, ";"),
		rating,
		ratingsTotal,
		lead.SourceQuery,
		lead.SourceLocation,
		formatTime(lead.FetchedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
