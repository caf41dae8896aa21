// Package export renders records as CSV or XLSX with one row per record.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

// NotApplicable fills columns that do not exist for a record's source.
const NotApplicable = "N/A"

// SheetName is the XLSX worksheet name.
const SheetName = "Records"

// MsgNothingToExport is posted when the export set is empty.
const MsgNothingToExport = "No data to export!"

// ErrNothingToExport is returned for an empty record set.
var ErrNothingToExport = eris.New("export: no records")

// Row is one exported line.
type Row struct {
	SourceType string `csv:"Source Type"`
	Party      string `csv:"User/Merchant"`
	Product    string `csv:"Product Name"`
	PriceTotal string `csv:"Price/Total"`
	BuyDate    string `csv:"Buy Date"`
	SellDate   string `csv:"Sell Date"`
	DateDiff   string `csv:"Date Difference (Days)"`
	RawJSON    string `csv:"Raw JSON"`
}

// Header is the column order shared by both formats.
var Header = []string{
	"Source Type", "User/Merchant", "Product Name", "Price/Total",
	"Buy Date", "Sell Date", "Date Difference (Days)", "Raw JSON",
}

func (r Row) values() []string {
	return []string{r.SourceType, r.Party, r.Product, r.PriceTotal, r.BuyDate, r.SellDate, r.DateDiff, r.RawJSON}
}

// SuccessMessage is the status line after n records were exported.
func SuccessMessage(format string, n int) string {
	return fmt.Sprintf("Data exported successfully to %s! (%d records)", format, n)
}

// Rows converts records to export rows.
func Rows(recs []model.Record) ([]Row, error) {
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, eris.Wrap(err, "export: marshal record")
		}
		row := Row{RawJSON: string(raw)}
		switch r := rec.(type) {
		case *model.Receipt:
			row.SourceType = string(model.SourceReceipt)
			row.Party = r.MerchantName
			row.Product = NotApplicable
			if len(r.LineItems) > 0 {
				names := make([]string, len(r.LineItems))
				for i, li := range r.LineItems {
					names[i] = li.Description
				}
				row.Product = strings.Join(names, "; ")
			}
			row.PriceTotal = r.Currency + " " + formatNumber(r.TotalAmount)
			row.BuyDate = r.Date
			row.SellDate = NotApplicable
			row.DateDiff = NotApplicable
		case *model.Voice:
			row.SourceType = string(model.SourceVoice)
			row.Party = r.UserName
			row.Product = r.ProductName
			row.PriceTotal = formatNumber(r.ProductPrice)
			row.BuyDate = r.BuyingDate
			row.SellDate = r.SellingDate
			row.DateDiff = strconv.Itoa(int(r.DateDifferenceDays))
		default:
			return nil, eris.Errorf("export: unknown record type %T", rec)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCSV writes a header line and one line per record.
func WriteCSV(w io.Writer, recs []model.Record) error {
	if len(recs) == 0 {
		return ErrNothingToExport
	}
	rows, err := Rows(recs)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.Encode(rows); err != nil {
		return eris.Wrap(err, "export: encode csv")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}

// WriteXLSX writes a workbook with a single sheet.
func WriteXLSX(w io.Writer, recs []model.Record) error {
	if len(recs) == 0 {
		return ErrNothingToExport
	}
	rows, err := Rows(recs)
	if err != nil {
		return err
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, Header)
	for _, r := range rows {
		addRow(sheet, r.values())
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
