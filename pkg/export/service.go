// Package export renders filtered enquiries as CSV or Excel downloads.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/enquiries"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/xuri/excelize/v2"
)

// Formats
const (
	FormatCSV   = "csv"
	FormatExcel = "xlsx"
)

// MaxRows caps a single export.
const MaxRows = 10000

const sheetName = "Enquiries"

// Source yields the enquiries matching a filter.
type Source interface {
	Export(ctx context.Context, f enquiries.Filter) ([]*models.Enquiry, error)
}

// Service handles export business logic
type Service struct {
	source  Source
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a new export service
func NewService(source Source, m *metrics.Metrics) *Service {
	return &Service{
		source:  source,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// File describes a rendered export.
type File struct {
	Name        string
	ContentType string
	Rows        int
}

var headers = []string{
	"Code", "Customer Name", "Phone", "Email", "Company", "City", "Type of Lead",
	"Profile", "Source", "Channel", "Estimated Value", "Status", "Stage", "Priority",
	"Assigned To", "Assigned Team", "Response Due", "Resolution Due", "Duplicate",
	"Duplicate Of", "Created At", "Closed At",
}

// Write renders the enquiries matching f into w.
func (s *Service) Write(ctx context.Context, w io.Writer, format string, f enquiries.Filter) (*File, error) {
	contentType, err := ContentType(format)
	if err != nil {
		return nil, err
	}

	list, err := s.source.Export(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(list) > MaxRows {
		return nil, domain.NewValidationError(
			fmt.Sprintf("export matches %d enquiries, narrow the filter to %d or fewer", len(list), MaxRows))
	}

	switch format {
	case FormatCSV:
		err = writeCSV(w, list)
	default:
		err = writeExcel(w, list)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordExportCreated(format)
	return &File{
		Name:        fmt.Sprintf("enquiries-%s.%s", s.now().Format("20060102-150405"), format),
		ContentType: contentType,
		Rows:        len(list),
	}, nil
}

// ContentType maps a format to its MIME type.
func ContentType(format string) (string, error) {
	switch format {
	case FormatCSV:
		return "text/csv", nil
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil
	}
	return "", domain.NewValidationError("invalid format: must be csv or xlsx")
}

func record(e *models.Enquiry) []string {
	return []string{
		e.Code,
		e.CustomerName,
		e.Phone,
		e.Email,
		e.Company,
		e.City,
		string(e.TypeOfLead),
		string(e.Profile),
		e.SourceType,
		e.ChannelType,
		strconv.FormatFloat(e.EstimatedValue, 'f', 2, 64),
		string(e.Status),
		string(e.Stage),
		string(e.Priority),
		deref(e.AssignedTo),
		e.AssignedTeam,
		formatTime(&e.ResponseDue),
		formatTime(&e.ResolutionDue),
		strconv.FormatBool(e.IsDuplicate),
		deref(e.DuplicateOf),
		formatTime(&e.CreatedAt),
		formatTime(e.ClosedAt),
	}
}

func writeCSV(w io.Writer, list []*models.Enquiry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range list {
		if err := writer.Write(record(e)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeExcel(w io.Writer, list []*models.Enquiry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for r, e := range list {
		values := record(e)
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var err error
			if c == 10 {
				// numeric so spreadsheets can sum it
				err = f.SetCellValue(sheetName, cell, e.EstimatedValue)
			} else {
				err = f.SetCellValue(sheetName, cell, v)
			}
			if err != nil {
				return err
			}
		}
	}

	last, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetColWidth(sheetName, "A", last, 18); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
