// Package importpkg turns CSV uploads into enquiry batches.
package importpkg

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/enquiries"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// Importer creates a validated batch of enquiries.
type Importer interface {
	Import(ctx context.Context, rows []enquiries.CreateRequest, actor string) (*enquiries.ImportResult, error)
}

// CSVConfig holds configuration for CSV import
type CSVConfig struct {
	MaxRows      int  // Maximum data rows accepted (0 = unlimited)
	ValidateOnly bool // Parse only, don't import
}

// DefaultCSVConfig returns default configuration
func DefaultCSVConfig() CSVConfig {
	return CSVConfig{
		MaxRows: 5000,
	}
}

// RequiredFields defines the required CSV columns
var RequiredFields = []string{
	"customer_name",
	"phone",
	"type_of_lead",
}

// OptionalFields defines optional CSV columns
var OptionalFields = []string{
	"email",
	"company",
	"city",
	"description",
	"enquiry_profile",
	"source_type",
	"channel_type",
	"estimated_value",
	"priority",
	"remark",
}

// Result reports an import run.
type Result struct {
	TotalRows int      `json:"total_rows"`
	Created   int      `json:"created"`
	Duplicate int      `json:"duplicates"`
	Codes     []string `json:"codes,omitempty"`
	Validated bool     `json:"validate_only,omitempty"`
	Duration  string   `json:"duration"`
}

// CSVImportService handles bulk import of enquiries from CSV
type CSVImportService struct {
	importer Importer
	log      logger.Logger
}

// NewCSVImportService creates a new CSV import service
func NewCSVImportService(importer Importer, log logger.Logger) *CSVImportService {
	if log == nil {
		log = logger.Nop()
	}
	return &CSVImportService{importer: importer, log: log}
}

// ImportFromCSV parses every row and hands the batch to the importer. Parse problems are
// collected across the whole file and reported together; nothing is created when any row fails.
func (s *CSVImportService) ImportFromCSV(ctx context.Context, r io.Reader, actor string, config CSVConfig) (*Result, error) {
	start := time.Now()

	rows, err := ParseCSV(r, config)
	if err != nil {
		return nil, err
	}

	result := &Result{TotalRows: len(rows), Validated: config.ValidateOnly}
	if config.ValidateOnly {
		result.Duration = time.Since(start).String()
		return result, nil
	}

	res, err := s.importer.Import(ctx, rows, actor)
	if err != nil {
		return nil, err
	}
	result.Created = res.Created
	result.Duplicate = res.Duplicates
	result.Codes = res.Codes
	result.Duration = time.Since(start).String()

	s.log.Info("CSV import completed", "rows", result.TotalRows, "created", result.Created,
		"duplicates", result.Duplicate, "duration", result.Duration)
	return result, nil
}

// ParseCSV reads a header row followed by data rows. Row numbers in errors count data rows
// from 1.
func ParseCSV(r io.Reader, config CSVConfig) ([]enquiries.CreateRequest, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.NewValidationError("import file is empty")
	}
	if err != nil {
		return nil, domain.NewBadRequestError(fmt.Sprintf("failed to read CSV header: %v", err))
	}

	headerMap := make(map[string]int, len(headers))
	for i, h := range headers {
		headerMap[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, field := range RequiredFields {
		if _, ok := headerMap[field]; !ok {
			missing = append(missing, "missing required column: "+field)
		}
	}
	if len(missing) > 0 {
		return nil, domain.NewValidationError("invalid CSV header", missing...)
	}

	var (
		rows    []enquiries.CreateRequest
		details []string
	)
	for rowNum := 1; ; rowNum++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if config.MaxRows > 0 && rowNum > config.MaxRows {
			return nil, domain.NewValidationError(fmt.Sprintf("import exceeds the %d row limit", config.MaxRows))
		}
		if err != nil {
			details = append(details, fmt.Sprintf("row %d: CSV read error: %v", rowNum, err))
			continue
		}
		if blank(record) {
			rowNum--
			continue
		}

		req, err := parseRow(record, headerMap)
		if err != nil {
			details = append(details, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		rows = append(rows, req)
	}

	if len(details) > 0 {
		return nil, domain.NewValidationError("import rejected", details...)
	}
	if len(rows) == 0 {
		return nil, domain.NewValidationError("import file has no rows")
	}
	return rows, nil
}

func parseRow(record []string, headerMap map[string]int) (enquiries.CreateRequest, error) {
	get := func(field string) string {
		if i, ok := headerMap[field]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	req := enquiries.CreateRequest{
		CustomerName: get("customer_name"),
		Phone:        get("phone"),
		Email:        get("email"),
		Company:      get("company"),
		City:         get("city"),
		Description:  get("description"),
		TypeOfLead:   models.LeadType(strings.ToUpper(get("type_of_lead"))),
		Profile:      models.Profile(get("enquiry_profile")),
		SourceType:   get("source_type"),
		ChannelType:  get("channel_type"),
		Priority:     models.Priority(strings.ToUpper(get("priority"))),
		Remark:       get("remark"),
	}

	if v := get("estimated_value"); v != "" {
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return req, fmt.Errorf("estimated_value %q is not a number", v)
		}
		req.EstimatedValue = f
	}
	return req, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
