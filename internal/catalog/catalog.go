// Package catalog reads template and message definition files into a
// datafield.Templates and a message.Registry.
//
// Files are CSV with one definition per line; lines starting with '#' are
// comments. Rows that fail to build are logged and skipped, so one bad
// definition never aborts the load.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danmuck/ebusctl/internal/observability"
	"github.com/danmuck/ebusctl/internal/protocol/datafield"
	"github.com/danmuck/ebusctl/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

// TemplatesFile is loaded before any message file of a directory.
const TemplatesFile = "_templates.csv"

const (
	kindTemplates = "templates"
	kindMessages  = "messages"
)

// RowError locates a skipped row.
type RowError struct {
	Path string
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Report summarizes one loaded file.
type Report struct {
	Path     string
	Rows     int
	Loaded   int
	Defaults int
	Skipped  []RowError
}

// Err joins the skipped row errors, or returns nil.
func (r Report) Err() error {
	errs := make([]error, len(r.Skipped))
	for i, e := range r.Skipped {
		errs[i] = e
	}
	return errors.Join(errs...)
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	return cr
}

// readRows calls fn for every non-empty row. Only read errors stop the walk.
func readRows(r io.Reader, fn func(line int, row []string)) error {
	cr := newReader(r)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if blank(row) {
			continue
		}
		line, _ := cr.FieldPos(0)
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		fn(line, row)
	}
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func skip(report *Report, kind string, line int, err error) {
	rowErr := RowError{Path: report.Path, Line: line, Err: err}
	report.Skipped = append(report.Skipped, rowErr)
	observability.RecordCatalogRow(kind, observability.ResultLabel(err))
	log.Warn().
		Str("file", report.Path).
		Int("line", line).
		Err(err).
		Msg("catalog row skipped")
}

// ReadTemplates adds every "name,type,divisor/values,unit,comment" row of r.
func ReadTemplates(r io.Reader, name string, templates *datafield.Templates) (Report, error) {
	report := Report{Path: name}
	err := readRows(r, func(line int, row []string) {
		report.Rows++
		if err := templates.Add(row); err != nil {
			skip(&report, kindTemplates, line, err)
			return
		}
		report.Loaded++
		observability.RecordCatalogRow(kindTemplates, observability.ResultOK)
	})
	if err != nil {
		return report, fmt.Errorf("read templates %s: %w", name, err)
	}
	log.Debug().Str("file", name).Int("loaded", report.Loaded).Int("skipped", len(report.Skipped)).Msg("catalog templates read")
	return report, nil
}

// ReadMessages creates and registers every message row of r. Defaults rows
// apply to the rows after them within the same input.
func ReadMessages(r io.Reader, name string, templates *datafield.Templates, registry *message.Registry) (Report, error) {
	report := Report{Path: name}
	defaults := &message.Defaults{}
	err := readRows(r, func(line int, row []string) {
		report.Rows++
		if message.IsDefaultsRow(row) {
			if err := defaults.Add(row); err != nil {
				skip(&report, kindMessages, line, err)
				return
			}
			report.Defaults++
			observability.RecordCatalogRow(kindMessages, "defaults")
			return
		}
		m, err := message.Create(row, defaults, templates)
		if err != nil {
			skip(&report, kindMessages, line, err)
			return
		}
		if err := registry.Add(m); err != nil {
			skip(&report, kindMessages, line, err)
			return
		}
		report.Loaded++
		observability.RecordCatalogRow(kindMessages, observability.ResultOK)
	})
	if err != nil {
		return report, fmt.Errorf("read messages %s: %w", name, err)
	}
	log.Debug().
		Str("file", name).
		Int("loaded", report.Loaded).
		Int("defaults", report.Defaults).
		Int("skipped", len(report.Skipped)).
		Msg("catalog messages read")
	return report, nil
}

func LoadTemplates(path string, templates *datafield.Templates) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{Path: path}, fmt.Errorf("load templates: %w", err)
	}
	defer f.Close()
	return ReadTemplates(f, path, templates)
}

func LoadMessages(path string, templates *datafield.Templates, registry *message.Registry) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{Path: path}, fmt.Errorf("load messages: %w", err)
	}
	defer f.Close()
	return ReadMessages(f, path, templates, registry)
}

// LoadDir loads TemplatesFile, then every other *.csv of dir in name order.
func LoadDir(dir string, templates *datafield.Templates, registry *message.Registry) ([]Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load catalog dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	hasTemplates := false
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		if e.Name() == TemplatesFile {
			hasTemplates = true
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	reports := make([]Report, 0, len(names)+1)
	if hasTemplates {
		report, err := LoadTemplates(filepath.Join(dir, TemplatesFile), templates)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
	}
	for _, name := range names {
		report, err := LoadMessages(filepath.Join(dir, name), templates, registry)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// Load loads each path, which may be a directory or a message file.
func Load(paths []string, templates *datafield.Templates, registry *message.Registry) ([]Report, error) {
	var reports []Report
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return reports, fmt.Errorf("load catalog: %w", err)
		}
		if info.IsDir() {
			rs, err := LoadDir(path, templates, registry)
			reports = append(reports, rs...)
			if err != nil {
				return reports, err
			}
			continue
		}
		report, err := LoadMessages(path, templates, registry)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}
