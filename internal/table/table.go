// Package table reads and writes histories and lag samples as CSV tables.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tworate/internal/model"
)

const (
	colTime    = "time"
	colCountry = "country"
)

// WriteHistory writes the long layout: one row per country and time with
// columns time, country, short_rate, term_rate.
func WriteHistory(w io.Writer, h model.History) error {
	writer := csv.NewWriter(w)
	header := append([]string{colTime, colCountry}, model.Features...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, s := range h.Series {
		for _, st := range s.States {
			record := []string{strconv.Itoa(st.Time), s.Country}
			for _, f := range model.Features {
				v, _ := st.Feature(f)
				record = append(record, formatFloat(v))
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFeature writes the wide layout of one feature: a time column followed
// by one column per country.
func WriteFeature(w io.Writer, h model.History, feature string) error {
	if !model.IsFeature(feature) {
		return model.NewConfigError("feature", "unknown feature %q", feature)
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(append([]string{colTime}, h.Countries()...)); err != nil {
		return err
	}
	for k := 0; k < h.Steps(); k++ {
		record := []string{strconv.Itoa(h.Series[0].States[k].Time)}
		for _, s := range h.Series {
			v, _ := s.States[k].Feature(feature)
			record = append(record, formatFloat(v))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadHistory parses the long layout written by WriteHistory. Countries keep
// the order of their first appearance and the step is inferred from the
// first two times.
func ReadHistory(r io.Reader) (model.History, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return model.History{}, fmt.Errorf("history table is empty")
	}
	if err != nil {
		return model.History{}, fmt.Errorf("read history csv header: %w", err)
	}
	index, err := columnIndex(header, append([]string{colTime, colCountry}, model.Features...)...)
	if err != nil {
		return model.History{}, err
	}

	var h model.History
	position := make(map[string]int)
	rowIndex := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.History{}, fmt.Errorf("read history csv row %d: %w", rowIndex, err)
		}
		rowIndex++
		if blankRecord(record) {
			continue
		}

		t, err := strconv.Atoi(strings.TrimSpace(record[index[colTime]]))
		if err != nil {
			return model.History{}, fmt.Errorf("parse history row %d time: %w", rowIndex, err)
		}
		short, err := parseFloat(record[index[model.FeatureShortRate]])
		if err != nil {
			return model.History{}, fmt.Errorf("parse history row %d short_rate: %w", rowIndex, err)
		}
		term, err := parseFloat(record[index[model.FeatureTermRate]])
		if err != nil {
			return model.History{}, fmt.Errorf("parse history row %d term_rate: %w", rowIndex, err)
		}

		country := strings.TrimSpace(record[index[colCountry]])
		pos, ok := position[country]
		if !ok {
			pos = len(h.Series)
			position[country] = pos
			h.Series = append(h.Series, model.CountrySeries{Country: country})
		}
		h.Series[pos].States = append(h.Series[pos].States, model.RateState{Time: t, ShortRate: short, TermRate: term})
	}

	h.StepMonths = 1
	if len(h.Series) > 0 && len(h.Series[0].States) > 1 {
		h.StepMonths = h.Series[0].States[1].Time - h.Series[0].States[0].Time
	}
	if err := h.Validate(); err != nil {
		return model.History{}, err
	}
	return h, nil
}

// WriteLagSample writes columns country, time and then every sample column.
func WriteLagSample(w io.Writer, s model.LagSample) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(append([]string{colCountry, colTime}, s.Columns...)); err != nil {
		return err
	}
	for _, row := range s.Rows {
		record := []string{row.Country, strconv.Itoa(row.Time)}
		for _, v := range row.Values {
			record = append(record, formatFloat(v))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadLagSample parses a table written by WriteLagSample. Features and the
// lag are recovered from the column names.
func ReadLagSample(r io.Reader) (model.LagSample, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return model.LagSample{}, fmt.Errorf("lag sample table is empty")
	}
	if err != nil {
		return model.LagSample{}, fmt.Errorf("read lag sample csv header: %w", err)
	}
	if len(header) < 4 || header[0] != colCountry || header[1] != colTime {
		return model.LagSample{}, fmt.Errorf("lag sample header must start with %s,%s and carry value columns", colCountry, colTime)
	}

	s := model.LagSample{Columns: append([]string(nil), header[2:]...)}
	for i := 0; i+1 < len(s.Columns); i += 2 {
		feature := strings.TrimSuffix(s.Columns[i], "(t)")
		if feature == s.Columns[i] {
			return model.LagSample{}, fmt.Errorf("column %q is not a current-time column", s.Columns[i])
		}
		lagged := s.Columns[i+1]
		prefix := feature + "(t"
		if !strings.HasPrefix(lagged, prefix) || !strings.HasSuffix(lagged, ")") {
			return model.LagSample{}, fmt.Errorf("column %q does not pair with %q", lagged, s.Columns[i])
		}
		label := strings.TrimSuffix(strings.TrimPrefix(lagged, prefix), ")")
		months, err := model.ParseLagLabel(label)
		if err != nil {
			return model.LagSample{}, err
		}
		if s.LagMonths != 0 && s.LagMonths != months {
			return model.LagSample{}, fmt.Errorf("lag sample mixes lags %d and %d", s.LagMonths, months)
		}
		s.LagMonths = months
		s.LagLabel = label
		s.Features = append(s.Features, feature)
	}
	if len(s.Columns)%2 != 0 {
		return model.LagSample{}, fmt.Errorf("lag sample has an unpaired column %q", s.Columns[len(s.Columns)-1])
	}

	rowIndex := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.LagSample{}, fmt.Errorf("read lag sample csv row %d: %w", rowIndex, err)
		}
		rowIndex++
		if blankRecord(record) {
			continue
		}
		t, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			return model.LagSample{}, fmt.Errorf("parse lag sample row %d time: %w", rowIndex, err)
		}
		values := make([]float64, 0, len(s.Columns))
		for i, raw := range record[2:] {
			v, err := parseFloat(raw)
			if err != nil {
				return model.LagSample{}, fmt.Errorf("parse lag sample row %d column %s: %w", rowIndex, s.Columns[i], err)
			}
			values = append(values, v)
		}
		s.Rows = append(s.Rows, model.LagRow{Country: strings.TrimSpace(record[0]), Time: t, Values: values})
	}
	return s, nil
}

// WriteFile creates path (and its directory) and streams write into it.
func WriteFile(path string, write func(io.Writer) error) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("table file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func ReadHistoryFile(path string) (model.History, error) {
	file, err := os.Open(path)
	if err != nil {
		return model.History{}, err
	}
	defer file.Close()
	return ReadHistory(file)
}

func ReadLagSampleFile(path string) (model.LagSample, error) {
	file, err := os.Open(path)
	if err != nil {
		return model.LagSample{}, err
	}
	defer file.Close()
	return ReadLagSample(file)
}

func columnIndex(header []string, names ...string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range names {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("table is missing column %q", name)
		}
	}
	return index, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}
