package results

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/yungbote/birdscan-backend/internal/types"
)

const (
	primaryBase  = "bird-results-"
	enhancedBase = "enhanced-bird-results-"
	tableExt     = ".csv"
)

// PrimaryKey derives the store key for a batch's primary table.
func PrimaryKey(resultsPrefix, batch string) string {
	return resultsPrefix + primaryBase + batch + tableExt
}

// EnhancedKey derives the store key for a batch's enhanced table.
func EnhancedKey(resultsPrefix, batch string) string {
	return resultsPrefix + enhancedBase + batch + tableExt
}

// KindOfKey reports which table kind a store key names, or false for keys
// that are not result tables.
func KindOfKey(key string) (types.TableKind, bool) {
	base := key
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if !strings.HasSuffix(base, tableExt) {
		return "", false
	}
	switch {
	case strings.HasPrefix(base, enhancedBase):
		return types.TableKindEnhanced, true
	case strings.HasPrefix(base, primaryBase):
		return types.TableKindPrimary, true
	default:
		return "", false
	}
}

// BatchOfKey extracts the batch discriminator embedded in a result table key.
func BatchOfKey(key string) (string, bool) {
	kind, ok := KindOfKey(key)
	if !ok {
		return "", false
	}
	base := key
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, tableExt)
	switch kind {
	case types.TableKindEnhanced:
		return strings.TrimPrefix(base, enhancedBase), true
	default:
		return strings.TrimPrefix(base, primaryBase), true
	}
}

// EncodePrimary serializes rows as delimited text with the itemName,count
// header. A batch with zero usable results still yields the header row.
func EncodePrimary(rows []types.PrimaryRow) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"itemName", "count"})
	for _, r := range rows {
		_ = w.Write([]string{r.Name, strconv.Itoa(r.Count)})
	}
	w.Flush()
	return buf.Bytes()
}

// ParsePrimary decodes a primary table, validating the header.
func ParsePrimary(b []byte) ([]types.PrimaryRow, error) {
	r := csv.NewReader(bytes.NewReader(b))
	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse primary table: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("parse primary table: missing header")
	}
	if len(recs[0]) < 2 || recs[0][0] != "itemName" || recs[0][1] != "count" {
		return nil, fmt.Errorf("parse primary table: unexpected header %v", recs[0])
	}
	rows := make([]types.PrimaryRow, 0, len(recs)-1)
	for _, rec := range recs[1:] {
		n, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("parse primary table: count %q: %w", rec[1], err)
		}
		rows = append(rows, types.PrimaryRow{Name: rec[0], Count: n})
	}
	return rows, nil
}

// EncodeEnhanced serializes enhanced rows. Rows whose classification failed
// carry only itemName and count; readers must accept ragged records.
func EncodeEnhanced(rows []types.EnhancedRow) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"itemName", "count", "category", "confidence"})
	for _, r := range rows {
		rec := []string{r.Name, strconv.Itoa(r.Count)}
		if r.Category != "" {
			rec = append(rec, r.Category)
			if r.Confidence != nil {
				rec = append(rec, strconv.FormatFloat(*r.Confidence, 'f', 2, 64))
			}
		}
		_ = w.Write(rec)
	}
	w.Flush()
	return buf.Bytes()
}

// ParseEnhanced decodes an enhanced table.
func ParseEnhanced(b []byte) ([]types.EnhancedRow, error) {
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse enhanced table: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("parse enhanced table: missing header")
	}
	if len(recs[0]) < 2 || recs[0][0] != "itemName" || recs[0][1] != "count" {
		return nil, fmt.Errorf("parse enhanced table: unexpected header %v", recs[0])
	}
	rows := make([]types.EnhancedRow, 0, len(recs)-1)
	for _, rec := range recs[1:] {
		if len(rec) < 2 {
			return nil, fmt.Errorf("parse enhanced table: short record %v", rec)
		}
		n, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("parse enhanced table: count %q: %w", rec[1], err)
		}
		row := types.EnhancedRow{Name: rec[0], Count: n}
		if len(rec) > 2 && rec[2] != "" {
			row.Category = rec[2]
		}
		if len(rec) > 3 && rec[3] != "" {
			c, err := strconv.ParseFloat(rec[3], 64)
			if err != nil {
				return nil, fmt.Errorf("parse enhanced table: confidence %q: %w", rec[3], err)
			}
			row.Confidence = &c
		}
		rows = append(rows, row)
	}
	return rows, nil
}
