package districts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// MinHistory is the fewest months a district needs before it can be flagged.
const MinHistory = 3

var monthLayouts = []string{"2006-01", "2006-01-02", "01-2006", "Jan 2006", "January 2006"}

type monthlyUpload struct {
	month time.Time
	total float64
}

// Classify reads a district,month,total_upload CSV with a header row and
// marks a district HIGH when its latest month is above the mean plus two
// sample standard deviations of all its months. Districts with fewer than
// MinHistory months are NORMAL.
func Classify(r io.Reader) (map[string]Level, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header, "district", "month", "total_upload")
	if err != nil {
		return nil, err
	}

	history := make(map[string][]monthlyUpload)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		district := strings.TrimSpace(rec[cols[0]])
		if district == "" {
			return nil, fmt.Errorf("line %d: empty district", line)
		}
		month, err := parseMonth(rec[cols[1]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		total, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[2]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: total_upload: %w", line, err)
		}
		history[district] = append(history[district], monthlyUpload{month: month, total: total})
	}

	levels := make(map[string]Level, len(history))
	for district, months := range history {
		levels[district] = classifyDistrict(months)
	}
	return levels, nil
}

func classifyDistrict(months []monthlyUpload) Level {
	if len(months) < MinHistory {
		return LevelNormal
	}
	latest := slices.MaxFunc(months, func(a, b monthlyUpload) int { return a.month.Compare(b.month) })

	var sum float64
	for _, m := range months {
		sum += m.total
	}
	mean := sum / float64(len(months))

	var sq float64
	for _, m := range months {
		sq += (m.total - mean) * (m.total - mean)
	}
	stddev := math.Sqrt(sq / float64(len(months)-1))

	if latest.total > mean+2*stddev {
		return LevelHigh
	}
	return LevelNormal
}

func columnIndex(header []string, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		pos := slices.IndexFunc(header, func(h string) bool {
			return strings.EqualFold(strings.TrimSpace(h), name)
		})
		if pos < 0 {
			return nil, fmt.Errorf("missing column %q", name)
		}
		idx[i] = pos
	}
	return idx, nil
}

func parseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised month %q", s)
}
