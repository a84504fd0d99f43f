// Command genfixture converts NOAA SPC storm report CSV files into an incident
// fixture the timeline service can load with SOURCE=file.
//
// Every file named YYMMDD_rpts_{hail,torn,wind}.csv in -csv-dir is read. SPC
// report days run from 12Z to 12Z, so times before 1200 belong to the next
// calendar day.
//
// Usage:
//
//	go run ./cmd/genfixture \
//	  -csv-dir ../storm-data-system/mock-server/data \
//	  -out data/incidents.json
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-timeline/internal/adapter/fixture"
	"github.com/couchcryptid/storm-data-timeline/internal/bucket"
	"github.com/couchcryptid/storm-data-timeline/internal/domain"
)

var reportFile = regexp.MustCompile(`^(\d{6})_rpts_(hail|torn|wind)\.csv$`)

var categories = map[string]string{
	"hail": "hail",
	"torn": "tornado",
	"wind": "wind",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvDir := flag.String("csv-dir", "", "directory containing NOAA SPC CSV files")
	out := flag.String("out", "", "output fixture path (.json, .yaml or .yml)")
	epoch := flag.String("epoch", "2020-01-01", "week 0 start used for the summary")
	flag.Parse()

	if *csvDir == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv-dir, -out")
	}

	rows, err := readDir(*csvDir)
	if err != nil {
		return err
	}
	log.Printf("total: %d records", len(rows))

	if err := writeFixture(*out, rows); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote fixture: %s", *out)

	start, err := time.Parse(domain.DateLayout, *epoch)
	if err != nil {
		return fmt.Errorf("parse -epoch: %w", err)
	}
	printWeeks(rows, start)
	return nil
}

// readDir reads every SPC report file in dir, oldest day first.
func readDir(dir string) ([]domain.IncidentRow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read csv dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && reportFile.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no SPC report files in %s", dir)
	}
	sort.Strings(names)

	var rows []domain.IncidentRow //nolint:prealloc // size depends on CSV file contents
	for _, name := range names {
		m := reportFile.FindStringSubmatch(name)
		day, err := time.Parse("060102", m[1])
		if err != nil {
			return nil, fmt.Errorf("parse date in %s: %w", name, err)
		}
		recs, err := readReports(filepath.Join(dir, name), categories[m[2]], day)
		if err != nil {
			return nil, fmt.Errorf("processing %s: %w", name, err)
		}
		log.Printf("%s: %d records", name, len(recs))
		rows = append(rows, recs...)
	}
	return rows, nil
}

func readReports(path, category string, day time.Time) ([]domain.IncidentRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 2 {
		return []domain.IncidentRow{}, nil
	}

	colIdx := map[string]int{}
	for i, h := range records[0] {
		colIdx[strings.TrimSpace(h)] = i
	}

	rows := make([]domain.IncidentRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		at, err := reportTime(day, get(rec, colIdx, "Time"))
		if err != nil {
			log.Printf("%s: skipping row: %v", filepath.Base(path), err)
			continue
		}
		lat, errLat := strconv.ParseFloat(get(rec, colIdx, "Lat"), 64)
		lon, errLon := strconv.ParseFloat(get(rec, colIdx, "Lon"), 64)
		if errLat != nil || errLon != nil {
			log.Printf("%s: skipping row without coordinates", filepath.Base(path))
			continue
		}
		rows = append(rows, domain.IncidentRow{
			Timestamp: at.Format(time.RFC3339),
			Latitude:  domain.Number(lat),
			Longitude: domain.Number(lon),
			Category:  category,
		})
	}
	return rows, nil
}

// reportTime resolves an SPC HHMM time against the report day.
func reportTime(day time.Time, hhmm string) (time.Time, error) {
	if len(hhmm) != 4 {
		return time.Time{}, fmt.Errorf("invalid time %q", hhmm)
	}
	h, errH := strconv.Atoi(hhmm[:2])
	m, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || h > 23 || m > 59 {
		return time.Time{}, fmt.Errorf("invalid time %q", hhmm)
	}
	at := day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	if h < 12 {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func writeFixture(path string, rows []domain.IncidentRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fixture.Encode(f, fixture.FormatOf(path), rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printWeeks(rows []domain.IncidentRow, epoch time.Time) {
	incidents := make([]domain.Incident, len(rows))
	for i, r := range rows {
		incidents[i] = r.Incident()
	}
	idx := bucket.Build(incidents, epoch)

	fmt.Println("\n=== Weeks ===")
	for _, week := range idx.Weeks() {
		sum := idx.Summarize(week)
		fmt.Printf("week %d (%s): %d", week, epoch.AddDate(0, 0, 7*week).Format(domain.DateLayout), sum.Total)
		for _, c := range sum.Top(-1) {
			fmt.Printf(" %s=%d", c.Category, c.Count)
		}
		fmt.Println()
	}
	fmt.Printf("dropped: %d\n", idx.Dropped())
}
