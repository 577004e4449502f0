package index

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/rewired-gh/pulsereport/internal/models"
	"github.com/rewired-gh/pulsereport/internal/naming"
	"github.com/rewired-gh/pulsereport/internal/report"
)

// Warning reports a problem with a single artifact during recovery.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

var titleRe = regexp.MustCompile(`<title>[^<]*? - (.*?) Report</title>`)

type markers struct {
	note   *regexp.Regexp // section note "<Note>: N"
	events *regexp.Regexp // stat card for the event count
	actors *regexp.Regexp // stat card for unique actors
}

func statCard(label string) *regexp.Regexp {
	return regexp.MustCompile(`<div class="stat-value">\s*(\d+)\s*</div>\s*<div class="stat-label">\s*` + regexp.QuoteMeta(label) + `\s*</div>`)
}

func markersFor(kind models.Kind) (markers, error) {
	labels, err := report.LabelsFor(kind)
	if err != nil {
		return markers{}, err
	}
	return markers{
		note:   regexp.MustCompile(`<p class="section-note">\s*` + regexp.QuoteMeta(labels.Note) + `: (\d+)\s*</p>`),
		events: statCard(labels.Events),
		actors: statCard(labels.Actors),
	}, nil
}

type recovered struct {
	key     string
	name    string
	summary models.ReportSummary
}

// Recover rebuilds an index of kind by scraping rendered artifacts. It is the
// last-resort path for when the ledger is lost: counts come from text markers
// in the page, and any marker that cannot be found yields zero.
//
// Paths that are not report filenames or cannot be read are skipped with a
// warning. When keys is non-nil, artifacts whose key belongs to no known
// entity are kept and warned about.
func Recover(kind models.Kind, paths []string, keys *naming.Keymap) (*models.MetadataIndex, []Warning, error) {
	m, err := markersFor(kind)
	if err != nil {
		return nil, nil, err
	}

	var warnings []Warning
	warn := func(path string, format string, args ...interface{}) {
		warnings = append(warnings, Warning{Path: path, Err: fmt.Errorf(format, args...)})
	}

	idx := models.NewMetadataIndex(kind)
	newest := make(map[string]string) // key -> date of the artifact the name came from
	for _, path := range paths {
		r, ok := recoverOne(path, m, warn)
		if !ok {
			continue
		}
		if keys != nil {
			if _, known := keys.EntityID(r.key); !known {
				warn(path, "key %q does not belong to a known entity", r.key)
			}
		}

		entry, exists := idx.Entries[r.key]
		if !exists {
			entry = models.IndexEntry{Name: r.key, Reports: []models.ReportSummary{}}
		}
		if r.name != "" && r.summary.Date >= newest[r.key] {
			entry.Name = r.name
			newest[r.key] = r.summary.Date
		}
		entry.Reports = append(entry.Reports, r.summary)
		idx.Entries[r.key] = entry
	}

	for key, entry := range idx.Entries {
		SortSummaries(entry.Reports)
		idx.Entries[key] = entry
	}
	return idx, warnings, nil
}

func recoverOne(path string, m markers, warn func(string, string, ...interface{})) (recovered, bool) {
	base := filepath.Base(path)
	key, date, _, err := naming.ParseReportFilename(base)
	if err != nil {
		warn(path, "%v", err)
		return recovered{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		warn(path, "read artifact: %v", err)
		return recovered{}, false
	}
	page := string(data)

	events, ok := firstInt(page, m.events, m.note)
	if !ok {
		warn(path, "event count marker not found, defaulting to 0")
	}
	actors, ok := firstInt(page, m.actors)
	if !ok {
		warn(path, "actor count marker not found, defaulting to 0")
	}
	if actors > events {
		warn(path, "actor count %d exceeds event count %d, resetting to 0", actors, events)
		actors = 0
	}

	var name string
	if match := titleRe.FindStringSubmatch(page); match != nil {
		name = html.UnescapeString(match[1])
	}

	return recovered{
		key:  key,
		name: name,
		summary: models.ReportSummary{
			Date:         date.Format(models.DateLayout),
			Filename:     base,
			EventCount:   events,
			UniqueActors: actors,
		},
	}, true
}

// firstInt returns the first capture of the first pattern that matches.
func firstInt(page string, patterns ...*regexp.Regexp) (int, bool) {
	for _, re := range patterns {
		if match := re.FindStringSubmatch(page); match != nil {
			if n, err := strconv.Atoi(match[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
