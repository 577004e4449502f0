package report

import (
	"time"

	"github.com/rewired-gh/pulsereport/internal/models"
)

// Day is the length of one lookback window.
const Day = 24 * time.Hour

// DailyWindows returns n contiguous windows of one day, newest first.
// Window i covers [now-(i+1)d, now-i d), so the windows never overlap and
// their union is [now-n d, now).
func DailyWindows(now time.Time, n int) []models.Window {
	now = now.UTC()
	windows := make([]models.Window, 0, n)
	for i := 0; i < n; i++ {
		end := now.Add(-time.Duration(i) * Day)
		windows = append(windows, models.Window{Start: end.Add(-Day), End: end})
	}
	return windows
}
