// Package naming derives the identifiers that join report artifacts, index
// entries and ledger rows.
//
// The human-readable key strips a single leading minus sign from chat ids and
// replaces the "/" of repository ids with "_". That mapping is lossy, so a
// Keymap built over the actual entity set switches colliding entities to a
// fallback form ("n" prefix for negative chat ids, "~" separator for
// repositories) that cannot be produced by either family's plain form.
// Ledger rows use SurrogateKey instead, which is stable and collision-free.
package naming

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rewired-gh/pulsereport/internal/models"
)

const fileDateLayout = "20060102"

var reportFileRe = regexp.MustCompile(`^report_(.+)_(\d{8})\.([A-Za-z0-9]+)$`)

// Sanitize returns the plain filename-safe key for an entity id.
func Sanitize(kind models.Kind, id string) (string, error) {
	switch kind {
	case models.KindChat:
		return strings.TrimPrefix(id, "-"), nil
	case models.KindRepository:
		return strings.ReplaceAll(id, "/", "_"), nil
	}
	return "", fmt.Errorf("entity kind %q is not supported", kind)
}

// fallback returns the collision-free key form used when plain keys collide.
func fallback(kind models.Kind, id string) (string, error) {
	switch kind {
	case models.KindChat:
		if digits, ok := strings.CutPrefix(id, "-"); ok {
			return "n" + digits, nil
		}
		return id, nil
	case models.KindRepository:
		return strings.ReplaceAll(id, "/", "~"), nil
	}
	return "", fmt.Errorf("entity kind %q is not supported", kind)
}

// SurrogateKey returns a stable, kind-tagged key for an entity id.
func SurrogateKey(kind models.Kind, id string) string {
	sum := sha256.Sum256([]byte(string(kind) + "|" + id))
	return hex.EncodeToString(sum[:16])
}

// Keymap is an injective mapping between entity ids and sanitized keys.
type Keymap struct {
	byID  map[string]string
	byKey map[string]string
}

// NewKeymap assigns a key to every entity. Entities whose plain keys collide
// all receive their fallback key. Duplicate ids are rejected.
func NewKeymap(entities []models.Entity) (*Keymap, error) {
	km := &Keymap{
		byID:  make(map[string]string, len(entities)),
		byKey: make(map[string]string, len(entities)),
	}

	plain := make(map[string][]models.Entity)
	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate entity id %q", e.ID)
		}
		seen[e.ID] = true
		key, err := Sanitize(e.Kind, e.ID)
		if err != nil {
			return nil, err
		}
		plain[key] = append(plain[key], e)
	}

	keys := make([]string, 0, len(plain))
	for k := range plain {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		group := plain[key]
		if len(group) == 1 {
			km.assign(group[0], key)
			continue
		}
		for _, e := range group {
			alt, err := fallback(e.Kind, e.ID)
			if err != nil {
				return nil, err
			}
			km.assign(e, alt)
		}
	}

	if len(km.byKey) != len(km.byID) {
		return nil, fmt.Errorf("entity keys are not unique")
	}
	return km, nil
}

func (km *Keymap) assign(e models.Entity, key string) {
	km.byID[e.ID] = key
	km.byKey[key] = e.ID
}

// Key returns the key assigned to an entity id.
func (km *Keymap) Key(id string) (string, bool) {
	key, ok := km.byID[id]
	return key, ok
}

// EntityID resolves a key back to the entity id it was assigned to.
func (km *Keymap) EntityID(key string) (string, bool) {
	id, ok := km.byKey[key]
	return id, ok
}

// Len returns the number of mapped entities.
func (km *Keymap) Len() int {
	return len(km.byID)
}

// ReportFilename returns report_{key}_{YYYYMMDD}.{ext} for the day of date in UTC.
func ReportFilename(key string, date time.Time, ext string) string {
	return fmt.Sprintf("report_%s_%s.%s", key, date.UTC().Format(fileDateLayout), strings.TrimPrefix(ext, "."))
}

// ParseReportFilename splits a report filename into key, date and extension.
// The key is returned as written; for chats the sign of the original id is lost.
func ParseReportFilename(name string) (key string, date time.Time, ext string, err error) {
	m := reportFileRe.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, "", fmt.Errorf("not a report filename: %q", name)
	}
	date, err = time.Parse(fileDateLayout, m[2])
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("invalid date in %q: %w", name, err)
	}
	return m[1], date, m[3], nil
}
