package naming

import (
	"testing"
	"time"

	"github.com/rewired-gh/pulsereport/internal/models"
)

func chat(id string) models.Entity { return models.Entity{ID: id, Kind: models.KindChat} }
func repo(id string) models.Entity { return models.Entity{ID: id, Kind: models.KindRepository} }

func TestReportFilenameRoundTrip(t *testing.T) {
	km, err := NewKeymap([]models.Entity{chat("-1002009589709")})
	if err != nil {
		t.Fatalf("NewKeymap failed: %v", err)
	}
	key, ok := km.Key("-1002009589709")
	if !ok {
		t.Fatal("Expected key for chat")
	}

	date := time.Date(2025, 7, 17, 18, 45, 0, 0, time.UTC)
	name := ReportFilename(key, date, "html")
	if name != "report_1002009589709_20250717.html" {
		t.Fatalf("Unexpected filename %s", name)
	}

	gotKey, gotDate, ext, err := ParseReportFilename(name)
	if err != nil {
		t.Fatalf("ParseReportFilename failed: %v", err)
	}
	if gotKey != "1002009589709" {
		t.Errorf("Expected key 1002009589709, got %s", gotKey)
	}
	if gotDate.Format("2006-01-02") != "2025-07-17" {
		t.Errorf("Expected date 2025-07-17, got %s", gotDate.Format("2006-01-02"))
	}
	if ext != "html" {
		t.Errorf("Expected ext html, got %s", ext)
	}
	if id, ok := km.EntityID(gotKey); !ok || id != "-1002009589709" {
		t.Errorf("Expected keymap to restore the signed id, got %q", id)
	}
}

func TestParseReportFilename_RepositoryKeyWithUnderscores(t *testing.T) {
	key, date, _, err := ParseReportFilename("report_ethereum_consensus-specs_20240102.html")
	if err != nil {
		t.Fatalf("ParseReportFilename failed: %v", err)
	}
	if key != "ethereum_consensus-specs" {
		t.Errorf("Expected key ethereum_consensus-specs, got %s", key)
	}
	if date.Day() != 2 || date.Month() != time.January {
		t.Errorf("Unexpected date %v", date)
	}
}

func TestParseReportFilename_Invalid(t *testing.T) {
	for _, name := range []string{"metadata.json", "report_123.html", "report_1_2025071.html", "report_1_20251399.html", "report__20250101"} {
		if _, _, _, err := ParseReportFilename(name); err == nil {
			t.Errorf("Expected error for %q", name)
		}
	}
}

func TestKeymap_SignCollision(t *testing.T) {
	km, err := NewKeymap([]models.Entity{chat("5"), chat("-5")})
	if err != nil {
		t.Fatalf("NewKeymap failed: %v", err)
	}
	pos, _ := km.Key("5")
	neg, _ := km.Key("-5")
	if pos == neg {
		t.Fatalf("Expected distinct keys, both are %q", pos)
	}
	if neg != "n5" || pos != "5" {
		t.Errorf("Unexpected fallback keys: 5=%q -5=%q", pos, neg)
	}
	if id, _ := km.EntityID(neg); id != "-5" {
		t.Errorf("Expected n5 to resolve to -5, got %q", id)
	}
}

func TestKeymap_SeparatorCollision(t *testing.T) {
	km, err := NewKeymap([]models.Entity{repo("a_b/c"), repo("a/b_c"), repo("ethereum/EIPs")})
	if err != nil {
		t.Fatalf("NewKeymap failed: %v", err)
	}
	k1, _ := km.Key("a_b/c")
	k2, _ := km.Key("a/b_c")
	if k1 == k2 {
		t.Fatalf("Expected distinct keys, both are %q", k1)
	}
	if k3, _ := km.Key("ethereum/EIPs"); k3 != "ethereum_EIPs" {
		t.Errorf("Expected non-colliding repo to keep plain key, got %q", k3)
	}
}

func TestKeymap_MixedKindsAndDuplicates(t *testing.T) {
	km, err := NewKeymap([]models.Entity{chat("-100"), repo("owner/name")})
	if err != nil {
		t.Fatalf("NewKeymap failed: %v", err)
	}
	if km.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", km.Len())
	}

	if _, err := NewKeymap([]models.Entity{chat("1"), chat("1")}); err == nil {
		t.Error("Expected duplicate ids to be rejected")
	}
	if _, err := NewKeymap([]models.Entity{{ID: "1", Kind: "channel"}}); err == nil {
		t.Error("Expected unknown kind to be rejected")
	}
}

func TestSurrogateKey(t *testing.T) {
	a := SurrogateKey(models.KindChat, "5")
	b := SurrogateKey(models.KindChat, "-5")
	c := SurrogateKey(models.KindRepository, "5")
	if a == b || a == c {
		t.Errorf("Expected distinct surrogate keys, got %s %s %s", a, b, c)
	}
	if a != SurrogateKey(models.KindChat, "5") {
		t.Error("Expected surrogate key to be stable")
	}
	if len(a) != 32 {
		t.Errorf("Expected 32 hex chars, got %d", len(a))
	}
}
