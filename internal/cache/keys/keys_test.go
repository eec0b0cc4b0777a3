package keys

import (
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode"
)

func TestParam_PlainIDs(t *testing.T) {
	if got := Param(AtividadesEvento, "123"); got != "atividades_evento_123" {
		t.Fatalf("Param = %q", got)
	}
	if got := Param(AtividadesPop, " 7 "); got != "atividades_pop_7" {
		t.Fatalf("Param trims input, got %q", got)
	}
}

func TestParam_UnsafeIDsAreHashed(t *testing.T) {
	k1 := Param(AtividadesEvento, "1 OR 1=1")
	k2 := Param(AtividadesEvento, "1 OR 1=1")
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
	if !strings.HasPrefix(k1, "atividades_evento_h") {
		t.Fatalf("hashed key lost its base: %s", k1)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9_]+$`).MatchString(k1) {
		t.Fatalf("key contains disallowed characters: %s", k1)
	}
	if Param(AtividadesEvento, "São") == Param(AtividadesEvento, "Sao") {
		t.Fatalf("different ids must produce different keys")
	}
	for _, r := range Param(AtividadesEvento, "雪") {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key")
		}
	}
	long := strings.Repeat("9", maxIDLen+1)
	if Param(AtividadesPop, long) == AtividadesPop+"_"+long {
		t.Fatalf("overlong id must be hashed")
	}
}

func TestDateBucket_ZeroPads(t *testing.T) {
	d := time.Date(2022, 6, 9, 0, 0, 0, 0, time.UTC)
	if got := DateBucket(Eventos, d); got != "eventos_2022_06_09" {
		t.Fatalf("DateBucket = %q", got)
	}
}

func TestBackup(t *testing.T) {
	b := Backup(EventosAbertos)
	if b != "eventos_abertos_backup" || !IsBackup(b) || IsBackup(EventosAbertos) {
		t.Fatalf("backup key %q", b)
	}
}

func TestValid(t *testing.T) {
	for _, k := range []string{"pops", "eventos_2022_06_09", "cache_last_15min_rain_backup"} {
		if !Valid(k) {
			t.Fatalf("Valid(%q) = false", k)
		}
	}
	for _, k := range []string{"", "has space", "tab\tkey", "ünï", strings.Repeat("k", 257)} {
		if Valid(k) {
			t.Fatalf("Valid(%q) = true", k)
		}
	}
}
