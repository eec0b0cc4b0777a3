// Package keys builds the cache keys shared with the external snapshot
// pipeline and with invalidation publishers. Key shapes are part of the
// wire contract: changing one orphans every entry written under it.
package keys

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const (
	Pops             = "pops"
	EventosAbertos   = "eventos_abertos"
	Eventos          = "eventos"
	AtividadesEvento = "atividades_evento"
	AtividadesPop    = "atividades_pop"

	backupSuffix = "_backup"
	maxIDLen     = 64
)

// Param keys a parameterized resource as "{base}_{id}". Identifiers that are
// not plain tokens are replaced by a hash so user input never shapes the
// keyspace.
func Param(base, id string) string {
	id = strings.TrimSpace(id)
	if isToken(id) {
		return base + "_" + id
	}
	return fmt.Sprintf("%s_h%016x", base, xxhash.Sum64String(id))
}

// DateBucket keys one calendar day of a ranged resource, e.g.
// eventos_2022_06_09.
func DateBucket(base string, day time.Time) string {
	return fmt.Sprintf("%s_%04d_%02d_%02d", base, day.Year(), int(day.Month()), day.Day())
}

func Backup(key string) string { return key + backupSuffix }

func IsBackup(key string) bool { return strings.HasSuffix(key, backupSuffix) }

// Valid reports whether key is acceptable in an invalidation request.
func Valid(key string) bool {
	if key == "" || len(key) > 256 {
		return false
	}
	for _, r := range key {
		if r > unicode.MaxASCII || unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func isToken(s string) bool {
	if s == "" || len(s) > maxIDLen {
		return false
	}
	for _, r := range s {
		if !isAlphaNum(r) && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
