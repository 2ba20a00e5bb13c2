// Package chart models the per-session odontogram: which diagnoses were
// charted on which tooth during a visit.
package chart

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ToothDx maps a tooth number (FDI notation, kept as string) to the
// diagnosis labels charted on it.
type ToothDx map[string][]string

// Clone returns an independent deep copy.
func (t ToothDx) Clone() ToothDx {
	if t == nil {
		return nil
	}
	out := make(ToothDx, len(t))
	for tooth, dxs := range t {
		cp := make([]string, len(dxs))
		copy(cp, dxs)
		out[tooth] = cp
	}
	return out
}

// IsEmpty reports whether no tooth carries a diagnosis.
func (t ToothDx) IsEmpty() bool {
	for _, dxs := range t {
		if len(dxs) > 0 {
			return false
		}
	}
	return true
}

// Summary renders the chart as one "Diente N: dx1, dx2" line per tooth,
// ordered by tooth number. Teeth without diagnoses are omitted. The output
// is deterministic so it can seed a session's diagnosis text.
func Summary(t ToothDx) string {
	teeth := make([]string, 0, len(t))
	for tooth, dxs := range t {
		if len(dxs) > 0 {
			teeth = append(teeth, tooth)
		}
	}
	sort.Slice(teeth, func(i, j int) bool {
		a, aerr := strconv.Atoi(teeth[i])
		b, berr := strconv.Atoi(teeth[j])
		if aerr == nil && berr == nil {
			return a < b
		}
		return teeth[i] < teeth[j]
	})

	lines := make([]string, 0, len(teeth))
	for _, tooth := range teeth {
		lines = append(lines, fmt.Sprintf("Diente %s: %s", tooth, strings.Join(t[tooth], ", ")))
	}
	return strings.Join(lines, "\n")
}
