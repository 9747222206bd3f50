// Package fuelname maps the fuel names used by the two upstream sources
// (bulk price export and live station API) onto one canonical fuel type.
//
// Lookup is exact match against an explicit alias table. Unknown names pass
// through unchanged so that comparison can still be attempted for fuels not
// yet catalogued; misses are counted and logged.
package fuelname

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Canonical fuel types.
const (
	Benzina        = "Benzina"
	Gasolio        = "Gasolio"
	GPL            = "GPL"
	Metano         = "Metano"
	LGNC           = "L-GNC"
	GNL            = "GNL"
	HVO            = "HVO"
	BlueSuper      = "Blue Super"
	BlueDiesel     = "Blue Diesel"
	BenzinaPlus    = "Benzina Plus"
	GasolioPremium = "Gasolio Premium"
	HiQDiesel      = "Hi-Q Diesel"
	BenzinaWR100   = "Benzina WR 100"
	E85            = "E85"
	Hydrogen       = "H2"
)

// Alias maps one raw upstream spelling to a canonical fuel type.
type Alias struct {
	Raw       string
	Canonical string
}

// DefaultAliases is the maintained alias table. Canonical names map to
// themselves so that a hit is distinguishable from a pass-through miss.
var DefaultAliases = []Alias{
	{Benzina, Benzina},
	{"Super Senza Piombo", Benzina},
	{"Benzina senza piombo", Benzina},
	{"SP95", Benzina},
	{"Benzina self", Benzina},
	{"BENZINA", Benzina},

	{Gasolio, Gasolio},
	{"Diesel", Gasolio},
	{"GASOLIO", Gasolio},
	{"Gasolio Autotrazione", Gasolio},

	{GPL, GPL},
	{"Gpl", GPL},
	{"G.P.L.", GPL},

	{Metano, Metano},
	{"METANO", Metano},
	{"Metano Autotrazione", Metano},

	{LGNC, LGNC},
	{"L-G.N.C.", LGNC},
	{GNL, GNL},
	{"G.N.L.", GNL},

	{HVO, HVO},
	{"HVOlution", HVO},
	{"Diesel HVO", HVO},
	{"HVO Diesel", HVO},

	{BlueSuper, BlueSuper},
	{"Blue super", BlueSuper},
	{BlueDiesel, BlueDiesel},
	{"Blue diesel", BlueDiesel},
	{"Gasolio Blue", BlueDiesel},

	{BenzinaPlus, BenzinaPlus},
	{"Benzina speciale", BenzinaPlus},
	{"Benzina Shell V Power", BenzinaPlus},
	{"V-Power", BenzinaPlus},
	{"HiQ Perform+", BenzinaPlus},

	{GasolioPremium, GasolioPremium},
	{"Gasolio speciale", GasolioPremium},
	{"Diesel Shell V Power", GasolioPremium},
	{"V-Power Diesel", GasolioPremium},
	{"Supreme Diesel", GasolioPremium},
	{"Excellium Diesel", GasolioPremium},

	{HiQDiesel, HiQDiesel},
	{"Hi-Q Diesel ", HiQDiesel},
	{"HiQ Diesel", HiQDiesel},

	{BenzinaWR100, BenzinaWR100},
	{"Benzina WR100", BenzinaWR100},
	{E85, E85},
	{Hydrogen, Hydrogen},
	{"Idrogeno", Hydrogen},
}

// Table is an immutable alias -> canonical lookup.
type Table struct {
	aliases map[string]string
}

// NewTable builds a table from aliases. A raw name mapped twice is an error,
// even when both entries agree.
func NewTable(aliases []Alias) (*Table, error) {
	m := make(map[string]string, len(aliases))
	for _, a := range aliases {
		if a.Raw == "" || a.Canonical == "" {
			return nil, fmt.Errorf("empty alias entry: %+v", a)
		}
		if prev, exists := m[a.Raw]; exists {
			return nil, fmt.Errorf("duplicate alias %q (-> %q and %q)", a.Raw, prev, a.Canonical)
		}
		m[a.Raw] = a.Canonical
	}
	return &Table{aliases: m}, nil
}

// DefaultTable returns the table built from DefaultAliases.
func DefaultTable() *Table {
	t, err := NewTable(DefaultAliases)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the canonical name for raw, and whether it is catalogued.
func (t *Table) Lookup(raw string) (string, bool) {
	c, ok := t.aliases[raw]
	return c, ok
}

// Canonicals returns the distinct canonical names, sorted.
func (t *Table) Canonicals() []string {
	seen := make(map[string]struct{})
	for _, c := range t.aliases {
		seen[c] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of aliases.
func (t *Table) Len() int {
	return len(t.aliases)
}

// Normalizer resolves raw names and records misses. Safe for concurrent use.
type Normalizer struct {
	table  *Table
	logger logrus.FieldLogger
	onMiss func(raw string)

	mu     sync.Mutex
	misses map[string]int
}

// Options configures a Normalizer.
type Options struct {
	Table  *Table             // Default: DefaultTable()
	Logger logrus.FieldLogger // Default: logrus.StandardLogger()
	OnMiss func(raw string)   // Optional hook, e.g. a metrics counter
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(opts Options) *Normalizer {
	table := opts.Table
	if table == nil {
		table = DefaultTable()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Normalizer{
		table:  table,
		logger: logger,
		onMiss: opts.OnMiss,
		misses: make(map[string]int),
	}
}

// Normalize returns the canonical fuel type for raw, or raw unchanged when
// the name is not in the table.
func (n *Normalizer) Normalize(raw string) string {
	if c, ok := n.table.Lookup(raw); ok {
		return c
	}

	n.mu.Lock()
	n.misses[raw]++
	first := n.misses[raw] == 1
	n.mu.Unlock()

	if first {
		n.logger.WithField("fuel", raw).Debug("uncatalogued fuel name, passing through")
	}
	if n.onMiss != nil {
		n.onMiss(raw)
	}
	return raw
}

// Misses returns a copy of the miss counts by raw name.
func (n *Normalizer) Misses() map[string]int {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make(map[string]int, len(n.misses))
	for k, v := range n.misses {
		out[k] = v
	}
	return out
}
