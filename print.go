package relate

import (
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/table"
)

var kindLabels = map[RelationKind]string{
	KindBelongsTo:      "N-1",
	KindHasOne:         "1-1",
	KindHasMany:        "1-N",
	KindBelongsToMany:  "N-N",
	KindHasOneThrough:  "1-1 through",
	KindHasManyThrough: "1-N through",
	KindMorphOne:       "1-1 morph",
	KindMorphMany:      "1-N morph",
	KindMorphTo:        "N-1 morph",
	KindMorphToMany:    "N-N morph",
	KindMorphedByMany:  "N-N morph inverse",
}

// PrintSchematic renders every registered entity type, its storage
// settings and its declared relations as text tables. Useful during
// development to verify registrations.
func PrintSchematic(w io.Writer) {
	names := registeredEntityNames()

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Entity", "Table", "Primary Key", "Key Type", "Connection", "Soft Deletes"})
	for _, name := range names {
		s, err := SchemaOf(name)
		if err != nil {
			continue
		}
		keyType := "int"
		if s.keyType == KeyString {
			keyType = "string"
		}
		connName := s.connection
		if connName == "" {
			connName = "default"
		}
		tw.AppendRow(table.Row{s.name, s.table, s.primaryKey, keyType, connName, s.SoftDeletes()})
	}
	tw.Render()

	rw := table.NewWriter()
	rw.SetOutputMirror(w)
	rw.AppendHeader(table.Row{"Entity", "Relation", "Cardinality", "Related"})
	for _, name := range names {
		s, err := SchemaOf(name)
		if err != nil {
			continue
		}
		for _, relName := range s.relationOrder {
			def := s.relations[relName]
			related := def.related
			if def.kind == KindMorphTo {
				related = "(per row)"
			}
			rw.AppendRow(table.Row{s.name, relName, kindLabels[def.kind], related})
		}
	}
	rw.Render()
}

func registeredEntityNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
