package ir

// StageKind names one native aggregation stage.
type StageKind string

const (
	StageMatch   StageKind = "$match"
	StageProject StageKind = "$project"
	StageUnwind  StageKind = "$unwind"
	StageSort    StageKind = "$sort"
	StageLimit   StageKind = "$limit"
	StageSkip    StageKind = "$skip"
	StageGroup   StageKind = "$group"
	StageLookup  StageKind = "$lookup"
)

// Stage is one aggregation stage: {Kind: Body}.
type Stage struct {
	Kind StageKind
	Body Value
}

// Document returns the stage in its native single-field document form.
func (s Stage) Document() Document {
	return Document{{Key: string(s.Kind), Value: s.Body}}
}

// ColumnMeta describes one output column of a Program.
type ColumnMeta struct {
	Ordinal     int     `json:"ordinal"` // 1-based
	Label       string  `json:"label"`
	Field       string  `json:"field"` // key of the value in each output document
	Table       string  `json:"table,omitempty"`
	Type        SQLType `json:"type"`
	Nullable    bool    `json:"nullable"`
	DisplaySize int     `json:"display_size"`
	Precision   int     `json:"precision"`
	Scale       int     `json:"scale"`
}

// Program is a compiled query: the collection to aggregate, the ordered
// stages and the metadata of the columns each output document carries.
// A Program is immutable once compiled.
type Program struct {
	Collection string       `json:"collection"`
	Stages     []Stage      `json:"-"`
	Columns    []ColumnMeta `json:"columns"`
}

// Pipeline returns the stages as native stage documents.
func (p *Program) Pipeline() Array {
	out := make(Array, len(p.Stages))
	for i, s := range p.Stages {
		out[i] = s.Document()
	}
	return out
}

// StageKinds returns the kind of every stage, in order.
func (p *Program) StageKinds() []StageKind {
	out := make([]StageKind, len(p.Stages))
	for i, s := range p.Stages {
		out[i] = s.Kind
	}
	return out
}

// MarshalJSON renders the program as canonical JSON, stages in extended JSON.
func (p *Program) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(p.canonical())
}

func (p *Program) canonical() map[string]any {
	cols := make([]any, len(p.Columns))
	for i, c := range p.Columns {
		m := map[string]any{
			"ordinal":  c.Ordinal,
			"label":    c.Label,
			"field":    c.Field,
			"type":     c.Type.String(),
			"nullable": c.Nullable,
		}
		if c.Table != "" {
			m["table"] = c.Table
		}
		cols[i] = m
	}
	return map[string]any{
		"collection": p.Collection,
		"pipeline":   p.Pipeline(),
		"columns":    cols,
	}
}
