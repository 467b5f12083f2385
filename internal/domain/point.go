package domain

// PointMapping binds one addressable OPC UA point to a PDT property name.
type PointMapping struct {
	Namespace  string `json:"namespace" yaml:"namespace"`
	Identifier string `json:"identifier" yaml:"identifier"`
	Property   string `json:"parameter" yaml:"parameter"`
}

// PointTable is the ordered, read-only list of mappings polled each cycle.
// Insertion order is poll order.
type PointTable struct {
	points []PointMapping
}

// NewPointTable copies points so later changes to the caller's slice are not
// observed by the poll loop.
func NewPointTable(points []PointMapping) PointTable {
	cp := make([]PointMapping, len(points))
	copy(cp, points)
	return PointTable{points: cp}
}

// Points returns a copy of the mappings in poll order.
func (t PointTable) Points() []PointMapping {
	cp := make([]PointMapping, len(t.points))
	copy(cp, t.points)
	return cp
}

func (t PointTable) Len() int { return len(t.points) }

// At returns the i-th mapping without copying the whole table.
func (t PointTable) At(i int) PointMapping { return t.points[i] }
