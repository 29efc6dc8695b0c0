package vm

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/utils"
)

// MinTraceLength is the smallest padded trace height.
const MinTraceLength = 16

// ExecutionTrace holds one program run as register columns. Row r carries
// the machine state before step r together with the control-flow and
// instruction bits of the step itself; the transition constraints relate
// each row to the next. The height is padded to a power of two with void
// rows that repeat the final state.
type ExecutionTrace struct {
	layout  TraceLayout
	columns [][]field.Element
	steps   int
}

func newExecutionTrace(layout TraceLayout, length int) *ExecutionTrace {
	columns := make([][]field.Element, layout.Width())
	for i := range columns {
		columns[i] = make([]field.Element, length)
	}
	return &ExecutionTrace{layout: layout, columns: columns}
}

// Layout returns the register layout of the trace.
func (t *ExecutionTrace) Layout() TraceLayout {
	return t.layout
}

// Width returns the number of columns.
func (t *ExecutionTrace) Width() int {
	return len(t.columns)
}

// Length returns the padded number of rows.
func (t *ExecutionTrace) Length() int {
	if len(t.columns) == 0 {
		return 0
	}
	return len(t.columns[0])
}

// Steps returns the number of rows before void padding.
func (t *ExecutionTrace) Steps() int {
	return t.steps
}

// Column returns column i. The slice is shared, not copied.
func (t *ExecutionTrace) Column(i int) []field.Element {
	return t.columns[i]
}

// Columns returns all columns. The slices are shared, not copied.
func (t *ExecutionTrace) Columns() [][]field.Element {
	return t.columns
}

// Get returns the value of column c at row r.
func (t *ExecutionTrace) Get(c, r int) field.Element {
	return t.columns[c][r]
}

// Row copies row r across all columns into a fresh slice.
func (t *ExecutionTrace) Row(r int) []field.Element {
	row := make([]field.Element, len(t.columns))
	for c := range t.columns {
		row[c] = t.columns[c][r]
	}
	return row
}

// Validate checks the structural invariants the prover relies on.
func (t *ExecutionTrace) Validate() error {
	if len(t.columns) != t.layout.Width() {
		return fmt.Errorf("trace has %d columns, layout expects %d", len(t.columns), t.layout.Width())
	}
	n := t.Length()
	if n < MinTraceLength || !utils.IsPowerOfTwo(n) {
		return fmt.Errorf("trace length %d is not a power of two >= %d", n, MinTraceLength)
	}
	for i, col := range t.columns {
		if len(col) != n {
			return fmt.Errorf("column %d has %d rows, expected %d", i, len(col), n)
		}
	}
	return nil
}
