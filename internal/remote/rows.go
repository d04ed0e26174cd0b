package remote

import (
	"encoding/json"
	"fmt"

	twxerrors "github.com/ctagard/twx-dap/internal/errors"
)

// Row is implemented by every typed result row
type Row interface {
	Validate() error
}

// DecodeRows decodes every row of a result into T.
// A row that does not decode or misses a required field fails the whole result.
func DecodeRows[T Row](r *Result) ([]T, error) {
	rows := make([]T, 0, len(r.Rows))
	for i, raw := range r.Rows {
		var row T
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, twxerrors.Protocol(r.Service, fmt.Sprintf("row %d: %v", i, err))
		}
		if err := row.Validate(); err != nil {
			return nil, twxerrors.Protocol(r.Service, fmt.Sprintf("row %d: %v", i, err))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FirstRow decodes the first row of a result into T; an empty result is an error
func FirstRow[T Row](r *Result) (T, error) {
	var zero T
	raw, err := FirstRaw(r)
	if err != nil {
		return zero, err
	}
	var row T
	if err := json.Unmarshal(raw, &row); err != nil {
		return zero, twxerrors.Protocol(r.Service, fmt.Sprintf("row 0: %v", err))
	}
	if err := row.Validate(); err != nil {
		return zero, twxerrors.Protocol(r.Service, fmt.Sprintf("row 0: %v", err))
	}
	return row, nil
}

// FirstRaw returns the first row undecoded; an empty result is an error
func FirstRaw(r *Result) (json.RawMessage, error) {
	if r == nil || len(r.Rows) == 0 {
		service := ""
		if r != nil {
			service = r.Service
		}
		return nil, twxerrors.Protocol(service, "expected at least one row")
	}
	return r.Rows[0], nil
}

func missing(field string) error {
	return fmt.Errorf("missing required field %q", field)
}

// BreakpointRow is one row of setBreakpointsForFile
type BreakpointRow struct {
	ID        int    `json:"id"`
	Verified  *bool  `json:"verified"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine"`
	EndColumn int    `json:"endColumn"`
	Message   string `json:"message"`
}

// Validate implements Row
func (r BreakpointRow) Validate() error {
	if r.Verified == nil {
		return missing("verified")
	}
	return nil
}

// LocationRow is one row of getBreakpointLocationsInFile
type LocationRow struct {
	Line      *int `json:"line"`
	Column    int  `json:"column"`
	EndLine   int  `json:"endLine"`
	EndColumn int  `json:"endColumn"`
}

// Validate implements Row
func (r LocationRow) Validate() error {
	if r.Line == nil {
		return missing("line")
	}
	return nil
}

// ThreadRow is one row of getThreads
type ThreadRow struct {
	ID *int `json:"id"`
}

// Validate implements Row
func (r ThreadRow) Validate() error {
	if r.ID == nil {
		return missing("id")
	}
	return nil
}

// FrameRow is one row of getStackTraceInThread
type FrameRow struct {
	ID        *int   `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine"`
	EndColumn int    `json:"endColumn"`
}

// Validate implements Row
func (r FrameRow) Validate() error {
	if r.ID == nil {
		return missing("id")
	}
	return nil
}

// ScopeRow is one row of getScopesInThread
type ScopeRow struct {
	Name               string `json:"name"`
	VariablesReference *int   `json:"variablesReference"`
	NamedVariables     int    `json:"namedVariables"`
	IndexedVariables   int    `json:"indexedVariables"`
}

// Validate implements Row
func (r ScopeRow) Validate() error {
	if r.Name == "" {
		return missing("name")
	}
	if r.VariablesReference == nil {
		return missing("variablesReference")
	}
	return nil
}

// VariableRow is one row of getVariableContents
type VariableRow struct {
	Name               *string `json:"name"`
	Value              string  `json:"value"`
	Type               string  `json:"type"`
	EvaluateName       string  `json:"evaluateName"`
	VariablesReference int     `json:"variablesReference"`
	NamedVariables     int     `json:"namedVariables"`
	IndexedVariables   int     `json:"indexedVariables"`
}

// Validate implements Row
func (r VariableRow) Validate() error {
	if r.Name == nil {
		return missing("name")
	}
	return nil
}

// ValueRow is the first row of setVariable, evaluate and evaluateGlobally.
// The value is reported as "value" or, by some server versions, as "result".
type ValueRow struct {
	Value              *string `json:"value"`
	Result             *string `json:"result"`
	Type               string  `json:"type"`
	VariablesReference int     `json:"variablesReference"`
	NamedVariables     int     `json:"namedVariables"`
	IndexedVariables   int     `json:"indexedVariables"`
}

// Validate implements Row
func (r ValueRow) Validate() error {
	if r.Value == nil && r.Result == nil {
		return missing("value")
	}
	return nil
}

// Text returns the rendered value
func (r ValueRow) Text() string {
	if r.Value != nil {
		return *r.Value
	}
	return *r.Result
}
