package frame

import (
	"fmt"
	"strings"
)

// Frame is a resolved stack entry. Its identity fields are fixed once the
// frame table is decoded; only the weight aggregates change while a profile
// is under construction. A single Frame is shared by reference across every
// call tree node that represents a call to it.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"filename,omitempty"`
	Line     uint32 `json:"lineno,omitempty"`
	Module   string `json:"module,omitempty"`
	InApp    bool   `json:"in_app,omitempty"`

	// SelfWeight is the total time attributed directly to this frame across
	// all of its occurrences, TotalWeight the inclusive time. Both only ever
	// grow during construction.
	SelfWeight  uint64 `json:"-"`
	TotalWeight uint64 `json:"-"`
}

// Key returns a stable identity string for deduplicating frames across
// export tables.
func (f *Frame) Key() string {
	return fmt.Sprintf("%s:%s:%s:%d", f.Module, f.Function, f.File, f.Line)
}

// DisplayName is the name used in rendered stacks.
func (f *Frame) DisplayName() string {
	name := strings.TrimSpace(f.Function)
	if name == "" {
		return "<unknown>"
	}
	return name
}
