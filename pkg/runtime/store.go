package runtime

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
)

var (
	ErrDoubleAllocation = errors.New("variable already allocated")
	ErrUnallocatedWrite = errors.New("write to unallocated variable")
	ErrDoubleBind       = errors.New("variable already bound")
	ErrBindUnbound      = errors.New("cannot bind a variable to Unbound")
)

// StoreError reports a violated single-assignment contract.
type StoreError struct {
	Err      error
	Variable Variable
	Existing Value
}

func (e *StoreError) Error() string {
	if e.Existing != nil && IsBound(e.Existing) {
		return fmt.Sprintf("%v: %s (bound to %s)", e.Err, e.Variable, Format(e.Existing))
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Variable)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Entry is one store slot as seen by observers.
type Entry struct {
	Variable Variable
	Value    Value
}

// Store is the single-assignment store. Each variable moves from unallocated
// to Unbound to a bound value and never changes again. The store is owned by
// one engine and is not safe for concurrent use.
type Store struct {
	cells *treemap.Map
}

func NewStore() *Store {
	return &Store{cells: treemap.NewWith(compareVariables)}
}

// Allocate introduces v in the Unbound state.
func (s *Store) Allocate(v Variable) error {
	if existing, found := s.cells.Get(v); found {
		return &StoreError{Err: ErrDoubleAllocation, Variable: v, Existing: existing.(Value)}
	}
	s.cells.Put(v, Unbound)
	return nil
}

// Read returns the current value of v, which may be Unbound. The second
// result is false when v was never allocated.
func (s *Store) Read(v Variable) (Value, bool) {
	raw, found := s.cells.Get(v)
	if !found {
		return nil, false
	}
	return raw.(Value), true
}

// Bind moves v from Unbound to value.
func (s *Store) Bind(v Variable, value Value) error {
	if !IsBound(value) {
		return &StoreError{Err: ErrBindUnbound, Variable: v}
	}
	raw, found := s.cells.Get(v)
	if !found {
		return &StoreError{Err: ErrUnallocatedWrite, Variable: v}
	}
	if current := raw.(Value); IsBound(current) {
		return &StoreError{Err: ErrDoubleBind, Variable: v, Existing: current}
	}
	s.cells.Put(v, value)
	return nil
}

// IsBound reports whether v is allocated and bound.
func (s *Store) IsBound(v Variable) bool {
	val, ok := s.Read(v)
	return ok && IsBound(val)
}

func (s *Store) Len() int {
	return s.cells.Size()
}

// Entries lists every allocated variable in allocation order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, s.cells.Size())
	it := s.cells.Iterator()
	for it.Next() {
		out = append(out, Entry{Variable: it.Key().(Variable), Value: it.Value().(Value)})
	}
	return out
}

// Dump writes the store as a two-column table.
func (s *Store) Dump(w io.Writer) {
	entries := s.Entries()
	width := len("Variable")
	for _, e := range entries {
		if n := len(e.Variable.String()); n > width {
			width = n
		}
	}
	rule := "|" + strings.Repeat("-", width+2) + "|---------"
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "| %-*s | Value\n", width, "Variable")
	fmt.Fprintln(w, rule)
	for _, e := range entries {
		fmt.Fprintf(w, "| %-*s | %s\n", width, e.Variable.String(), Format(e.Value))
	}
	fmt.Fprintln(w, rule)
}

// ByName returns every entry whose variable was introduced for name, in
// allocation order.
func (s *Store) ByName(name string) []Entry {
	var out []Entry
	it := s.cells.Iterator()
	for it.Next() {
		if v := it.Key().(Variable); v.Name == name {
			out = append(out, Entry{Variable: v, Value: it.Value().(Value)})
		}
	}
	return out
}
