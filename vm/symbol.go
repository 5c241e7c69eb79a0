package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// StringTable: interned strings
// ---------------------------------------------------------------------------

// StringTable interns strings to unique IDs carried in STRING cell payloads.
// Interned strings are immutable and live for the VM's lifetime.
type StringTable struct {
	mu     sync.RWMutex
	byName map[string]int32 // text -> ID
	byID   []string         // ID -> text
}

// NewStringTable creates a new empty intern table.
func NewStringTable() *StringTable {
	return &StringTable{
		byName: make(map[string]int32),
		byID:   make([]string, 0, 64),
	}
}

// Intern returns the ID for s, creating a new one if needed. It fails with
// ErrPayloadRange once the 16-bit STRING payload space is exhausted.
func (st *StringTable) Intern(s string) (int32, error) {
	st.mu.RLock()
	if id, ok := st.byName[s]; ok {
		st.mu.RUnlock()
		return id, nil
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check after acquiring the write lock.
	if id, ok := st.byName[s]; ok {
		return id, nil
	}
	id := int32(len(st.byID))
	if id > MaxPayload {
		return 0, fmt.Errorf("vm: intern: %w: string table full", ErrPayloadRange)
	}
	st.byName[s] = id
	st.byID = append(st.byID, s)
	return id, nil
}

// Name returns the text for an ID, or "" if invalid.
func (st *StringTable) Name(id int32) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if id < 0 || int(id) >= len(st.byID) {
		return ""
	}
	return st.byID[id]
}

// Len returns the number of interned strings.
func (st *StringTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}

// Value interns s and wraps its ID in a STRING cell.
func (st *StringTable) Value(s string) (Value, error) {
	id, err := st.Intern(s)
	if err != nil {
		return 0, err
	}
	return Encode(TagString, id)
}

// ---------------------------------------------------------------------------
// Dictionary: names to tagged references
// ---------------------------------------------------------------------------

// Entry binds a name to the tagged reference that names it: a BUILTIN cell
// for native operations or a CODE cell for compiled definitions. Immediate
// marks words the compiler executes at compile time.
type Entry struct {
	Name      string
	Ref       Value
	Immediate bool
}

// Dictionary maps names to tagged references. Entries are append-only:
// redefining a name shadows the older entry rather than mutating it, so
// references already captured by value (capsules, compiled calls) stay
// valid after redefinition.
type Dictionary struct {
	mu      sync.RWMutex
	entries []Entry
	byName  map[string]int // name -> newest entry index
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{byName: make(map[string]int)}
}

// DefineBuiltin binds name to a BUILTIN reference with the given operation
// index.
func (d *Dictionary) DefineBuiltin(name string, op int32) (Value, error) {
	ref, err := Encode(TagBuiltin, op)
	if err != nil {
		return 0, fmt.Errorf("vm: define %q: %w", name, err)
	}
	d.define(Entry{Name: name, Ref: ref})
	return ref, nil
}

// DefineCode binds name to a CODE reference with the given resolved byte
// address.
func (d *Dictionary) DefineCode(name string, addr int) (Value, error) {
	ref, err := Encode(TagCode, int32(addr))
	if err != nil {
		return 0, fmt.Errorf("vm: define %q: %w", name, err)
	}
	d.define(Entry{Name: name, Ref: ref})
	return ref, nil
}

func (d *Dictionary) define(e Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byName[e.Name] = len(d.entries)
	d.entries = append(d.entries, e)
}

// Resolve returns the newest reference bound to name.
func (d *Dictionary) Resolve(name string) (Value, bool) {
	e, ok := d.ResolveEntry(name)
	return e.Ref, ok
}

// ResolveEntry returns the newest entry bound to name, including its
// compiler metadata.
func (d *Dictionary) ResolveEntry(name string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.byName[name]
	if !ok {
		return Entry{}, false
	}
	return d.entries[i], true
}

// SetImmediate marks the newest entry for name as compile-time immediate.
// It reports whether the name was found.
func (d *Dictionary) SetImmediate(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.byName[name]
	if !ok {
		return false
	}
	d.entries[i].Immediate = true
	return true
}

// Len returns the number of entries, shadowed ones included.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Mark returns a checkpoint for Forget.
func (d *Dictionary) Mark() int {
	return d.Len()
}

// Forget drops every entry defined at or after the checkpoint and restores
// shadowed bindings. Used by the REPL to roll back a failed load.
func (d *Dictionary) Forget(mark int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mark < 0 || mark > len(d.entries) {
		return
	}
	d.entries = d.entries[:mark]
	d.byName = make(map[string]int, len(d.entries))
	for i, e := range d.entries {
		d.byName[e.Name] = i
	}
}

// All returns a copy of every entry in definition order. Used by the image
// codec.
func (d *Dictionary) All() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}
