package object

// Table is glox's open-addressed hash table: every global scope,
// the VM's string-intern set, every Class's method table, and every
// Instance's field table is one of these. Capacity is always a power of
// two so `hash & (capacity-1)` replaces a modulo.
//
// This type lives in pkg/object, not a separate pkg/table, because its
// keys and values (*String, Value) are object-package types and its
// consumers (Class.Methods, Instance.Fields) are object-package types
// too — splitting it out would create an import cycle between object
// and table.
const tableMaxLoad = 0.75

type entry struct {
	key      *String // nil key + zero value   => empty slot
	value    Value   // nil key + Bool(true)    => tombstone
	occupied bool
}

// Table is an open-addressed hash set/map keyed on interned *String
// pointers.
type Table struct {
	count    int // live entries plus tombstones, for the load factor
	entries  []entry
}

// NewTable constructs an empty table. Capacity grows lazily on first
// insert, matching the source's capacity-0 initial state.
func NewTable() *Table {
	return &Table{}
}

// Count reports the number of live entries (tombstones excluded).
func (t *Table) Count() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].key != nil {
			n++
		}
	}
	return n
}

func (t *Table) capacity() int { return len(t.entries) }

// findEntry walks the probe sequence for key starting at hash&(cap-1),
// returning the slot that would hold key: either the live slot if
// present, or the first tombstone/empty slot seen, whichever comes first
// among tombstones (so repeated delete/insert reuses tombstone slots).
func findEntry(entries []entry, key *String) *entry {
	cap := len(entries)
	idx := int(key.Hash) & (cap - 1)
	var tombstone *entry
	for {
		e := &entries[idx]
		if !e.occupied {
			if e.key == nil {
				// Empty slot.
				if tombstone != nil {
					return tombstone
				}
				return e
			}
		} else if e.key == nil {
			// Tombstone.
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		idx = (idx + 1) & (cap - 1)
	}
}

func (t *Table) adjustCapacity(newCap int) {
	entries := make([]entry, newCap)
	t.count = 0
	for i := range t.entries {
		old := &t.entries[i]
		if old.key == nil {
			continue
		}
		dst := findEntry(entries, old.key)
		dst.key = old.key
		dst.value = old.value
		dst.occupied = true
		t.count++
	}
	t.entries = entries
}

// Get looks up key, returning its value and whether it was found.
func (t *Table) Get(key *String) (Value, bool) {
	if t.count == 0 && len(t.entries) == 0 {
		return Nil, false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return Nil, false
	}
	return e.value, true
}

// Set inserts or overwrites key's value, returning true if this created
// a brand new key (as opposed to overwriting an existing one).
func (t *Table) Set(key *String, value Value) bool {
	if float64(t.count+1) > float64(t.capacity())*tableMaxLoad {
		newCap := growCapacity(t.capacity())
		t.adjustCapacity(newCap)
	}
	e := findEntry(t.entries, key)
	isNew := e.key == nil
	if isNew && !e.occupied {
		// Only a brand new (never-tombstoned) slot grows count; reusing
		// a tombstone must not, since tombstones were already counted
		// against the load factor when they were created.
		t.count++
	}
	e.key = key
	e.value = value
	e.occupied = true
	return isNew
}

// Delete removes key, leaving a tombstone behind so later probes that
// skipped over this slot still find entries further down the chain.
func (t *Table) Delete(key *String) bool {
	if t.count == 0 && len(t.entries) == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	// Tombstone: key=nil, value=true, occupied=true.
	e.key = nil
	e.value = Bool(true)
	e.occupied = true
	return true
}

// AddAll copies every live entry from src into dst, used by INHERIT to
// seed a subclass's method table from its superclass.
func AddAll(src, dst *Table) {
	for i := range src.entries {
		e := &src.entries[i]
		if e.key != nil {
			dst.Set(e.key, e.value)
		}
	}
}

// FindString walks the probe chain comparing hash, length, and bytes —
// used by string interning before any String object has been allocated,
// so a cache hit never allocates.
func (t *Table) FindString(chars []byte, hash uint32) *String {
	if len(t.entries) == 0 {
		return nil
	}
	cap := len(t.entries)
	idx := int(hash) & (cap - 1)
	for {
		e := &t.entries[idx]
		if !e.occupied && e.key == nil {
			return nil
		}
		if e.key != nil && e.key.Hash == hash && len(e.key.Chars) == len(chars) && bytesEqual(e.key.Chars, chars) {
			return e.key
		}
		idx = (idx + 1) & (cap - 1)
	}
}

// RemoveWhite implements weak-reference behavior for the intern table:
// before sweep, drop every entry whose key string did not survive
// marking.
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.Marked() {
			t.Delete(e.key)
		}
	}
}

// Mark marks every live key and value in the table as a GC root/edge.
// Caller supplies the mark callback so this file has no dependency on
// the collector.
func (t *Table) Mark(markObj func(Obj), markValue func(Value)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			markObj(e.key)
			markValue(e.value)
		}
	}
}

// Each iterates every live key/value pair, for globals snapshotting and
// debugging; order is unspecified.
func (t *Table) Each(fn func(key *String, value Value)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			fn(e.key, e.value)
		}
	}
}

func growCapacity(cap int) int {
	if cap < 8 {
		return 8
	}
	return cap * 2
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HashBytes computes glox's FNV-1a 32-bit string hash. Constants match
// the offset basis (2166136261) and prime (16777619) confirmed by
// original_source/object.c's hashString.
func HashBytes(b []byte) uint32 {
	var hash uint32 = 2166136261
	for _, c := range b {
		hash ^= uint32(c)
		hash *= 16777619
	}
	return hash
}
