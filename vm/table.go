package vm

// Table is an open-addressed hash table keyed by string content, used for
// string interning (value *Obj) and for the global name -> slot mapping
// (value int, boxed in the empty interface). Capacity is always a power
// of two; deletions leave a tombstone so probe chains stay intact.
type Table struct {
	entries    []tableEntry
	count      int // live entries + tombstones
	tombstones int
}

type tableEntry struct {
	key       string
	value     interface{}
	present   bool
	tombstone bool
}

const tableInitialCapacity = 8
const tableMaxLoad = 0.7

// NewTable creates an empty table with the minimum capacity.
func NewTable() *Table {
	return &Table{entries: make([]tableEntry, tableInitialCapacity)}
}

func hashString(s string) uint64 {
	// FNV-1a, used purely as the table's probe hash over the string key
	// (Value.Hash is not involved).
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// findEntry returns the index the key occupies or would occupy: a present
// entry with matching key, else the first tombstone seen, else the first
// empty slot. The probe sequence is linear: (hash+i) & (capacity-1).
func (t *Table) findEntry(key string) int {
	capacity := len(t.entries)
	mask := uint64(capacity - 1)
	index := hashString(key) & mask
	tombstone := -1

	for {
		e := &t.entries[index]
		if !e.present {
			if !e.tombstone {
				if tombstone != -1 {
					return tombstone
				}
				return int(index)
			}
			if tombstone == -1 {
				tombstone = int(index)
			}
		} else if e.key == key {
			return int(index)
		}
		index = (index + 1) & mask
	}
}

// Get looks up key, returning its value and whether it was present.
func (t *Table) Get(key string) (interface{}, bool) {
	if t.count == 0 {
		return nil, false
	}
	idx := t.findEntry(key)
	if !t.entries[idx].present {
		return nil, false
	}
	return t.entries[idx].value, true
}

// Has reports whether key is present.
func (t *Table) Has(key string) bool {
	_, ok := t.Get(key)
	return ok
}

// Set inserts or overwrites key -> value. Returns true if this created a
// brand-new key (not previously present, even as a tombstone).
func (t *Table) Set(key string, value interface{}) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow()
	}

	idx := t.findEntry(key)
	e := &t.entries[idx]
	isNew := !e.present

	if isNew && !e.tombstone {
		t.count++
	} else if e.tombstone {
		t.tombstones--
	}

	e.key = key
	e.value = value
	e.present = true
	e.tombstone = false
	return isNew
}

// Delete removes key, leaving a tombstone behind so later probes for
// other keys that hashed through this slot still find them.
func (t *Table) Delete(key string) bool {
	if t.count == 0 {
		return false
	}
	idx := t.findEntry(key)
	e := &t.entries[idx]
	if !e.present {
		return false
	}
	e.present = false
	e.tombstone = true
	e.value = nil
	t.tombstones++
	return true
}

// grow doubles capacity and re-inserts only the live (non-tombstone)
// entries, clearing tombstones entirely.
func (t *Table) grow() {
	oldEntries := t.entries
	t.entries = make([]tableEntry, len(oldEntries)*2)
	t.count = 0
	t.tombstones = 0
	for _, e := range oldEntries {
		if e.present {
			t.Set(e.key, e.value)
		}
	}
}

// GetObj and SetObj are typed convenience wrappers used by string
// interning, where the value is always *Obj.
func (t *Table) GetObj(key string) (*Obj, bool) {
	v, ok := t.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Obj), true
}
