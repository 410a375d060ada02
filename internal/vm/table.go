package vm

// Table is a string-keyed map that remembers first-definition order,
// used for the global table so snapshots list globals stably.
type Table struct {
	entries map[string]Value
	order   []string
}

func NewTable() *Table {
	return &Table{entries: make(map[string]Value)}
}

// Get returns the value bound to name.
func (t *Table) Get(name string) (Value, bool) {
	v, ok := t.entries[name]
	return v, ok
}

// Set binds name, preserving its original position if it exists.
func (t *Table) Set(name string, v Value) {
	if _, exists := t.entries[name]; !exists {
		t.order = append(t.order, name)
	}
	t.entries[name] = v
}

// Has reports whether name is bound.
func (t *Table) Has(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// Delete removes name. It reports whether the name was bound.
func (t *Table) Delete(name string) bool {
	if _, ok := t.entries[name]; !ok {
		return false
	}
	delete(t.entries, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of bindings.
func (t *Table) Len() int {
	return len(t.entries)
}

// Names returns the bound names in first-definition order.
func (t *Table) Names() []string {
	names := make([]string, len(t.order))
	copy(names, t.order)
	return names
}

// Each calls f for every binding in first-definition order.
func (t *Table) Each(f func(name string, v Value)) {
	for _, name := range t.order {
		f(name, t.entries[name])
	}
}
