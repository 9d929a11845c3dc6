package symbol

// Table is a compact symbol table: every name is stored together with its
// short form, the name with the table's common prefix removed.
type Table struct {
	prefix  string
	byShort map[string]string
	byFull  map[string]string
}

// NewTable builds a table for names using delimiter to find the common prefix.
func NewTable(names []string, delimiter string) *Table {
	_, prefix := LongestCommonPrefix(names, delimiter)
	t := &Table{
		prefix:  prefix,
		byShort: make(map[string]string, len(names)),
		byFull:  make(map[string]string, len(names)),
	}
	for _, name := range names {
		short := Strip(name, prefix)
		t.byFull[name] = short
		t.byShort[short] = name
	}
	return t
}

// Prefix returns the stripped common prefix.
func (t *Table) Prefix() string {
	return t.prefix
}

// Short returns the short form of a full name.
func (t *Table) Short(full string) (string, bool) {
	s, ok := t.byFull[full]
	return s, ok
}

// Resolve maps a full or short name to the full name. An exact full name
// takes precedence over a short one.
func (t *Table) Resolve(name string) (string, bool) {
	if _, ok := t.byFull[name]; ok {
		return name, true
	}
	full, ok := t.byShort[name]
	return full, ok
}

// Len returns the number of symbols in the table.
func (t *Table) Len() int {
	return len(t.byFull)
}
