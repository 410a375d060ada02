package vm

// Interner deduplicates strings so repeated literals and
// concatenation results share storage. Interned strings also make
// global-name lookups cheap map hits.
type Interner struct {
	strings map[string]string
}

func NewInterner() *Interner {
	return &Interner{strings: make(map[string]string)}
}

// Intern returns the canonical instance of s.
func (in *Interner) Intern(s string) string {
	if canonical, ok := in.strings[s]; ok {
		return canonical
	}
	in.strings[s] = s
	return s
}

// Count returns the number of distinct interned strings.
func (in *Interner) Count() int {
	return len(in.strings)
}
