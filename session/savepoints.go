package session

// savepointStack is the ordered list of savepoint names currently open on a
// connection, innermost last. The empty string marks the unnamed outer
// transaction. Mutated only by Transaction entry/exit while holding the
// connection lock.
type savepointStack []string

func (s *savepointStack) push(name string) {
	*s = append(*s, name)
}

// pop removes and returns the top element unconditionally. The caller
// compares the result against the name it expected to close; a mismatch is
// the out-of-order-nesting signal, reported after the stack has already been
// corrected.
func (s *savepointStack) pop() string {
	old := *s
	name := old[len(old)-1]
	*s = old[:len(old)-1]
	return name
}

func (s savepointStack) depth() int {
	return len(s)
}
