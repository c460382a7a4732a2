package process

// NewScripted returns an already-finished process that replays lines and
// then reports err from Wait.
func NewScripted(lines []string, err error) *Process {
	p := &Process{
		lines: make(chan string, len(lines)),
		done:  make(chan struct{}),
		err:   err,
	}
	for _, line := range lines {
		p.lines <- line
	}
	close(p.lines)
	close(p.done)
	return p
}
