package fileupload

import "fmt"

// State is one lifecycle event of an upload.
// The set of implementations is closed: Started, Progress, Done and Failed.
type State interface {
	fmt.Stringer
	isState()
}

// Started is emitted once, before the request is sent.
type Started struct{}

// Progress reports the percentage of the file written to the request body so far.
type Progress struct {
	Percent int
}

// Done carries the server response. Non-2xx responses end up here too.
type Done struct {
	Body       string
	StatusCode int
}

// Failed carries the cause of a failed upload.
type Failed struct {
	Err error
}

func (Started) isState()  {}
func (Progress) isState() {}
func (Done) isState()     {}
func (Failed) isState()   {}

func (Started) String() string { return "Started" }

func (p Progress) String() string { return fmt.Sprintf("Progress(%d)", p.Percent) }

func (d Done) String() string { return fmt.Sprintf("Done(%d, %s)", d.StatusCode, d.Body) }

func (f Failed) String() string { return fmt.Sprintf("Failed(%v)", f.Err) }

// IsTerminal reports whether no event can follow s.
func IsTerminal(s State) bool {
	switch s.(type) {
	case Done, Failed:
		return true
	default:
		return false
	}
}
