package handler

import "fmt"

// State of a connection. Closed and Failed are terminal.
type State int32

const (
	Open State = iota
	Closing
	Closed
	Failed
)

var stateNames = [...]string{
	Open:    "open",
	Closing: "closing",
	Closed:  "closed",
	Failed:  "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

func (s State) Terminal() bool {
	return s == Closed || s == Failed
}
