package core

// Stream is one ordered, finite sequence of statements executed by one worker.
type Stream struct {
	// Label identifies the stream in reports, usually the source file name.
	Label string `json:"label"`

	// Statements are executed strictly in order.
	Statements []string `json:"statements"`
}

// Len returns the number of statements in the stream.
func (s Stream) Len() int {
	return len(s.Statements)
}

// CountStatements returns the total number of statements across streams.
func CountStatements(streams []Stream) int {
	n := 0
	for _, s := range streams {
		n += s.Len()
	}
	return n
}
