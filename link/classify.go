package link

import (
	"regexp"
	"strconv"
	"strings"
)

// ReplyKind tags a line received from the stage firmware.
type ReplyKind int

const (
	Unrecognized ReplyKind = iota
	Ack
	Sample
)

// Reply is one classified firmware line. Value is set for Sample lines.
type Reply struct {
	Kind  ReplyKind
	Value int
}

// AckMarker is the substring the firmware emits to confirm the most
// recent command.
const AckMarker = "OK"

var sampleRE = regexp.MustCompile(`ADC:\s*([-+]?\d+)`)

// Classify tags a single line. The firmware emits unstructured text, so
// anything that is neither a sample nor an acknowledgement is reported
// as Unrecognized and callers drop it without losing synchronization.
// Sample lines are checked before the ack marker so every caller
// classifies a given line the same way.
func Classify(line string) Reply {
	if m := sampleRE.FindStringSubmatch(line); m != nil {
		v, err := strconv.Atoi(m[1])
		if err == nil {
			return Reply{Kind: Sample, Value: v}
		}
	}
	if strings.Contains(line, AckMarker) {
		return Reply{Kind: Ack}
	}
	return Reply{}
}
