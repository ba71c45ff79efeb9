package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		line string
		want Reply
	}{
		{"OK", Reply{Kind: Ack}},
		{"move done OK", Reply{Kind: Ack}},
		{"ADC: 512", Reply{Kind: Sample, Value: 512}},
		{"ADC:-17", Reply{Kind: Sample, Value: -17}},
		{"ADC:   +5", Reply{Kind: Sample, Value: 5}},
		{"noise ADC: 9 trailing", Reply{Kind: Sample, Value: 9}},
		{"ok", Reply{}},     // marker is case-sensitive
		{"ADC: x1", Reply{}},
		{"booting v1.2", Reply{}},
		{"", Reply{}},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.line), "line %q", c.line)
	}
}

func TestClassify_SampleBeforeAck(t *testing.T) {
	// a line carrying both patterns always classifies as a sample,
	// regardless of which waiter sees it first
	r := Classify("OK ADC: 3")
	assert.Equal(t, Reply{Kind: Sample, Value: 3}, r)
}
