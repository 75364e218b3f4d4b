package timeline

import (
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/Gopher0727/ChatTimeline/internal/model"
)

// Disruptions flags, by position, the messages on either side of a
// temporal gap.
type Disruptions struct {
	before *bitset.BitSet
	after  *bitset.BitSet
}

// DetectDisruptions compares consecutive creation times. A gap strictly
// greater than threshold marks the earlier message as before-disruption and
// the later one as after-disruption.
func DetectDisruptions(messages []*model.Message, threshold time.Duration) *Disruptions {
	n := uint(len(messages))
	d := &Disruptions{
		before: bitset.New(n),
		after:  bitset.New(n),
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Created.Sub(messages[i-1].Created) > threshold {
			d.before.Set(uint(i - 1))
			d.after.Set(uint(i))
		}
	}
	return d
}

func (d *Disruptions) Before(i int) bool { return d.before.Test(uint(i)) }

func (d *Disruptions) After(i int) bool { return d.after.Test(uint(i)) }

// Count returns the number of gaps found.
func (d *Disruptions) Count() int { return int(d.before.Count()) }
