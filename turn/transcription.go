package turn

import "time"

// TranscriptionItem is one recognized audio segment as delivered by the STT
// feed. Items are ephemeral: the machine buffers the text of meaningful items
// and discards the rest. TimestampUTC is the segment's own timestamp from the
// audio source; silence timers are anchored to the machine's clock instead,
// so a delayed delivery cannot retroactively shrink a silence window.
type TranscriptionItem struct {
	Sequence     int64
	TimestampUTC time.Time
	Text         string
	IsMeaningful bool
	WordCount    int
}
