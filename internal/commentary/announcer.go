package commentary

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// BeepAnnouncer fetches announcement clips over HTTP and renders them
// through the beep speaker. Only one clip plays at a time; Stop drains
// the speaker so a suppressed clip never invokes its done callback.
type BeepAnnouncer struct {
	client *http.Client
	logger *slog.Logger

	initOnce   sync.Once
	sampleRate beep.SampleRate
}

func NewBeepAnnouncer(logger *slog.Logger) *BeepAnnouncer {
	return &BeepAnnouncer{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (b *BeepAnnouncer) Play(url string, done func(err error)) {
	go func() {
		resp, err := b.client.Get(url)
		if err != nil {
			done(fmt.Errorf("failed to fetch announcement: %w", err))
			return
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			done(fmt.Errorf("failed to fetch announcement: status %d", resp.StatusCode))
			return
		}

		streamer, format, err := mp3.Decode(resp.Body)
		if err != nil {
			resp.Body.Close()
			done(fmt.Errorf("failed to decode announcement: %w", err))
			return
		}

		var initErr error
		b.initOnce.Do(func() {
			b.sampleRate = format.SampleRate
			initErr = speaker.Init(b.sampleRate, b.sampleRate.N(time.Second/10))
		})
		if initErr != nil {
			streamer.Close()
			done(fmt.Errorf("failed to init speaker: %w", initErr))
			return
		}

		var stream beep.Streamer = streamer
		if format.SampleRate != b.sampleRate {
			stream = beep.Resample(4, format.SampleRate, b.sampleRate, streamer)
		}

		speaker.Play(beep.Seq(stream, beep.Callback(func() {
			streamer.Close()
			done(nil)
		})))
	}()
}

func (b *BeepAnnouncer) Stop() {
	speaker.Clear()
}
