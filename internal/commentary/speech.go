package commentary

import (
	"errors"
	"fmt"
	"os/exec"
)

// ExecSpeech shells out to whichever local speech synthesizer is
// installed. Used only for text-only commentary when no audio clip was
// generated server-side.
type ExecSpeech struct{}

func NewExecSpeech() *ExecSpeech {
	return &ExecSpeech{}
}

var synthesizers = []string{"say", "espeak", "spd-say"}

func (s *ExecSpeech) Speak(text string) error {
	for _, name := range synthesizers {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}

		if err := exec.Command(path, text).Run(); err != nil {
			return fmt.Errorf("failed to run %s: %w", name, err)
		}

		return nil
	}

	return errors.New("no speech synthesizer available")
}
