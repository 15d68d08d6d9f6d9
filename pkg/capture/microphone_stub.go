//go:build !portaudio

package capture

import "context"

// Open implements Device. Without the portaudio build tag there is no
// microphone backend.
func (m *Microphone) Open(context.Context) (Stream, error) {
	return nil, ErrNoMicrophone
}
