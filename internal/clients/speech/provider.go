package speech

import "context"

// Provider is the audio collaborator. Transcription failures degrade to a
// text-only prompt in the orchestrator; synthesis failures degrade to a
// text-only reply. Neither ever fails a message.
type Provider interface {
	Transcribe(ctx context.Context, mediaURL, language string) (string, error)
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
	Close() error
}
