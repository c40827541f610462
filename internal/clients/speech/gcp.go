package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	gspeech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/concierge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/concierge-backend/internal/pkg/logger"
	"github.com/yungbote/concierge-backend/internal/platform/envutil"
)

type gcpProvider struct {
	log        *logger.Logger
	client     *gspeech.Client
	httpClient *http.Client
	ttsBaseURL string
	maxRetries int
}

// New builds the GCP-backed speech provider. Transcription uses Cloud
// Speech-to-Text; synthesis calls the TTS sidecar at TTS_BASE_URL when one
// is configured and reports unsupported otherwise.
func New(log *logger.Logger) (Provider, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("client", "SpeechProvider")

	ctx := context.Background()
	c, err := gspeech.NewClient(ctx, clientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &gcpProvider{
		log:        slog,
		client:     c,
		httpClient: &http.Client{Timeout: envutil.Duration("SPEECH_MEDIA_TIMEOUT", 30*time.Second)},
		ttsBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("TTS_BASE_URL")), "/"),
		maxRetries: envutil.Int("SPEECH_MAX_RETRIES", 3),
	}, nil
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	opts := []option.ClientOption{}
	if creds == "" {
		return opts
	}
	if strings.HasPrefix(creds, "{") {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return opts
}

func (p *gcpProvider) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *gcpProvider) Transcribe(ctx context.Context, mediaURL, language string) (string, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	audio, contentType, err := p.fetchMedia(ctx, mediaURL)
	if err != nil {
		return "", fmt.Errorf("fetch media: %w", err)
	}
	if len(audio) == 0 {
		return "", nil
	}

	if language == "" {
		language = "en-US"
	}
	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
			Encoding:                   inferEncoding(contentType, mediaURL),
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	var resp *speechpb.RecognizeResponse
	backoff := 1 * time.Second
	for attempt := 0; ; attempt++ {
		resp, err = p.client.Recognize(ctx, req)
		if err == nil {
			break
		}
		if attempt >= p.maxRetries || !isRetryableGRPC(err) {
			return "", fmt.Errorf("speech recognize: %w", err)
		}
		p.log.Warn("Speech recognize retrying", "attempt", attempt+1, "error", err.Error())
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	var sb strings.Builder
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(strings.TrimSpace(alts[0].GetTranscript()))
	}
	return sb.String(), nil
}

func (p *gcpProvider) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if p.ttsBaseURL == "" {
		return nil, fmt.Errorf("speech synthesis not configured")
	}
	body, err := json.Marshal(map[string]string{"text": text, "language": language})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, p.ttsBaseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tts http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (p *gcpProvider) fetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("media http %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, "", err
	}
	return raw, resp.Header.Get("Content-Type"), nil
}

func inferEncoding(contentType, mediaURL string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(contentType))
	ext := strings.ToLower(filepath.Ext(mediaURL))
	switch {
	case strings.Contains(m, "wav") || ext == ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac") || ext == ".flac":
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || ext == ".mp3":
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || ext == ".ogg" || ext == ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func isRetryableGRPC(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
