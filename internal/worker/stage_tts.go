package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/domain"
)

const voiceCallTimeout = 30 * time.Second

// handleTTS drives the tts stage (spec §4.2.1): one job per clip. Reads
// script_spoken, calls the voice provider, uploads the audio, advances the
// clip through vo, and enqueues video.
func (w *Worker) handleTTS(ctx domain.Context, job domain.Job) (string, error) {
	if job.ClipID == nil {
		return "", fmt.Errorf("%w: tts job missing clip_id", domain.ErrProviderPermanent)
	}
	clip, err := w.d.Clips.Get(ctx, *job.ClipID)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleTTS.get_clip: %w", err)
	}
	if clip.Status.IsTerminal() {
		return "", nil
	}

	if strings.TrimSpace(clip.VoiceURL) == "" {
		vctx, cancel := context.WithTimeout(ctx, voiceCallTimeout)
		result, err := w.d.Voice.Synthesize(vctx, clip.ScriptSpoken)
		cancel()
		if err != nil {
			return "", fmt.Errorf("op=worker.handleTTS.synthesize[%s]: %w", clip.ID, err)
		}
		url, err := w.d.Storage.Put(ctx, "voice", clip.ID+".mp3", result.AudioBytes, "audio/mpeg")
		if err != nil {
			return "", fmt.Errorf("op=worker.handleTTS.put[%s]: %w", clip.ID, err)
		}
		patch := domain.ClipPatch{VoiceURL: strPtr(url)}
		if aborted, err := w.advanceOrSkip(ctx, clip.ID, clip.Status, domain.ClipVO, patch); err != nil {
			return "", err
		} else if aborted {
			return "", nil
		}
	}

	if err := w.enqueueNext(ctx, job.BatchID, &clip.ID, domain.JobVideo, nil); err != nil {
		return "", err
	}
	return "voice", nil
}
