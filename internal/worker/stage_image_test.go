package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clipforge/clipforge/internal/domain"
)

func TestHandleImage_GeneratesFetchesAndMarksReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("fake-png-bytes"))
	}))
	defer srv.Close()

	clipID := "clip-1"
	job := domain.Job{ID: "job-1", BatchID: "batch-1", ClipID: &clipID, Type: domain.JobImage}
	clips := &fakeClips{clip: domain.Clip{ID: clipID, Status: domain.ClipScripting, ImagePrompt: "a cozy cabin"}}
	image := &fakeImage{url: srv.URL}
	storage := &fakeStorage{}
	w := New(Deps{Clips: clips, Image: image, Storage: storage}, discardLogger())

	provider, err := w.handleImage(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider != "image" {
		t.Fatalf("expected provider tag %q, got %q", "image", provider)
	}
	if clips.clip.Status != domain.ClipReady {
		t.Fatalf("expected the clip to reach ready, got %v", clips.clip.Status)
	}
	if clips.clip.ImageURL == "" || clips.clip.FinalURL != clips.clip.ImageURL {
		t.Fatalf("expected image_url and final_url to both be set to the uploaded image, got image=%q final=%q", clips.clip.ImageURL, clips.clip.FinalURL)
	}
}

func TestHandleImage_AlreadyGenerated_SkipsProvider(t *testing.T) {
	clipID := "clip-1"
	job := domain.Job{ID: "job-1", BatchID: "batch-1", ClipID: &clipID, Type: domain.JobImage}
	clips := &fakeClips{clip: domain.Clip{ID: clipID, Status: domain.ClipReady, ImageURL: "https://storage.test/images/clip-1.png"}}
	w := New(Deps{Clips: clips}, discardLogger())

	_, err := w.handleImage(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleImage_GenerateFailure_Propagates(t *testing.T) {
	clipID := "clip-1"
	job := domain.Job{ID: "job-1", BatchID: "batch-1", ClipID: &clipID, Type: domain.JobImage}
	clips := &fakeClips{clip: domain.Clip{ID: clipID, Status: domain.ClipScripting, ImagePrompt: "a cozy cabin"}}
	image := &fakeImage{err: domain.ErrContentPolicy}
	w := New(Deps{Clips: clips, Image: image}, discardLogger())

	_, err := w.handleImage(context.Background(), job)
	if err == nil {
		t.Fatalf("expected the image generate failure to propagate")
	}
}
