package comfyui

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/model"
	"mindstudio/local/internal/providers"

	"github.com/gorilla/websocket"
)

func newTestProvider(t *testing.T, f *fakeComfy, workflows map[string]string) *Provider {
	t.Helper()
	dir := t.TempDir()
	for name, body := range workflows {
		if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	p := New(f.srv.URL, dir, time.Minute)
	p.engine = f.engine(time.Minute)
	return p
}

func TestGenerateVideo(t *testing.T) {
	f := newFakeComfy(t)
	f.finished.Store(true)
	f.outputs = `{"9":{"gifs":[{"filename":"clip.mp4","subfolder":"","type":"output"}]}}`
	f.files["clip.mp4"] = []byte("mp4-bytes")

	p := newTestProvider(t, f, map[string]string{
		"animate": `{"9":{"class_type":"VHS_VideoCombine","inputs":{"frame_rate":"{{fps}}"}},
			"5":{"class_type":"EmptyLatentImage","inputs":{"batch_size":"{{frames}}"}},
			"6":{"class_type":"CLIPTextEncode","inputs":{"text":"{{prompt}}"}}}`,
	})

	res, err := p.GenerateVideo(context.Background(), "animate", providers.GenerateOptions{
		Prompt: "waves",
		Media: model.MediaPayload{Prompt: "waves", Config: map[string]any{
			"frames": float64(24), "fps": float64(12), "seed": float64(5),
		}},
	}, nil)
	if err != nil {
		t.Fatalf("GenerateVideo() error = %v", err)
	}
	if string(res.VideoBytes) != "mp4-bytes" || res.MimeType != "video/mp4" {
		t.Errorf("GenerateVideo() = %q (%s), want mp4-bytes (video/mp4)", res.VideoBytes, res.MimeType)
	}
	if res.DurationSeconds != 2 || res.FPS != 12 {
		t.Errorf("GenerateVideo() duration = %v fps = %v, want 2 and 12", res.DurationSeconds, res.FPS)
	}
	if res.Seed == nil || *res.Seed != 5 {
		t.Errorf("GenerateVideo() seed = %v, want 5", res.Seed)
	}

	body, _ := f.submitted.Load().(map[string]any)
	graph, _ := body["prompt"].(map[string]any)
	text := graph["6"].(map[string]any)["inputs"].(map[string]any)["text"]
	if text != "waves" {
		t.Errorf("submitted prompt text = %v, want waves", text)
	}
}

func TestGenerateImageEmbeddedWorkflowWins(t *testing.T) {
	f := newFakeComfy(t)
	f.script = func(conn *websocket.Conn, finish func()) {
		finish()
		send(conn, `{"type":"execution_success","data":{"prompt_id":"p-1"}}`)
	}
	p := newTestProvider(t, f, map[string]string{
		"sdxl": `{"1":{"class_type":"SaveImage","inputs":{"filename_prefix":"template"}}}`,
	})

	embedded := map[string]any{
		"1": map[string]any{"class_type": "SaveImage", "inputs": map[string]any{"filename_prefix": "embedded"}},
	}
	res, err := p.GenerateImage(context.Background(), "sdxl", providers.GenerateOptions{
		Media: model.MediaPayload{Prompt: "cat", Config: map[string]any{"workflow": embedded}},
	}, nil)
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if res.MimeType != "image/png" || res.Seed == nil {
		t.Errorf("GenerateImage() = %+v, want png with a seed", res)
	}

	body, _ := f.submitted.Load().(map[string]any)
	graph, _ := body["prompt"].(map[string]any)
	prefix := graph["1"].(map[string]any)["inputs"].(map[string]any)["filename_prefix"]
	if prefix != "embedded" {
		t.Errorf("submitted filename_prefix = %v, want embedded", prefix)
	}
}

func TestGenerateImageUnknownWorkflow(t *testing.T) {
	f := newFakeComfy(t)
	p := newTestProvider(t, f, nil)

	_, err := p.GenerateImage(context.Background(), "missing", providers.GenerateOptions{Prompt: "x"}, nil)
	if !apperrors.Is(err, apperrors.NotFound) {
		t.Errorf("GenerateImage() error = %v, want not found", err)
	}
	if f.submitted.Load() != nil {
		t.Error("GenerateImage() submitted a job for an unknown workflow")
	}
}

func TestDiscoverModels(t *testing.T) {
	f := newFakeComfy(t)
	p := newTestProvider(t, f, map[string]string{
		"portrait": `{"9":{"class_type":"SaveImage","inputs":{}}}`,
		"loop":     `{"9":{"class_type":"SaveAnimatedWEBP","inputs":{}}}`,
	})

	got := p.DiscoverModels(context.Background())
	if len(got) != 2 {
		t.Fatalf("DiscoverModels() = %+v, want 2 models", got)
	}
	if got[0].Name != "loop" || got[0].Capability != model.CapabilityVideo {
		t.Errorf("DiscoverModels()[0] = %+v, want loop/video", got[0])
	}
	if got[1].Name != "portrait" || got[1].Capability != model.CapabilityImage || got[1].Provider != Name {
		t.Errorf("DiscoverModels()[1] = %+v, want portrait/image", got[1])
	}
}
