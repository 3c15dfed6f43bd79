package comfyui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "mindstudio/local/internal/errors"
	"mindstudio/local/internal/providers"

	"github.com/gorilla/websocket"
)

const testPromptID = "p-1"

// fakeComfy is a scripted ComfyUI server.
type fakeComfy struct {
	srv *httptest.Server

	submitStatus int
	submitBody   string
	outputs      string
	files        map[string][]byte

	// script runs on the event socket once the engine has made its catch-up history call.
	script func(conn *websocket.Conn, finish func())

	wsOpened  atomic.Int32
	finished  atomic.Bool
	submitted atomic.Value

	historyOnce sync.Once
	historyHit  chan struct{}
}

func newFakeComfy(t *testing.T) *fakeComfy {
	t.Helper()
	f := &fakeComfy{
		submitStatus: http.StatusOK,
		submitBody:   `{"prompt_id":"p-1","number":1,"node_errors":{}}`,
		outputs:      `{"9":{"images":[{"filename":"out_00001_.png","subfolder":"","type":"output"}]}}`,
		files:        map[string][]byte{"out_00001_.png": []byte("png-bytes")},
		historyHit:   make(chan struct{}),
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.submitted.Store(body)
		w.WriteHeader(f.submitStatus)
		_, _ = w.Write([]byte(f.submitBody))
	})
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		defer f.historyOnce.Do(func() { close(f.historyHit) })
		if !f.finished.Load() {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"p-1":{"outputs":` + f.outputs +
			`,"status":{"status_str":"success","completed":true,"messages":[]}}}`))
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		data, ok := f.files[r.URL.Query().Get("filename")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.wsOpened.Add(1)
		defer conn.Close()

		if f.script != nil {
			select {
			case <-f.historyHit:
			case <-time.After(5 * time.Second):
				return
			}
			f.script(conn, func() { f.finished.Store(true) })
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeComfy) engine(timeout time.Duration) *Engine {
	e := NewEngine(f.srv.URL, timeout)
	e.historyDelay = 10 * time.Millisecond
	e.newClientID = func() string { return "client-1" }
	return e
}

func send(conn *websocket.Conn, msg string) {
	_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

var testGraph = map[string]any{
	"3": map[string]any{"class_type": "KSampler", "inputs": map[string]any{"seed": 1}},
}

func TestExecuteNodeErrorsFailWithoutOpeningStream(t *testing.T) {
	f := newFakeComfy(t)
	f.submitStatus = http.StatusBadRequest
	f.submitBody = `{"error":{"type":"prompt_outputs_failed_validation","message":"Prompt outputs failed validation"},
		"node_errors":{"3":{"class_type":"KSampler","errors":[{"type":"value_not_in_list","message":"Value not in list","details":"sampler_name: 'bogus'"}]}}}`

	_, err := f.engine(time.Minute).Execute(context.Background(), testGraph, nil)
	if err == nil {
		t.Fatal("Execute() error = nil, want validation error")
	}
	if !apperrors.Is(err, apperrors.Validation) {
		t.Errorf("Execute() error kind = %v, want %v", apperrors.KindOf(err), apperrors.Validation)
	}
	if !strings.Contains(err.Error(), "KSampler") || !strings.Contains(err.Error(), "Value not in list") {
		t.Errorf("Execute() error = %q, want node class and message", err)
	}
	if n := f.wsOpened.Load(); n != 0 {
		t.Errorf("event stream opened %d times, want 0", n)
	}
}

func TestExecuteFiltersOtherJobsEvents(t *testing.T) {
	f := newFakeComfy(t)
	f.script = func(conn *websocket.Conn, finish func()) {
		send(conn, `{"type":"status","data":{"status":{"exec_info":{"queue_remaining":2}}}}`)
		send(conn, `{"type":"progress","data":{"value":1,"max":10,"prompt_id":"p-2","node":"7"}}`)
		send(conn, `{"type":"executing","data":{"node":"3","prompt_id":"p-1"}}`)
		send(conn, `{"type":"progress","data":{"value":2,"max":10,"prompt_id":"p-1","node":"3"}}`)
		send(conn, `{"type":"progress","data":{"value":3,"max":10}}`)
		send(conn, `{"type":"execution_success","data":{"prompt_id":"p-2"}}`)
		send(conn, `{"type":"progress","data":{"value":4,"max":10,"prompt_id":"p-2","node":"7"}}`)
		finish()
		send(conn, `{"type":"execution_success","data":{"prompt_id":"p-1"}}`)
	}

	var mu sync.Mutex
	var got []providers.StepProgress
	art, err := f.engine(time.Minute).Execute(context.Background(), testGraph, func(p providers.StepProgress) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p)
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := []providers.StepProgress{
		{Step: 2, TotalSteps: 10, CurrentNode: "3"},
		{Step: 3, TotalSteps: 10, CurrentNode: "3"},
	}
	if len(got) != len(want) {
		t.Fatalf("progress = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("progress[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if string(art.Data) != "png-bytes" || art.MimeType != "image/png" {
		t.Errorf("artifact = %q (%s), want png-bytes (image/png)", art.Data, art.MimeType)
	}

	body, _ := f.submitted.Load().(map[string]any)
	if body["client_id"] != "client-1" {
		t.Errorf("submitted client_id = %v, want client-1", body["client_id"])
	}
}

func TestExecuteLegacyExecutingNullMeansDone(t *testing.T) {
	f := newFakeComfy(t)
	f.script = func(conn *websocket.Conn, finish func()) {
		send(conn, `{"type":"executing","data":{"node":null,"prompt_id":"p-2"}}`)
		send(conn, `{"type":"executing","data":{"node":"9","prompt_id":"p-1"}}`)
		finish()
		send(conn, `{"type":"executing","data":{"node":null,"prompt_id":"p-1"}}`)
	}

	if _, err := f.engine(time.Minute).Execute(context.Background(), testGraph, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestExecuteCompletionWithoutPromptID(t *testing.T) {
	tests := []struct {
		name string
		done string
	}{
		{name: "execution_success", done: `{"type":"execution_success","data":{}}`},
		{name: "executing null", done: `{"type":"executing","data":{"node":null}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeComfy(t)
			f.script = func(conn *websocket.Conn, finish func()) {
				send(conn, `{"type":"progress","data":{"value":1,"max":2}}`)
				finish()
				send(conn, tt.done)
			}

			start := time.Now()
			art, err := f.engine(5*time.Second).Execute(context.Background(), testGraph, nil)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if string(art.Data) != "png-bytes" {
				t.Errorf("artifact = %q, want png-bytes", art.Data)
			}
			if elapsed := time.Since(start); elapsed > 3*time.Second {
				t.Errorf("Execute() took %s, want completion without waiting for the timeout", elapsed)
			}
		})
	}
}

func TestExecuteReportsExecutionError(t *testing.T) {
	f := newFakeComfy(t)
	f.script = func(conn *websocket.Conn, finish func()) {
		send(conn, `{"type":"execution_error","data":{"prompt_id":"p-1","node_id":"3","node_type":"KSampler",
			"exception_message":"CUDA out of memory","exception_type":"RuntimeError"}}`)
	}

	_, err := f.engine(time.Minute).Execute(context.Background(), testGraph, nil)
	if err == nil {
		t.Fatal("Execute() error = nil, want execution error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "KSampler") || !strings.Contains(msg, "CUDA out of memory") {
		t.Errorf("Execute() error = %q, want node type and exception message", msg)
	}
}

func TestExecuteUnexpectedClose(t *testing.T) {
	f := newFakeComfy(t)
	f.script = func(conn *websocket.Conn, finish func()) {
		send(conn, `{"type":"progress","data":{"value":1,"max":10,"prompt_id":"p-1"}}`)
		_ = conn.Close()
	}

	_, err := f.engine(time.Minute).Execute(context.Background(), testGraph, nil)
	if err == nil {
		t.Fatal("Execute() error = nil, want closed connection error")
	}
	if !strings.Contains(err.Error(), "connection closed unexpectedly") {
		t.Errorf("Execute() error = %q, want connection closed unexpectedly", err)
	}
}

func TestExecuteTimeout(t *testing.T) {
	f := newFakeComfy(t)
	f.script = func(conn *websocket.Conn, finish func()) {}

	start := time.Now()
	_, err := f.engine(100*time.Millisecond).Execute(context.Background(), testGraph, nil)
	if !apperrors.Is(err, apperrors.Timeout) {
		t.Fatalf("Execute() error = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Execute() took %s, want prompt timeout", elapsed)
	}
}

func TestExecuteCatchesUpOnFinishedJob(t *testing.T) {
	f := newFakeComfy(t)
	f.finished.Store(true)
	f.outputs = `{"9":{"images":[{"filename":"a.png","subfolder":"","type":"output"}]},
		"12":{"gifs":[{"filename":"clip.webm","subfolder":"video","type":"output","format":"video/webm"}]}}`
	f.files["clip.webm"] = []byte("webm-bytes")

	art, err := f.engine(time.Minute).Execute(context.Background(), testGraph, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !art.Motion || art.MimeType != "video/webm" || string(art.Data) != "webm-bytes" {
		t.Errorf("artifact = %+v, want the webm clip", art)
	}
}
