package model

import (
	"strings"
	"testing"
)

func TestChatPayload(t *testing.T) {
	req := &GenerationRequest{
		ID:          "r1",
		RequestType: RequestChat,
		Payload:     []byte(`{"messages":[{"role":"user","content":"hi"}],"temperature":0.2,"maxTokens":64}`),
	}
	p, err := req.Chat()
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Messages) != 1 || p.Messages[0].Content != "hi" {
		t.Errorf("Messages = %+v", p.Messages)
	}
	if p.Temperature == nil || *p.Temperature != 0.2 || p.MaxTokens == nil || *p.MaxTokens != 64 {
		t.Errorf("options = %v, %v", p.Temperature, p.MaxTokens)
	}
}

func TestPayloadErrors(t *testing.T) {
	tests := []struct {
		name string
		req  GenerationRequest
		chat bool
	}{
		{"chat without messages", GenerationRequest{RequestType: RequestChat, Payload: []byte(`{"messages":[]}`)}, true},
		{"chat empty payload", GenerationRequest{RequestType: RequestChat}, true},
		{"chat decoded as media", GenerationRequest{RequestType: RequestChat, Payload: []byte(`{}`)}, false},
		{"image decoded as chat", GenerationRequest{RequestType: RequestImage, Payload: []byte(`{}`)}, true},
		{"malformed media", GenerationRequest{RequestType: RequestVideo, Payload: []byte(`{"prompt":`)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.chat {
				_, err = tt.req.Chat()
			} else {
				_, err = tt.req.Media()
			}
			if err == nil {
				t.Error("error = nil, want error")
			}
		})
	}
}

func TestMediaPayloadAccessors(t *testing.T) {
	req := &GenerationRequest{
		RequestType: RequestImage,
		Payload:     []byte(`{"prompt":"a fox","config":{"steps":"30","cfg_scale":6.5,"negativePrompt":"blurry","width":null}}`),
	}
	p, err := req.Media()
	if err != nil {
		t.Fatal(err)
	}
	if p.Prompt != "a fox" {
		t.Errorf("Prompt = %q", p.Prompt)
	}
	if got := p.Int(20, "steps"); got != 30 {
		t.Errorf("Int(steps) = %d, want 30 from numeric string", got)
	}
	if got := p.Float(7, "cfgScale", "cfg_scale"); got != 6.5 {
		t.Errorf("Float(cfg) = %v, want 6.5 from snake_case key", got)
	}
	if got := p.String("", "negativePrompt", "negative_prompt"); got != "blurry" {
		t.Errorf("String(negativePrompt) = %q", got)
	}
	if got := p.Int(512, "width"); got != 512 {
		t.Errorf("Int(width) = %d, want default for null", got)
	}
	if p.Has("height") {
		t.Error("Has(height) = true, want false")
	}
}

func TestMediaWithoutConfig(t *testing.T) {
	req := &GenerationRequest{RequestType: RequestVideo, Payload: []byte(`{"prompt":"waves"}`)}
	p, err := req.Media()
	if err != nil {
		t.Fatal(err)
	}
	if p.Config == nil {
		t.Error("Config = nil, want empty map")
	}
}

func TestRequestTypeCapability(t *testing.T) {
	tests := []struct {
		in     RequestType
		want   Capability
		wantOK bool
	}{
		{RequestChat, CapabilityText, true},
		{RequestImage, CapabilityImage, true},
		{RequestVideo, CapabilityVideo, true},
		{"audio", "", false},
	}
	for _, tt := range tests {
		got, ok := tt.in.Capability()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("%q.Capability() = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestResultReportJSON(t *testing.T) {
	seed := int64(7)
	tests := []struct {
		name   string
		report ResultReport
		want   []string
	}{
		{
			name:   "text",
			report: Succeeded(&TextResult{Content: "hi"}),
			want:   []string{`"success":true`, `"type":"text"`, `"content":"hi"`},
		},
		{
			name:   "image",
			report: Succeeded(&ImageResult{ImageBytes: []byte("png"), MimeType: "image/png", Seed: &seed}),
			want:   []string{`"type":"image"`, `"imageBase64":"cG5n"`, `"seed":7`},
		},
		{
			name:   "failure",
			report: Failed(""),
			want:   []string{`"success":false`, `"error":"generation failed"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.report)
			if err != nil {
				t.Fatal(err)
			}
			for _, w := range tt.want {
				if !strings.Contains(string(b), w) {
					t.Errorf("json = %s, missing %s", b, w)
				}
			}
			if !tt.report.Success && strings.Contains(string(b), `"result"`) {
				t.Errorf("failed report carries a result: %s", b)
			}
		})
	}
}

func TestProgressJSON(t *testing.T) {
	b, _ := json.Marshal(TextProgress("Hel"))
	if string(b) != `{"content":"Hel"}` {
		t.Errorf("text progress = %s", b)
	}
	b, _ = json.Marshal(StepProgress(3, 20, ""))
	if string(b) != `{"step":3,"totalSteps":20}` {
		t.Errorf("step progress = %s", b)
	}
}
