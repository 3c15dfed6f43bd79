package model

// ResultType tags the variant of a generation result on the wire.
type ResultType string

const (
	ResultText  ResultType = "text"
	ResultImage ResultType = "image"
	ResultVideo ResultType = "video"
)

// Result is the closed set of generation results: *TextResult, *ImageResult and *VideoResult.
type Result interface {
	Type() ResultType
}

// Usage holds token accounting for a chat completion, when the backend reports it.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// TextResult is the outcome of a chat request.
type TextResult struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// ImageResult is the outcome of an image request. Bytes are base64 on the wire.
type ImageResult struct {
	ImageBytes []byte `json:"imageBase64"`
	MimeType   string `json:"mimeType"`
	Seed       *int64 `json:"seed,omitempty"`
}

// VideoResult is the outcome of a video request.
type VideoResult struct {
	VideoBytes      []byte  `json:"videoBase64"`
	MimeType        string  `json:"mimeType"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	FPS             float64 `json:"fps,omitempty"`
	Seed            *int64  `json:"seed,omitempty"`
}

func (*TextResult) Type() ResultType  { return ResultText }
func (*ImageResult) Type() ResultType { return ResultImage }
func (*VideoResult) Type() ResultType { return ResultVideo }

func (r *TextResult) MarshalJSON() ([]byte, error) {
	type alias TextResult
	return json.Marshal(struct {
		Type ResultType `json:"type"`
		*alias
	}{ResultText, (*alias)(r)})
}

func (r *ImageResult) MarshalJSON() ([]byte, error) {
	type alias ImageResult
	return json.Marshal(struct {
		Type ResultType `json:"type"`
		*alias
	}{ResultImage, (*alias)(r)})
}

func (r *VideoResult) MarshalJSON() ([]byte, error) {
	type alias VideoResult
	return json.Marshal(struct {
		Type ResultType `json:"type"`
		*alias
	}{ResultVideo, (*alias)(r)})
}

// ResultReport is the terminal report for a request: success with a result, or failure
// with a reason. Never both.
type ResultReport struct {
	Success bool   `json:"success"`
	Result  Result `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Succeeded builds a successful report.
func Succeeded(r Result) ResultReport {
	return ResultReport{Success: true, Result: r}
}

// Failed builds a failed report.
func Failed(reason string) ResultReport {
	if reason == "" {
		reason = "generation failed"
	}
	return ResultReport{Success: false, Error: reason}
}

// ProgressKind distinguishes streamed text from discrete step progress.
type ProgressKind int

const (
	ProgressText ProgressKind = iota
	ProgressSteps
)

// Progress is an intermediate update for an in-flight request.
type Progress struct {
	Kind        ProgressKind
	Content     string
	Step        int
	TotalSteps  int
	CurrentNode string
}

// TextProgress carries the accumulated chat content so far.
func TextProgress(content string) Progress {
	return Progress{Kind: ProgressText, Content: content}
}

// StepProgress carries discrete step progress of an image or video job.
func StepProgress(step, total int, node string) Progress {
	return Progress{Kind: ProgressSteps, Step: step, TotalSteps: total, CurrentNode: node}
}

// MarshalJSON emits {content} for text progress and {step,totalSteps} for step progress.
func (p Progress) MarshalJSON() ([]byte, error) {
	if p.Kind == ProgressText {
		return json.Marshal(struct {
			Content string `json:"content"`
		}{p.Content})
	}
	return json.Marshal(struct {
		Step        int    `json:"step"`
		TotalSteps  int    `json:"totalSteps"`
		CurrentNode string `json:"currentNode,omitempty"`
	}{p.Step, p.TotalSteps, p.CurrentNode})
}
