package protocol

// OutputType mirrors the notebook output types.
type OutputType string

const (
	OutputStream  OutputType = "stream"
	OutputResult  OutputType = "execute_result"
	OutputDisplay OutputType = "display_data"
	OutputError   OutputType = "error"
)

// MIMEText is the plain-text mime bundle key.
const MIMEText = "text/plain"

// Output is a single item produced by running code.
// Stream outputs use Name and Text; the others carry a mime bundle in Data.
type Output struct {
	Type OutputType        `json:"output_type"`
	Name string            `json:"name,omitempty"`
	Text string            `json:"text,omitempty"`
	Data map[string]string `json:"data,omitempty"`
}

// NewStream creates a stream output ("stdout" or "stderr").
func NewStream(name, text string) Output {
	return Output{Type: OutputStream, Name: name, Text: text}
}

// NewResult creates an execute_result carrying plain text.
func NewResult(text string) Output {
	return Output{Type: OutputResult, Data: map[string]string{MIMEText: text}}
}

// NewDisplay creates a display_data output carrying plain text.
func NewDisplay(text string) Output {
	return Output{Type: OutputDisplay, Data: map[string]string{MIMEText: text}}
}

// PlainText returns the text form of the output.
func (o Output) PlainText() string {
	if o.Text != "" {
		return o.Text
	}
	return o.Data[MIMEText]
}
