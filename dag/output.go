package dag

// outputKind tags which variant of Output is populated.
type outputKind int

const (
	outputProduced outputKind = iota
	outputError
	outputErrorWithExitCode
)

// Output is the tagged result of a task action. Exactly one of the three
// constructors below should be used to build one; the zero value is
// equivalent to Produced(none).
type Output struct {
	kind     outputKind
	content  Content
	message  string
	exitCode *int
}

// Produced builds a successful Output, optionally carrying a Content.
// Passing the zero Content (or calling EmptyOutput) represents "no
// value produced" without that being an error.
func Produced(c Content) Output {
	return Output{kind: outputProduced, content: c}
}

// EmptyOutput builds a successful Output carrying no value.
func EmptyOutput() Output {
	return Output{kind: outputProduced}
}

// ErrorOutput builds a failed Output with a human-readable message.
func ErrorOutput(message string) Output {
	return Output{kind: outputError, message: message}
}

// ErrorWithExitCode builds a failed Output carrying an optional exit code
// and an optional structured payload.
func ErrorWithExitCode(code *int, c Content) Output {
	return Output{kind: outputErrorWithExitCode, content: c, exitCode: code}
}

// IsError reports whether the Output represents a failure.
func (o Output) IsError() bool {
	return o.kind == outputError || o.kind == outputErrorWithExitCode
}

// Content returns the carried Content and whether the Output is a
// successful Produced(some) - mirrors get_out in the original design:
// an Error or ErrorWithExitCode never yields a value here.
func (o Output) Content() (Content, bool) {
	if o.kind != outputProduced || o.content.IsEmpty() {
		return emptyContent, false
	}
	return o.content, true
}

// ErrorMessage returns the diagnostic message for Error/ErrorWithExitCode
// outputs, or "" for Produced outputs.
func (o Output) ErrorMessage() string {
	switch o.kind {
	case outputError:
		return o.message
	case outputErrorWithExitCode:
		if v, ok := Peek[string](o.content); ok {
			return v
		}
		return o.message
	default:
		return ""
	}
}

// ExitCode returns the exit code carried by an ErrorWithExitCode output,
// if any.
func (o Output) ExitCode() (int, bool) {
	if o.kind != outputErrorWithExitCode || o.exitCode == nil {
		return 0, false
	}
	return *o.exitCode, true
}

// Input is the ordered sequence of predecessor outputs available to a
// task action: one Content per predecessor that produced a non-empty
// Output, in the order the task declared its predecessors.
type Input struct {
	values []Content
}

// NewInput constructs an Input from an ordered slice of Content.
func NewInput(values []Content) Input {
	return Input{values: values}
}

// Values returns the ordered Content slice backing this Input.
func (in Input) Values() []Content {
	return in.values
}

// Len reports how many predecessor values this Input carries.
func (in Input) Len() int {
	return len(in.values)
}
