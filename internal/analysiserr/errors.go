// Package analysiserr defines the error taxonomy shared by the dialog analysis
// pipeline and the transport boundaries that report it.
package analysiserr

import "errors"

// Errors reported by the pipeline. Callers wrap them with fmt.Errorf("%w: ...")
// and boundaries classify with errors.Is or Kind.
var (
	// ErrInputSource - neither a file upload nor an http(s) URL was provided.
	ErrInputSource = errors.New("unsupported input source")
	// ErrAudioFormat - undecodable container, non-mono/non-16-bit PCM or a non-positive sample rate.
	ErrAudioFormat = errors.New("malformed audio")
	// ErrTimingData - word start/end missing or non-numeric in recognizer output.
	ErrTimingData = errors.New("malformed recognition data")
	// ErrSpectralComputation - the power spectrum produced non-finite values.
	ErrSpectralComputation = errors.New("spectral computation failed")
	// ErrRecognizer - the recognizer backend failed.
	ErrRecognizer = errors.New("recognizer failed")
	// ErrLimitExceeded - the request exceeded one of the configured limits.
	ErrLimitExceeded = errors.New("request limit exceeded")
)

// Kind returns the short tag for err used in error responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInputSource):
		return "input_source"
	case errors.Is(err, ErrAudioFormat):
		return "audio_format"
	case errors.Is(err, ErrTimingData):
		return "timing_data"
	case errors.Is(err, ErrSpectralComputation):
		return "spectral_computation"
	case errors.Is(err, ErrRecognizer):
		return "recognizer"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	default:
		return "internal"
	}
}
