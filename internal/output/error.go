package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// FormatError writes err for display. An *AppError keeps its code and exit
// code; anything else is reported as a general error. Verbose mode adds the
// underlying cause to the details.
func FormatError(w io.Writer, err error, format Format, verbose bool) error {
	if err == nil {
		return nil
	}

	detail := errorDetail(err, verbose)
	if format == FormatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(ErrorOutput{Error: detail})
	}
	return formatErrorText(w, detail)
}

func errorDetail(err error, verbose bool) ErrorDetail {
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		d := ErrorDetail{
			Code:       ae.Code,
			Message:    ae.Message,
			Details:    ae.Details,
			Suggestion: ae.Suggestion,
			ExitCode:   ae.ExitCode,
		}
		if verbose && ae.Cause != nil {
			d.Details = withDetail(d.Details, "cause", ae.Cause.Error())
		}
		return d
	}

	return ErrorDetail{
		Code:     apperr.ErrGeneral.Code,
		Message:  err.Error(),
		ExitCode: apperr.ExitGeneral,
	}
}

func withDetail(details map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(details)+1)
	for key, val := range details {
		out[key] = val
	}
	out[k] = v
	return out
}

func formatErrorText(w io.Writer, d ErrorDetail) error {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", d.Message))

	if len(d.Details) > 0 {
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, d.Details[k]))
		}
	}

	if d.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\nSuggestion: %s\n", d.Suggestion))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// FormatSuccess formats a success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		out := map[string]string{"status": "success", "message": message}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
