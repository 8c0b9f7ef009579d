package model

// Outcome is the terminal result of one report run. It is the only value
// that crosses the orchestrator boundary; failures are encoded here, never
// raised past it. The JSON field names match the invocation contract.
type Outcome struct {
	OK    bool `json:"ok"`
	Sent  bool `json:"sent,omitempty"`
	Count int  `json:"count"`

	// DateNZ is the local report date, YYYY-MM-DD.
	DateNZ string `json:"dateNZ,omitempty"`

	// Failure diagnostics.
	Error  string `json:"error,omitempty"`
	Status int    `json:"status,omitempty"`
	Sample string `json:"sample,omitempty"`
	API    string `json:"api,omitempty"`

	// Debug diagnostics.
	AuthMode     string    `json:"authMode,omitempty"`
	Accept       string    `json:"accept,omitempty"`
	SampleRecord RawRecord `json:"sampleRecord,omitempty"`
}

// Failure builds a failed outcome from any error, lifting structured run
// error details when present.
func Failure(err error) Outcome {
	out := Outcome{OK: false, Error: err.Error()}
	if re, ok := AsRunError(err); ok {
		out.Status = re.Status
		out.Sample = re.Sample
		out.API = re.API
	}
	return out
}
