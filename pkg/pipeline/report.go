package pipeline

import "fmt"

// Status is the outcome of one country's run.
type Status string

const (
	// StatusOK: every requested stage completed.
	StatusOK Status = "ok"

	// StatusDegraded: the country completed with documented fallbacks
	// (no-hydropower mode, excluded technologies, defaulted rates).
	StatusDegraded Status = "degraded"

	// StatusFailed: the country produced no output.
	StatusFailed Status = "failed"
)

// CountryReport is the audit record for one country: every skip and
// fallback is noted so a user can judge completeness of the output.
type CountryReport struct {
	Country string `json:"country"`
	ISO     string `json:"iso,omitempty"`
	Status  Status `json:"status"`

	// Error is set when Status is failed.
	Error string `json:"error,omitempty"`

	// Notes record contained degradations in the order they happened.
	Notes []string `json:"notes,omitempty"`

	Hexagons        int `json:"hexagons,omitempty"`
	RemovedHexagons int `json:"removed_hexagons,omitempty"`
}

// Note records a degradation and downgrades an ok status.
func (c *CountryReport) Note(format string, args ...interface{}) {
	c.Notes = append(c.Notes, fmt.Sprintf(format, args...))
	if c.Status == StatusOK {
		c.Status = StatusDegraded
	}
}

// Fail marks the country failed with the given error.
func (c *CountryReport) Fail(err error) {
	c.Status = StatusFailed
	c.Error = err.Error()
}

// RunReport aggregates per-country reports for one invocation.
type RunReport struct {
	Countries []*CountryReport `json:"countries"`
}

// Start registers a new country report with an ok status.
func (r *RunReport) Start(countryName string) *CountryReport {
	c := &CountryReport{Country: countryName, Status: StatusOK}
	r.Countries = append(r.Countries, c)
	return c
}

// Succeeded counts countries that produced output (ok or degraded).
func (r *RunReport) Succeeded() int {
	n := 0
	for _, c := range r.Countries {
		if c.Status != StatusFailed {
			n++
		}
	}
	return n
}

// AllFailed reports whether no country succeeded; the process exits
// non-zero only in that case.
func (r *RunReport) AllFailed() bool {
	return len(r.Countries) > 0 && r.Succeeded() == 0
}

// Summary is a one-line account of the run.
func (r *RunReport) Summary() string {
	ok, degraded, failed := 0, 0, 0
	for _, c := range r.Countries {
		switch c.Status {
		case StatusOK:
			ok++
		case StatusDegraded:
			degraded++
		case StatusFailed:
			failed++
		}
	}
	return fmt.Sprintf("%d ok, %d degraded, %d failed of %d countries",
		ok, degraded, failed, len(r.Countries))
}
