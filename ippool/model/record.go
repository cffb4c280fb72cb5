package model

import (
	"strings"
	"time"

	"cfip_nexus/internal/shared/types"
)

// UnknownCountry is written when the geolocation lookup could not answer.
const UnknownCountry = "XX"

// Candidate is one row a source yielded: an IPv4 address and, for ranked
// sources, the speed string exactly as the page reported it.
type Candidate struct {
	Address string
	Speed   string // raw, e.g. "12.34 MB/s"; empty for unranked sources
	Source  string
}

// Ranked reports whether the candidate carries a reported speed.
func (c Candidate) Ranked() bool {
	return c.Speed != ""
}

// EnrichedRecord is a deduplicated candidate with its country code attached.
// It is the unit written to the output artifact.
type EnrichedRecord struct {
	Address     string `json:"address"`
	CountryCode string `json:"country_code"`
	Speed       string `json:"speed,omitempty"`
	Source      string `json:"source"`
}

// Field returns the annotation written after '#': "CC" or "CC-speed".
func (r EnrichedRecord) Field() string {
	code := r.CountryCode
	if code == "" {
		code = UnknownCountry
	}
	if r.Speed == "" {
		return code
	}
	return code + "-" + r.Speed
}

// Line formats the record as one artifact line, without the newline.
func (r EnrichedRecord) Line() string {
	return r.Address + "#" + r.Field()
}

// ResultSet is the ordered, address-unique output of one run.
type ResultSet []EnrichedRecord

// Serialize renders the artifact text: one record per line, each terminated
// by '\n', no header. An empty set renders as "".
func (rs ResultSet) Serialize() string {
	var sb strings.Builder
	for _, r := range rs {
		sb.WriteString(r.Line())
		sb.WriteString("\n")
	}
	return sb.String()
}

// SourceReport is the per-source breakdown of a run.
type SourceReport struct {
	Name     string           `json:"name"`
	Kind     types.SourceKind `json:"kind"`
	Fetched  int              `json:"fetched"` // candidates the adapter produced
	Kept     int              `json:"kept"`    // records that survived deduplication
	Err      error            `json:"-"`
	Duration time.Duration    `json:"duration"`
}

// Failed reports whether the source contributed nothing because of an error.
func (r SourceReport) Failed() bool {
	return r.Err != nil
}

// RunStatus distinguishes usable runs from runs that must not be published.
type RunStatus string

const (
	StatusOK RunStatus = "ok"
	// StatusDegraded marks a run with no records at all. Publishing it would
	// replace a previously good artifact with an empty file.
	StatusDegraded RunStatus = "degraded"
)

// RunResult is everything a run produced. Artifact is the exact text that
// gets written, uploaded and attached to notifications.
type RunResult struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Records   ResultSet
	Reports   []SourceReport
	Artifact  string
	Status    RunStatus
}

// Degraded reports whether publishing must be skipped.
func (r *RunResult) Degraded() bool {
	return r.Status == StatusDegraded
}

// FailedSources returns the names of sources that errored during the run.
func (r *RunResult) FailedSources() []string {
	var names []string
	for _, rep := range r.Reports {
		if rep.Failed() {
			names = append(names, rep.Name)
		}
	}
	return names
}
