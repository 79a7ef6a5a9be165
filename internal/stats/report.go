// Package stats turns engine statistics files into flat reports.
package stats

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
)

const (
	PrevPrefix = "prev."

	KeyPhase       = "phase"
	KeyEngine      = "engine"
	KeyCrashes     = "crashes"
	KeyCorpusCount = "corpus_count"
)

var ratioRegex = regexp.MustCompile(`(\d+)/(\d+)`)

// ratioKeys are the coverage fields LibAFL reports as "<hit>/<total>".
var ratioKeys = []string{"data", "edges"}

// Report is a flat metric name to value mapping.
type Report map[string]any

// Merge copies every entry of other into r under prefix.
func (r Report) Merge(prefix string, other Report) {
	for k, v := range other {
		r[prefix+k] = v
	}
}

func (r Report) JSON() (string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// derive adds the fields reported under engine independent names and the
// numeric halves of the coverage ratios. Non-finite floats are kept as their
// string form since JSON cannot carry them.
func (r Report) derive() {
	for k, v := range r {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			r[k] = strconv.FormatFloat(f, 'g', -1, 64)
		}
	}

	for _, k := range ratioKeys {
		s, ok := r[k].(string)
		if !ok {
			continue
		}
		m := ratioRegex.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		hit, err1 := strconv.ParseInt(m[1], 10, 64)
		total, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		r[k+"_hit_count"] = hit
		r[k+"_total"] = total
	}

	if v, ok := r["objectives"]; ok {
		r[KeyCrashes] = v
	} else if v, ok := r["saved_crashes"]; ok {
		r[KeyCrashes] = v
	}
	if v, ok := r["corpus"]; ok {
		r[KeyCorpusCount] = v
	}
}
