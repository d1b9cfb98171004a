package verification

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/gigsmartpay/client/internal/model"
)

// Tier is a discrete quality bucket summarizing proof-submission location
// accuracy.
type Tier string

const (
	TierExcellent  Tier = "excellent"
	TierGood       Tier = "good"
	TierAcceptable Tier = "acceptable"
	TierFailed     Tier = "failed"
	TierError      Tier = "error"
)

// maxMatchDistanceMeters is the global GPS tolerance used when the server
// did not assign an explicit tier. Not configurable per job category.
const maxMatchDistanceMeters = 300.0

// Check is a tri-state answer for a visual check. Absence of source data
// yields CheckUnknown, never a false negative.
type Check string

const (
	CheckYes     Check = "yes"
	CheckNo      Check = "no"
	CheckUnknown Check = "unknown"
)

// GPS is the canonical location-accuracy view.
type GPS struct {
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
	Tier           Tier     `json:"tier,omitempty"`
	Matched        bool     `json:"matched"`
}

// VisualChecks is the canonical view of the image comparison.
type VisualChecks struct {
	ObjectMatch            Check `json:"objectMatch"`
	TransformationOccurred Check `json:"transformationOccurred"`
}

// Outcome is the canonical, UI-facing shape of a work-verification result,
// reconciled from one of two legacy server shapes.
type Outcome struct {
	Score        int          `json:"score"`
	IsApproved   bool         `json:"isApproved"`
	Reason       string       `json:"reason"`
	GPS          GPS          `json:"gps"`
	VisualChecks VisualChecks `json:"visualChecks"`
	Issues       []string     `json:"issues"`
}

type rawGPS struct {
	DistanceMeters *float64 `json:"distance_meters"`
	Tier           string   `json:"tier"`
}

type rawQualityIndicators struct {
	LocationVerified    *bool `json:"location_verified"`
	TransformationClear *bool `json:"transformation_clear"`
}

type rawComparison struct {
	SameObject             *bool `json:"same_object"`
	TransformationOccurred *bool `json:"transformation_occurred"`
}

// rawOutcome is the union of both historical verification shapes. The newer
// verification_summary and the older verification_result populate different
// subsets of these fields.
type rawOutcome struct {
	Score      *float64        `json:"score"`
	Confidence *float64        `json:"confidence"`
	Verified   *bool           `json:"verified"`
	Verdict    json.RawMessage `json:"verdict"`
	Reason     string          `json:"reason"`

	DistanceMeters *float64 `json:"distance_meters"`
	Tier           string   `json:"tier"`
	GPS            *rawGPS  `json:"gps"`

	QualityIndicators *rawQualityIndicators `json:"quality_indicators"`
	Comparison        *rawComparison        `json:"comparison"`

	Issues []string `json:"issues"`
}

// Normalize reconciles a job's verification data into the canonical
// Outcome. The newer verification_summary shape is preferred; the older
// verification_result is the fallback. Returns nil when neither is present
// or neither is a JSON object.
func Normalize(job *model.Job) *Outcome {
	if job == nil {
		return nil
	}
	if out := normalizeRaw(job.VerificationSummary); out != nil {
		return out
	}
	return normalizeRaw(job.VerificationResult)
}

func normalizeRaw(data json.RawMessage) *Outcome {
	if !isObject(data) {
		return nil
	}
	var raw rawOutcome
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	out := &Outcome{
		Score:      normalizeScore(raw.Score, raw.Confidence),
		IsApproved: normalizeApproval(&raw),
		Reason:     raw.Reason,
		Issues:     raw.Issues,
	}
	if out.Issues == nil {
		out.Issues = []string{}
	}
	out.GPS = normalizeGPS(&raw)
	out.VisualChecks = normalizeVisualChecks(&raw)
	return out
}

func isObject(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// normalizeScore converts either a 0..1 confidence or a 0..100 score to a
// clamped integer percentage. Values below 2 are taken to be on the unit
// confidence scale (slightly out-of-range confidences like 1.5 included)
// and converted before clamping.
func normalizeScore(score, confidence *float64) int {
	var v float64
	switch {
	case score != nil:
		v = *score
	case confidence != nil:
		v = *confidence
	default:
		return 0
	}
	if v < 2 {
		v *= 100
	}
	s := int(math.Round(v))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// normalizeApproval accepts the three historical approval encodings:
// verified=true, verdict="APPROVED", or verdict=true.
func normalizeApproval(raw *rawOutcome) bool {
	if raw.Verified != nil && *raw.Verified {
		return true
	}
	if len(raw.Verdict) > 0 {
		var s string
		if err := json.Unmarshal(raw.Verdict, &s); err == nil {
			return s == "APPROVED"
		}
		var b bool
		if err := json.Unmarshal(raw.Verdict, &b); err == nil {
			return b
		}
	}
	return false
}

func normalizeGPS(raw *rawOutcome) GPS {
	distance := raw.DistanceMeters
	tier := raw.Tier
	if raw.GPS != nil {
		if raw.GPS.DistanceMeters != nil {
			distance = raw.GPS.DistanceMeters
		}
		if raw.GPS.Tier != "" {
			tier = raw.GPS.Tier
		}
	}

	gps := GPS{DistanceMeters: distance}
	switch Tier(tier) {
	case TierExcellent, TierGood, TierAcceptable:
		gps.Tier = Tier(tier)
		gps.Matched = true
	case TierFailed, TierError:
		gps.Tier = Tier(tier)
	default:
		// No explicit tier: fall back to the fixed distance tolerance.
		if distance != nil && *distance <= maxMatchDistanceMeters {
			gps.Matched = true
		}
	}
	return gps
}

func normalizeVisualChecks(raw *rawOutcome) VisualChecks {
	checks := VisualChecks{
		ObjectMatch:            CheckUnknown,
		TransformationOccurred: CheckUnknown,
	}

	if raw.QualityIndicators != nil {
		if v := raw.QualityIndicators.LocationVerified; v != nil {
			checks.ObjectMatch = toCheck(*v)
		}
		if v := raw.QualityIndicators.TransformationClear; v != nil {
			checks.TransformationOccurred = toCheck(*v)
		}
	}
	if raw.Comparison != nil {
		if checks.ObjectMatch == CheckUnknown {
			if v := raw.Comparison.SameObject; v != nil {
				checks.ObjectMatch = toCheck(*v)
			}
		}
		if checks.TransformationOccurred == CheckUnknown {
			if v := raw.Comparison.TransformationOccurred; v != nil {
				checks.TransformationOccurred = toCheck(*v)
			}
		}
	}
	return checks
}

func toCheck(b bool) Check {
	if b {
		return CheckYes
	}
	return CheckNo
}
