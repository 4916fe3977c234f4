// ============================================================================
// ingestflow Submission Validator
// ============================================================================
//
// Package: internal/submission
// File: validator.go
// Purpose: Turn free-form user text into a validated identifier set
//
// Parse Strategy:
//   1. Trimmed text that is valid JSON must be an array; its elements are the
//      candidates verbatim. Any other JSON value is MalformedArray.
//   2. Text that is not JSON is split on commas. The first piece that is not
//      a base-10 integer yields InvalidNumber and stops parsing.
//   Results of the two strategies are never mixed.
//
// Candidate Checks (all collected, not short-circuited):
//   - NotPositiveInteger per offending element
//   - one DuplicatesPresent when any value repeats
//   - NoIdentifiers / TooManyIdentifiers on cardinality
//
// Validate is pure: the same input always yields the same Result, so it is
// used both for live feedback and at submission time.
//
// ============================================================================

package submission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/pkg/types"
	"github.com/go-playground/validator/v10"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// Result is the outcome of Validate
type Result struct {
	IDs        []int64     // normalized ids, set only when valid
	Violations []Violation // ordered violations, empty when valid
}

// Valid reports whether no violation was collected
func (r Result) Valid() bool {
	return len(r.Violations) == 0
}

// Messages returns every violation message in order
func (r Result) Messages() []string {
	msgs := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		msgs = append(msgs, v.Message())
	}
	return msgs
}

// Has reports whether a violation of the given kind was collected
func (r Result) Has(kind Kind) bool {
	for _, v := range r.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// candidate is one parsed value before the positive-integer check
type candidate struct {
	token   string // original text, used in messages
	value   int64
	integer bool
}

// key identifies a candidate for duplicate detection
func (c candidate) key() string {
	if c.integer {
		return strconv.FormatInt(c.value, 10)
	}
	return "raw:" + c.token
}

// Validate parses raw text into an identifier set or a list of violations
func Validate(raw string) Result {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{Violations: []Violation{{Kind: KindEmptyInput}}}
	}

	var (
		candidates []candidate
		violation  *Violation
	)
	if json.Valid([]byte(text)) {
		candidates, violation = parseJSON(text)
	} else {
		candidates, violation = parseCSV(text)
	}
	if violation != nil {
		return Result{Violations: []Violation{*violation}}
	}

	var violations []Violation
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		if !c.integer || c.value <= 0 {
			violations = append(violations, Violation{Kind: KindNotPositiveInteger, Token: c.token})
			continue
		}
		ids = append(ids, c.value)
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		seen[c.key()] = struct{}{}
	}
	if len(seen) < len(candidates) {
		violations = append(violations, Violation{Kind: KindDuplicatesPresent})
	}

	if len(candidates) == 0 {
		violations = append(violations, Violation{Kind: KindNoIdentifiers})
	}
	if len(candidates) > types.MaxIdentifiers {
		violations = append(violations, Violation{Kind: KindTooManyIdentifiers})
	}

	if len(violations) > 0 {
		return Result{Violations: violations}
	}
	return Result{IDs: ids}
}

// parseJSON takes the elements of a JSON array verbatim
func parseJSON(text string) ([]candidate, *Violation) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return nil, &Violation{Kind: KindMalformedArray}
	}
	elements, ok := decoded.([]interface{})
	if !ok {
		return nil, &Violation{Kind: KindMalformedArray}
	}

	candidates := make([]candidate, 0, len(elements))
	for _, el := range elements {
		candidates = append(candidates, fromJSON(el))
	}
	return candidates, nil
}

func fromJSON(el interface{}) candidate {
	n, ok := el.(json.Number)
	if !ok {
		return candidate{token: jsonToken(el)}
	}

	token := n.String()
	if v, err := strconv.ParseInt(token, 10, 64); err == nil {
		return candidate{token: token, value: v, integer: true}
	}
	// 2.0 and 1e2 are integral numbers in JSON
	f, err := strconv.ParseFloat(token, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
		return candidate{token: token}
	}
	return candidate{token: token, value: int64(f), integer: true}
}

func jsonToken(el interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(el); err != nil {
		return fmt.Sprint(el)
	}
	return strings.TrimSpace(buf.String())
}

// parseCSV splits on commas and stops at the first piece that is not an integer
func parseCSV(text string) ([]candidate, *Violation) {
	pieces := strings.Split(text, ",")
	candidates := make([]candidate, 0, len(pieces))
	for _, piece := range pieces {
		token := strings.TrimSpace(piece)
		v, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, &Violation{Kind: KindInvalidNumber, Token: token}
		}
		candidates = append(candidates, candidate{token: token, value: v, integer: true})
	}
	return candidates, nil
}

// ParsePriority parses a priority case-insensitively
func ParsePriority(s string) (types.Priority, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrMissingPriority
	}
	p := types.Priority(strings.ToUpper(s))
	for _, known := range types.Priorities {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of HIGH, MEDIUM, LOW)", ErrInvalidPriority, s)
}

// NewRequest validates raw text and a priority string and assembles the request.
// Violations are returned as the Result; a priority problem is returned as error.
func NewRequest(raw, priority string) (*types.SubmissionRequest, Result, error) {
	result := Validate(raw)
	p, err := ParsePriority(priority)
	if !result.Valid() || err != nil {
		return nil, result, err
	}
	return &types.SubmissionRequest{IDs: result.IDs, Priority: p}, result, nil
}

// ValidateRequest checks a request assembled elsewhere before it is sent
func ValidateRequest(req types.SubmissionRequest) error {
	if req.Priority == "" {
		return ErrMissingPriority
	}
	if err := requestValidator.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
