// src/processors/normalizer.go
package processors

import (
	"regexp"
	"strings"

	"github.com/username/finledger/backend/src/models"
)

var upiPattern = regexp.MustCompile(`(?i)UPI[- ]([A-Z0-9@._]+)`)

// StepResult is one pipeline step's outcome: before/after snapshots for the
// audit trail, plus the rule label and confidence where the step has them.
type StepResult struct {
	Before       map[string]any
	After        map[string]any
	Rule         string
	Confidence   *float64
	MerchantHint string
}

type NormalizationResult struct {
	CleanedDescription string
	MerchantHint       string
	ExtraMetadata      map[string]any
}

// NormalizeDescription collapses whitespace and extracts a UPI handle as a
// merchant hint when the description carries one.
func NormalizeDescription(original string) NormalizationResult {
	desc := strings.Join(strings.Fields(strings.TrimSpace(original)), " ")

	result := NormalizationResult{
		CleanedDescription: desc,
		ExtraMetadata:      map[string]any{},
	}

	if m := upiPattern.FindStringSubmatch(desc); m != nil {
		handle := m[1]
		result.ExtraMetadata["upi_handle"] = handle
		result.MerchantHint = handle
	}

	return result
}

// ApplyNormalization cleans the transaction's description in place and
// returns the audit payload for the step.
func ApplyNormalization(t *models.Transaction) StepResult {
	before := map[string]any{
		"original_description": t.OriginalDescription,
		"cleaned_description":  t.CleanedDescription,
		"metadata_json":        copyMap(t.Metadata),
	}

	result := NormalizeDescription(t.OriginalDescription)
	t.CleanedDescription = result.CleanedDescription

	metadata := copyMap(t.Metadata)
	if len(result.ExtraMetadata) > 0 {
		sub, ok := metadata["normalizer"].(map[string]any)
		if !ok {
			sub = map[string]any{}
		}
		for k, v := range result.ExtraMetadata {
			sub[k] = v
		}
		metadata["normalizer"] = sub
	}
	t.Metadata = metadata

	after := map[string]any{
		"original_description": t.OriginalDescription,
		"cleaned_description":  t.CleanedDescription,
		"metadata_json":        t.Metadata,
	}

	return StepResult{Before: before, After: after, MerchantHint: result.MerchantHint}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
