// Package sql screens imported values for SQL injection patterns.
//
// Imported personal data only ever reaches the database as bound parameters,
// so a hit is never a reason to reject a file. Screening exists to surface
// probing attempts in the security audit trail.
package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes one field value that matched an injection
// pattern.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if a SQL injection pattern was detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Field       string // Record field holding the value
	Value       string // The value that was checked
}

// CheckValue runs libinjection over one field value.
//
// Returns nil when no injection pattern is found. Empty values are never
// flagged.
//
// Example:
//
//	// Clean value
//	result := CheckValue("content", "Worked on the analytical engine")
//	// result == nil
//
//	// Injection attempt detected
//	result := CheckValue("content", "'; DROP TABLE entries--")
//	// result.IsSQLi == true
//	// result.Fingerprint == "s&1c" (or similar)
func CheckValue(field, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Field:       field,
			Value:       value,
		}
	}

	return nil
}

// CheckRecord screens an import record's content and every metadata value.
// Returns one result per flagged field; an empty slice means the record is
// clean.
func CheckRecord(content string, metadata map[string]string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	if result := CheckValue("content", content); result != nil {
		results = append(results, result)
	}
	for field, value := range metadata {
		if result := CheckValue(field, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}
