// Package audit records device operations in the audit_logs table.
//
// Entries are written after the operation completes, successful or not,
// and are never updated. Writers should treat the trail as best-effort:
// a failed audit write must not fail the operation it describes.
package audit
