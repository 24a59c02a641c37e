// Package predicate implements the admission checks the dispatcher runs
// against a pending session before committing an allocation: dependency
// ordering, per-scope resource quotas, pending-queue limits, and resource
// group eligibility. Every predicate runs regardless of earlier failures so
// a session's status_data accumulates every failing reason in one pass, not
// just the first.
package predicate
