/*
Package accounting reconciles the incrementally-maintained agent
occupied_slots and per-keypair concurrency counters against the kernel
table, the authoritative source both are derived from.

The scheduler (pkg/scheduler) and settlement path update both quantities
inline on every kernel status transition into or out of an occupying
state. That incremental path is the fast path and is correct so long as
every write lands, but a crashed UpdateAgent call, a lost event, or an
operator edit to the kernel table can leave it wrong. Recalculator runs a
periodic full-scan pass that re-derives both quantities directly from
ListKernelsByAgent/ListSessions and overwrites whatever the incremental
path produced, closing any drift rather than letting it compound.

	r := accounting.NewRecalculator(repo, state, 60*time.Second)
	r.Start()
	defer r.Stop()

Recalc(ctx, false) — the lighter delta path — only touches agents that
currently hold at least one occupying kernel; Recalc(ctx, true) — the
periodic full-scan path — walks every agent and sets the concurrency
counter of every access key that appears on a session row outright,
whether or not it currently has any USER_OCCUPYING sessions (a key with no
session rows at all is not touched). Recalc is idempotent: running it twice in a row
with no intervening kernel transition produces identical agent rows and
counters.
*/
package accounting
