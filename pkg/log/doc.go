/*
Package log provides structured logging for the scheduler core using
zerolog.

The package wraps zerolog to give every component a JSON-structured logger
carrying consistent fields: component name, and where relevant agent_id,
session_id, kernel_id, or resource_group. All logs include timestamps and
support filtering by severity level.

# Usage

Initialize once at process start:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

Then obtain a component-scoped logger and attach request-scoped fields as
needed:

	schedLog := log.WithComponent("dispatcher")
	schedLog.Info().Str("resource_group", rg.Name).Msg("tick started")

	sessLog := log.WithSessionID(string(session.ID))
	sessLog.Warn().Msg("predicate failed: domain_resource_limit")

Component loggers compose: call log.WithComponent first, then attach further
fields with the returned zerolog.Logger's own With() chain when a single
call site needs more than the provided helpers cover.
*/
package log
