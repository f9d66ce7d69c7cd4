/*
Package workflow defines workflow interfaces, types, and primitives.

# Workflows

Workflows abstract away the lower-level tracking of gateway
command/response correlation to better focus on accomplishing
higher-level end goals. To the larger workflow engine a workflow is just
a procedure that dispatches commands, waits for their correlated
responses, and decides on a terminal result.

Workflows are identified by names. The names double as the requestType
values accepted by the start API and are intended to be unique amongst
the workflow engine and human readable.

Newly started workflows are given an instance ID: a unique identifier
for tracking, logging, and status queries. One instance is one durably
resumable execution of a workflow.

# Steps

Workflow execution is facilitated by one or more steps. A step is the
unit of durability: its output is recorded append-only against the
instance when it completes, and on resume after a process restart the
recorded outputs are replayed in order instead of re-running the step
functions. A step therefore executes its side effects at most once per
instance. Steps are identified by name; there is no convention for these
names but they should be human readable as they will likely be logged.

Repeated dispatches inside a single step (such as the sleep-poll status
check loop) are intentionally not individually recorded: status checks
are idempotent and a crash mid-poll simply resumes polling.

# Custom status

A workflow publishes a custom status string before each step begins.
External callers may query it at any time; it reflects the last started
step and is a liveness hint only.

# Process model

No assumptions should be made about the state of the workflow object
receiving method calls. Assume it is a shared object and that multiple
instances of the same workflow run concurrently against it. Keep
per-instance state in the Run handle and storage, not on the workflow
struct.
*/
package workflow
