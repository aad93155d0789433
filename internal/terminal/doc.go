// Package terminal turns a message-based browser connection into the
// blocking, serial-terminal style channel the BBS logic is written against,
// and keeps track of every connected session.
//
// # Core Components
//
//   - [Channel]: blocking I/O façade (Send, Recv, ProcessInput,
//     HideProcessInput, ProcessMultilineInput, SetTimeout).
//   - [Session]: one connection's Channel, input and output queues, logic
//     task and sender task.
//   - [Registry]: process-wide session table with an admission ceiling,
//     one-session-per-user eviction, presence listing and kick.
//   - [RateModel]: link-speed profiles ("300", "2400", ..., "full") mapped to
//     a per-character delay.
//   - [SplitRuns]: tokenizer separating client control sequences from plain
//     text so control sequences are never paced or split.
//   - [Capture]: session-logging buffer toggled by the user.
//
// # Session Lifecycle
//
//  1. [Registry.Admit] checks the ceiling, evicts an older session of the
//     same registered user and creates the session.
//  2. [Session.Start] launches two goroutines: the logic task runs the
//     supplied [Logic]; the sender task drains the output queue.
//  3. The transport feeds keystrokes with [Session.Deliver] and multiline
//     editor payloads with [Session.DeliverSubmission]. The two are queued
//     separately. Reads on the Channel block only the logic task.
//  4. Teardown ([Session.Close], [Registry.Kick], eviction, logoff, transport
//     error) wakes blocked reads with io.EOF, removes the session from the
//     registry, flushes queued output and closes the transport.
//
// # Output Pacing
//
// The sender splits each outbound fragment into runs. Control runs (mode
// toggles ESC[?nh / ESC[?nl, named commands ESC]GRBBS;...BEL and download
// triggers ESC_GRBBS_DOWNLOAD;...ESC\) are written whole and immediately.
// Plain text is written one character at a time, spaced by the session's
// [RateModel] delay, unless the profile is unthrottled.
//
// # Errors
//
// Reads return [ErrTimeout] when the channel timeout elapses and io.EOF once
// the session is gone. Admission fails with an [*AdmissionRejectedError]
// (errors.Is [ErrAdmissionRejected]).
//
// # Log Prefixes
//
// Session tasks log at the [terminal] and [sender] prefixes. Registry
// operations log at the [registry] prefix.
package terminal
