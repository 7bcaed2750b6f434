/*
Package process provides a handle to a local child process whose lifecycle can be observed by any number of independent observers.

A Process exposes:

  - line streams for stdout and stderr, which fan every line out to every registered handler
  - an exit notification carrying an exit code or a terminating signal name, never both
  - an error notification for operational errors such as a failure to start
  - Kill, which requests termination, and the Killed flag

Notifications are channels that are closed exactly once, so observers that attach after an event still observe it.
The exit notification is only delivered after all of the process's piped output has been delivered to line handlers,
so a handler always sees the last line before any observer sees the exit.
*/
package process
