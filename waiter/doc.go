/*
Package waiter provides helpers for driving control flow from a child process: echoing its output, waiting for it to exit,
killing it and confirming termination, and waiting for a line of its output to match a pattern.

Each helper attaches its listeners to the process when it's called, and returns a Waiter for the single outcome.
Several sources compete to settle an outcome, such as a matching line, the process exiting, the process erroring, or a
timeout. Whichever is observed first settles it and the rest are ignored.

	p := process.New(process.StartProcRequest{Command: "my-server"})
	waiter.Echo(p, waiter.WithOutPrefix("[server]"))
	listening := waiter.WaitOutput(p, waiter.Text("listening"), waiter.WithTimeout(10*time.Second), waiter.WithKillOnTimeout(true))
	p.Start()
	line, err := listening(ctx)

Listeners attached after the process started still receive the output it already emitted, up to the most recent 64KiB of
lines per stream.
*/
package waiter
