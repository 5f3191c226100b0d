package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dougsko/siggen/pkg/control"
)

const consolePrompt = "Press Enter to quit, or type a command: "

// runConsole feeds lines from in to the dispatcher until an empty line,
// QUIT or ctx is done. End of input ends an interactive console; a piped
// one keeps the generator running until ctx is done.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, d *control.Dispatcher, interactive bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		if interactive {
			fmt.Fprint(out, consolePrompt)
		}

		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				if interactive {
					return
				}
				<-ctx.Done()
				return
			}

			line = strings.TrimSpace(line)
			if line == "" {
				return
			}
			resp, quit := d.Execute(line)
			fmt.Fprintln(out, resp.String())
			if quit {
				return
			}
		}
	}
}
