// aura-repl is a line-oriented harness for exercising the router without
// MCP transport: each stdin line is one utterance, each response is the
// JSON turn results.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aura-assistant/aura-core/pkg/assistant"
)

func main() {
	libsqlURL := flag.String("libsql-url", "file:./aura.db", "libSQL database URL")
	owner := flag.Int64("owner", 0, "Owner id to act as")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-utterance timeout")
	flag.Parse()

	svc, err := assistant.NewService(&assistant.Config{URL: *libsqlURL}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	hints := assistant.ConversationContext{}
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stderr, "aura-repl ready; one utterance per line, Ctrl-D to exit")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		results, err := svc.HandleUtterance(ctx, *owner, line, hints)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(os.Stderr, "encode error: %v\n", err)
		}

		hints.History = append(hints.History, line)
		if len(hints.History) > 5 {
			hints.History = hints.History[len(hints.History)-5:]
		}
		for _, res := range results {
			if len(res.Recap) > 0 {
				hints.LastList = res.Recap[len(res.Recap)-1].Name
			}
			hints.LastAction = string(res.Action)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "stdin error: %v\n", err)
		os.Exit(1)
	}
}
