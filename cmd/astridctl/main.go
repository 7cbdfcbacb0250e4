// astridctl inspects the tamper-evident audit chain a running agent
// produces.
//
// Usage:
//
//	astridctl audit verify -db audit.db -key signing.key
//	astridctl audit show -db audit.db -key signing.key -session <id>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/astralis-run/astrid/pkg/audit"
	"github.com/astralis-run/astrid/pkg/signing"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "audit" {
		usage()
		os.Exit(1)
	}
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	switch os.Args[2] {
	case "verify":
		runVerify(os.Args[3:])
	case "show":
		runShow(os.Args[3:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  astridctl audit verify -db audit.db -key signing.key")
	fmt.Fprintln(os.Stderr, "  astridctl audit show -db audit.db -key signing.key -session <id>")
}

func openLog(fs *flag.FlagSet, args []string) *audit.Log {
	dbPath := fs.String("db", "audit.db", "path to the audit sqlite database")
	keyPath := fs.String("key", "signing.key", "path to the Ed25519 signing key")
	fs.Parse(args)

	keys, err := signing.LoadOrGenerate(*keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := audit.Open(*dbPath, keys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return log
}

func runVerify(args []string) {
	fs := flag.NewFlagSet("audit verify", flag.ExitOnError)
	log := openLog(fs, args)
	defer log.Close()

	result, err := log.VerifyChain()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if result.OK {
		fmt.Println("chain OK")
		return
	}
	fmt.Printf("chain BROKEN at entry %s\n", result.BreakAtID)
	fmt.Printf("security violations recorded: %d\n", log.SecurityViolations())
	os.Exit(1)
}

func runShow(args []string) {
	fs := flag.NewFlagSet("audit show", flag.ExitOnError)
	sessionID := fs.String("session", "", "session id to show entries for")
	asJSON := fs.Bool("json", false, "print entries as JSON lines instead of a summary table")
	dbPath := fs.String("db", "audit.db", "path to the audit sqlite database")
	keyPath := fs.String("key", "signing.key", "path to the Ed25519 signing key")
	fs.Parse(args)

	if *sessionID == "" {
		fmt.Fprintln(os.Stderr, "Error: -session is required")
		os.Exit(1)
	}

	keys, err := signing.LoadOrGenerate(*keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log, err := audit.Open(*dbPath, keys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	entries, err := log.GetSessionEntries(*sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Printf("no entries for session %s\n", *sessionID)
		return
	}

	if *asJSON {
		for _, e := range entries {
			data, _ := json.Marshal(e)
			fmt.Println(string(data))
		}
		return
	}

	fmt.Printf("%-24s %-28s %-20s %-8s\n", "timestamp", "action", "proof", "success")
	fmt.Println(strings.Repeat("-", 84))
	for _, e := range entries {
		status := "ok"
		if !e.Outcome.Success {
			status = "FAIL"
		}
		fmt.Printf("%-24s %-28s %-20s %-8s\n",
			e.Timestamp.Format("2006-01-02T15:04:05Z"),
			e.Action.Type, e.AuthProof.Type, status)
	}
}
