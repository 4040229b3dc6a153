// Command wimcore-demo is a small driver over the wim engine packages,
// in the same hand-rolled flag.FlagSet + verb-map shape distri's own
// cmd/distri uses: global flags parsed once, then a verb dispatches to a
// subcommand function.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	internaltrace "github.com/gowim/wim/internal/trace"
	"github.com/gowim/wim/internal/wimlog"
	"github.com/gowim/wim/internal/oninterrupt"
)

var (
	ctracefile = flag.String("ctracefile", "", "path to write a chrome trace event file to (load in chrome://tracing)")
)

type cmd struct {
	fn   func(ctx context.Context, args []string) error
	help string
}

func funcmain() error {
	flag.Parse()

	if *ctracefile != "" {
		f, err := os.Create(*ctracefile)
		if err != nil {
			return err
		}
		internaltrace.Sink(f)
		oninterrupt.Register(func() { f.Close() })
		defer f.Close()
	}

	verbs := map[string]cmd{
		"tree":   {cmdTree, "tree <metadata-resource-file>: parse a dentry tree and print its paths"},
		"verify": {cmdVerify, "verify <metadata-resource-file>: parse a dentry tree and check it for cycles"},
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage(verbs)
		return fmt.Errorf("wimcore-demo: no command given")
	}
	verb, rest := args[0], args[1:]
	c, ok := verbs[verb]
	if !ok {
		printUsage(verbs)
		return fmt.Errorf("wimcore-demo: unknown command %q", verb)
	}
	return c.fn(context.Background(), rest)
}

func printUsage(verbs map[string]cmd) {
	fmt.Fprintln(os.Stderr, "wimcore-demo [-flags] <command> [args]")
	fmt.Fprintln(os.Stderr)
	for name, c := range verbs {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", name, c.help)
	}
}

func readResource(path string) ([]byte, error) {
	if path == "-" {
		return ioutil.ReadAll(os.Stdin)
	}
	return ioutil.ReadFile(path)
}

func main() {
	log := wimlog.New("wimcore-demo")
	if err := funcmain(); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}
