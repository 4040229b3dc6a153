package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gowim/wim/dentry"
	"github.com/gowim/wim/internal/wimlog"
	"github.com/gowim/wim/wimtree"
)

func cmdVerify(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: wimcore-demo verify <metadata-resource-file>")
	}
	buf, err := readResource(args[0])
	if err != nil {
		return err
	}

	lg := wimlog.New("verify")
	root, err := dentry.Parse(buf, 0, dentry.WithWarnings(lg), dentry.BestEffort(true))
	if err != nil {
		return err
	}
	tr, err := wimtree.FromNode(root, wimtree.WithWarnings(lg))
	if err != nil {
		return err
	}
	if err := wimtree.VerifyAcyclic(tr); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "ok: acyclic")
	return nil
}
