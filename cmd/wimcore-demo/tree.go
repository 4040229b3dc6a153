package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gowim/wim/dentry"
	internaltrace "github.com/gowim/wim/internal/trace"
	"github.com/gowim/wim/internal/wimlog"
	"github.com/gowim/wim/wimtree"
)

func cmdTree(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: wimcore-demo tree <metadata-resource-file>")
	}
	buf, err := readResource(args[0])
	if err != nil {
		return err
	}

	lg := wimlog.New("tree")

	ev := internaltrace.Event("dentry.Parse", 0)
	ev.Type = "B"
	root, err := dentry.Parse(buf, 0, dentry.WithWarnings(lg), dentry.BestEffort(true))
	ev.Done()
	if err != nil {
		return err
	}

	tr, err := wimtree.FromNode(root, wimtree.WithWarnings(lg))
	if err != nil {
		return err
	}

	return tr.Walk(func(d *wimtree.Dentry) error {
		path := d.FullPath()
		if d.IsDir() {
			path += "/"
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\n", d.Node.Inode.WriteTime.Time().Format("2006-01-02 15:04:05"), path)
		return nil
	})
}
