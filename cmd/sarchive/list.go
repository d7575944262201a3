package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/meigma/sarchive"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List the entries of an archive",
		ArgsUsage: "<archive>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "long",
				Aliases: []string{"L"},
				Usage:   "Show mode, size, compression and content digest",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) (err error) {
			path := command.Args().First()
			if path == "" {
				return errors.New("no archive provided")
			}

			a, err := openArchive(afero.NewOsFs(), getLogger(ctx), path)
			if err != nil {
				return err
			}
			defer closeArchive(a, &err)

			tw := tabwriter.NewWriter(command.Root().Writer, 0, 4, 2, ' ', 0)
			long := command.Bool("long")
			for e := range a.FileEnumerator().All() {
				if !long {
					fmt.Fprintln(tw, e.Path())
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					e.Type(), e.Mode(), e.Size(), e.Compression(), contentDigest(e), describe(e))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if long {
				fmt.Fprintf(command.Root().Writer, "%d entries, %d bytes, %d documents, %d signatures\n",
					a.FileCount(), a.Size(), len(a.Documents()), len(a.Signatures()))
			}
			return nil
		},
	}
}

// describe renders the path of e with its link target or device numbers.
func describe(e *sarchive.Entry) string {
	var sb strings.Builder
	sb.WriteString(e.Path())
	switch e.Type() {
	case sarchive.TypeSymlink:
		sb.WriteString(" -> " + e.LinkTarget())
	case sarchive.TypeBlockSpecial, sarchive.TypeCharSpecial:
		if major, minor, ok := e.Device(); ok {
			fmt.Fprintf(&sb, " (%d,%d)", major, minor)
		}
	}
	return sb.String()
}
