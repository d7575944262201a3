package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
)

func docsCommand() *cli.Command {
	return &cli.Command{
		Name:      "docs",
		Usage:     "List the documents of an archive, or print one",
		ArgsUsage: "<archive> [name]",
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

			w := command.Root().Writer
			name := command.Args().Get(1)
			if name == "" {
				for _, d := range a.Documents() {
					fmt.Fprintf(w, "%s\t%d\n", d.Name(), len(d.Payload()))
				}
				return nil
			}

			d := a.DocumentWithName(name)
			if d == nil {
				return fmt.Errorf("document %q not found", name)
			}
			_, err = w.Write(d.Payload())
			return err
		},
	}
}
