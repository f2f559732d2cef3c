package main

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/user"
)

// cliActor stands for the operator when syncing from the command line.
var cliActor = user.User{Name: "admin CLI", Role: user.RoleAdmin}

func (cli *commandLine) syncData(reset, testData bool) error {
	ctx := context.Background()

	if reset {
		res, err := cli.asgSvc.ForceReset(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "reset: %d assignments, %d submissions\n", len(res.Assignments), len(res.Submissions))
	} else {
		res, err := cli.asgSvc.Sync(ctx, &cliActor)
		if err != nil {
			return err
		}
		for _, key := range res.MigratedKeys {
			fmt.Fprintf(cli.out, "migrated legacy key %q\n", key)
		}
		fmt.Fprintf(cli.out, "synced: %d assignments, %d submissions\n", len(res.Assignments), len(res.Submissions))
	}

	if testData {
		res, err := cli.asgSvc.EnsureTestData(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "test data: assignment created: %t, submission created: %t\n",
			res.AssignmentCreated, res.SubmissionCreated)
	}
	return nil
}

type exportOptions struct {
	path        string
	to, cc, bcc string // comma separated addresses
}

// exportCSV writes the assignments report to path, or to the CLI output when path is "-".
// With recipients, the report is emailed instead of printed.
func (cli *commandLine) exportCSV(opts exportOptions) (err error) {
	ctx := context.Background()
	asgs, err := cli.asgSvc.ListAssignments(ctx)
	if err != nil {
		return err
	}
	if len(asgs) == 0 {
		return errors.New("no assignments to export")
	}

	if opts.to != "" {
		if err = cli.emailCSV(ctx, len(asgs), opts); err != nil {
			return err
		}
	}
	if opts.path == "-" {
		if opts.to != "" {
			return nil
		}
		return cli.asgSvc.ExportCSV(ctx, cli.out)
	}
	path := opts.path

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating export file")
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err = cli.asgSvc.ExportCSV(ctx, f); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "exported %d assignments to %s\n", len(asgs), path)
	return nil
}

func (cli *commandLine) emailCSV(ctx context.Context, count int, opts exportOptions) error {
	msg := &core.EmailMessage{
		Subject: "Assignments export",
		BodyStr: fmt.Sprintf("Please find attached the export of %d assignments.", count),
	}
	var err error
	if msg.To, err = parseAddresses(opts.to); err != nil {
		return errors.Wrap(err, "parsing -email")
	}
	if msg.Cc, err = parseAddresses(opts.cc); err != nil {
		return errors.Wrap(err, "parsing -cc")
	}
	if msg.Bcc, err = parseAddresses(opts.bcc); err != nil {
		return errors.Wrap(err, "parsing -bcc")
	}

	var buf bytes.Buffer
	if err = cli.asgSvc.ExportCSV(ctx, &buf); err != nil {
		return err
	}
	fname := fmt.Sprintf("assignments_export_%s.csv", time.Now().UTC().Format("2006-01-02"))
	if err = msg.Attach(&buf, fname, "text/csv"); err != nil {
		return err
	}
	if err = cli.mailSvc.Send(msg); err != nil {
		return errors.Wrap(err, "sending export email")
	}
	fmt.Fprintf(cli.out, "emailed %d assignments to %s\n", count, opts.to)
	return nil
}

func parseAddresses(list string) ([]mail.Address, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	parsed, err := mail.ParseAddressList(list)
	if err != nil {
		return nil, err
	}
	addrs := make([]mail.Address, 0, len(parsed))
	for _, a := range parsed {
		addrs = append(addrs, *a)
	}
	return addrs, nil
}
