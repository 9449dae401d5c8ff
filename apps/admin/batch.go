package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/examresult"
	"github.com/trezcool/chuo/core/record"
)

var errNoCourseSource = errors.New("no legacy courses: pass -file or use the " + core.EngineMongo + " engine")

type reportRow struct {
	Label string
	Value string
}

// sweep removes the duplicates of kind. Sweeps & backfills must not run concurrently.
func (cli *commandLine) sweep(kind record.Kind, dryRun, notify bool) error {
	if !kind.Valid() {
		return errors.Errorf("unknown kind %q", kind)
	}
	report, err := record.NewSweeper(cli.records, kind, cli.logger).Sweep(context.Background(), dryRun)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("Sweep report: %s", kind)
	if dryRun {
		title += " (dry run)"
	}
	return cli.report(title, report, notify, []reportRow{
		{"Scanned", strconv.Itoa(report.Scanned)},
		{"Groups", strconv.Itoa(report.Groups)},
		{"Duplicate groups", strconv.Itoa(report.DuplicateGroups)},
		{"Removed", strconv.Itoa(report.Removed)},
		{"Failed", strconv.Itoa(report.Failed)},
	})
}

// backfill creates the exam results of the attempts embedded in the legacy courses.
func (cli *commandLine) backfill(file string, notify bool) error {
	var src examresult.CourseSource = examresult.FileSource{Path: file}
	if file == "" {
		if cli.courses == nil {
			return errNoCourseSource
		}
		src = cli.courses
	}

	ctx := context.Background()
	courses, err := src.Courses(ctx)
	if err != nil {
		return err
	}
	report, err := examresult.NewBackfiller(cli.records, cli.logger, cli.conf.Location()).Migrate(ctx, courses)
	if err != nil {
		return err
	}
	return cli.report("Backfill report: exam results", report, notify, []reportRow{
		{"Courses", strconv.Itoa(report.Courses)},
		{"Attempts", strconv.Itoa(report.Scanned)},
		{"Created", strconv.Itoa(report.Created)},
		{"Skipped", strconv.Itoa(report.Skipped)},
		{"Failed", strconv.Itoa(report.Failed)},
	})
}

// report prints the report as JSON, and emails its rows to the ops address when notify is set.
func (cli *commandLine) report(title string, report interface{}, notify bool, rows []reportRow) error {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding report")
	}
	fmt.Fprintln(cli.out, string(b))

	if !notify {
		return nil
	}
	if cli.conf.OpsEmail == "" {
		cli.logger.Warn("ops_email is not set: report not sent")
		return nil
	}
	to, err := mail.ParseAddressList(cli.conf.OpsEmail)
	if err != nil {
		return errors.Wrap(err, "parsing ops_email")
	}
	addrs := make([]mail.Address, 0, len(to))
	for _, addr := range to {
		addrs = append(addrs, *addr)
	}
	cli.mailer.SendMessages(&core.EmailMessage{
		To:           addrs,
		Subject:      title,
		TemplateName: "batch_report",
		TemplateData: map[string]interface{}{
			"AppName": cli.conf.AppName,
			"Title":   title,
			"Rows":    rows,
		},
	})
	return nil
}
