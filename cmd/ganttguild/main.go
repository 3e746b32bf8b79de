package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/kazz187/ganttguild/internal/calendar"
	"github.com/kazz187/ganttguild/internal/projectfile"
	"github.com/kazz187/ganttguild/internal/report"
	"github.com/kazz187/ganttguild/internal/task"
	"github.com/kazz187/ganttguild/pkg/clog"
)

var (
	app   = kingpin.New("ganttguild", "Critical path scheduling for project files")
	today = app.Flag("today", "Date the schedule is calculated on (YYYY-MM-DD)").Default(calendar.FormatDate(time.Now())).String()

	calcCmd   = app.Command("calc", "Calculate the schedule of a project file")
	calcFile  = calcCmd.Arg("file", "Project file (.yaml, .json or .toml)").Required().ExistingFile()
	calcJSON  = calcCmd.Flag("json", "Print the result as JSON").Bool()
	calcWrite = calcCmd.Flag("write", "Write the computed dates back to the file").Short('w').Bool()

	editCmd   = app.Command("edit", "Edit one task field and show how the schedule moves")
	editFile  = editCmd.Arg("file", "Project file").Required().ExistingFile()
	editTask  = editCmd.Arg("task", "Task ID").Required().String()
	editField = editCmd.Arg("field", "Field name, e.g. duration, start, end, actualFinish").Required().String()
	editValue = editCmd.Arg("value", "New value; empty clears the field").Default("").String()
	editWrite = editCmd.Flag("write", "Save the edited file").Short('w').Bool()

	watchCmd  = app.Command("watch", "Recalculate and print the schedule whenever the file changes")
	watchFile = watchCmd.Arg("file", "Project file").Required().ExistingFile()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	day, err := calendar.ParseDate(*today)
	app.FatalIfError(err, "--today")

	switch command {
	case calcCmd.FullCommand():
		err = runCalc(context.Background(), os.Stdout, *calcFile, day, *calcJSON, *calcWrite)
	case editCmd.FullCommand():
		err = runEdit(context.Background(), os.Stdout, *editFile, *editTask, *editField, *editValue, day, *editWrite)
	case watchCmd.FullCommand():
		slog.SetDefault(slog.New(clog.NewConnectTextHandler(os.Stderr, clog.WithColor(!color.NoColor), clog.WithLevel(slog.LevelInfo))))
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err = runWatch(ctx, os.Stdout, *watchFile, day)
	}
	app.FatalIfError(err, "%s", command)
}

func runCalc(ctx context.Context, w io.Writer, path string, day time.Time, asJSON, write bool) error {
	f, err := projectfile.Load(ctx, path)
	if err != nil {
		return err
	}
	res, err := f.Calculate(day)
	if err != nil {
		return err
	}
	if write {
		if err := projectfile.Save(ctx, path, f); err != nil {
			return err
		}
	}
	if asJSON {
		return report.JSON(w, res, f.Tasks)
	}
	if err := report.Table(w, f.Tasks); err != nil {
		return err
	}
	return report.Summary(w, res.Stats)
}

func runEdit(ctx context.Context, w io.Writer, path, taskID, field, value string, day time.Time, write bool) error {
	f, err := projectfile.Load(ctx, path)
	if err != nil {
		return err
	}
	if _, err := f.Calculate(day); err != nil {
		return err
	}
	before := task.CloneAll(f.Tasks)

	res, err := f.Edit(taskID, field, value, day)
	if err != nil {
		return err
	}
	if res.Message != "" {
		fmt.Fprintf(w, "%s: %s\n", res.MessageType, res.Message)
	}
	diff, err := report.Diff(before, f.Tasks)
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintln(w, "schedule unchanged")
	} else {
		fmt.Fprint(w, diff)
	}
	if write {
		return projectfile.Save(ctx, path, f)
	}
	return nil
}
