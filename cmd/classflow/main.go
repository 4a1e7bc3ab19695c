// classflow inspects jar files with the symbolic method analyzer.
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slog"

	"github.com/classflow/classflow/core/analysis"
	"github.com/classflow/classflow/core/jclass"
	"github.com/classflow/classflow/jar"
	"github.com/classflow/classflow/log"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=error, 1=warn, 2=info, 3=debug",
		Value: 2,
	}
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	failuresFlag = &cli.BoolFlag{
		Name:  "only-failures",
		Usage: "List only methods whose analysis failed",
	}
)

func main() {
	app := &cli.App{
		Name:  "classflow",
		Usage: "symbolic bytecode analysis for jar files",
		Flags: []cli.Flag{verbosityFlag, configFlag},
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "Analyze every method of every class in a jar",
				ArgsUsage: "<jar>",
				Flags:     []cli.Flag{failuresFlag},
				Action:    runAnalyze,
			},
			{
				Name:      "classes",
				Usage:     "List the classes in a jar with their hierarchy links",
				ArgsUsage: "<jar>",
				Action:    runClasses,
			},
		},
		Before: setupLogging,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) error {
	switch ctx.Int(verbosityFlag.Name) {
	case 0:
		log.SetLevel(slog.LevelError)
	case 1:
		log.SetLevel(slog.LevelWarn)
	case 2:
		log.SetLevel(slog.LevelInfo)
	default:
		log.SetLevel(slog.LevelDebug)
	}
	return nil
}

func loadPool(ctx *cli.Context) (*jclass.Pool, error) {
	if ctx.Args().Len() != 1 {
		return nil, errors.New("expected exactly one jar argument")
	}
	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	ar, err := jar.Read(ctx.Args().First())
	if err != nil {
		return nil, err
	}
	pool := ar.Pool
	for _, name := range cfg.ExcludeClasses {
		if c := pool.Get(name); c != nil {
			if err := pool.Remove(c); err != nil {
				return nil, err
			}
		}
	}
	pool.Init()
	return pool, nil
}

func runAnalyze(ctx *cli.Context) error {
	pool, err := loadPool(ctx)
	if err != nil {
		return err
	}
	results := analysis.AnalyzeAll(pool)

	onlyFailures := ctx.Bool(failuresFlag.Name)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Method", "Frames", "Max Stack", "Max Locals", "Status"})
	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			table.Append([]string{r.Method.String(), "-", "-", "-", r.Err.Error()})
			continue
		}
		if onlyFailures {
			continue
		}
		table.Append([]string{
			r.Method.String(),
			fmt.Sprint(r.Result.FrameCount()),
			fmt.Sprint(r.Result.MaxStack),
			fmt.Sprint(r.Result.MaxLocals),
			"ok",
		})
	}
	table.Render()
	log.Info("analysis finished", "methods", len(results), "failures", failures)
	return nil
}

func runClasses(ctx *cli.Context) error {
	pool, err := loadPool(ctx)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Class", "Super", "Methods", "Fields", "Children"})
	classes := pool.Classes()
	sorted := make([]*jclass.Class, len(classes))
	copy(sorted, classes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, c := range sorted {
		super := ""
		if c.Super != nil {
			super = c.Super.Name
		}
		table.Append([]string{
			c.Name,
			super,
			fmt.Sprint(len(c.Methods)),
			fmt.Sprint(len(c.Fields)),
			fmt.Sprint(len(c.Children)),
		})
	}
	table.Render()
	return nil
}
