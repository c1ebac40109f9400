package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"govportal/internal/db"
	"govportal/internal/navigation"
	"govportal/internal/versions"
	"govportal/internal/workbook"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "qsetctl",
		Short:        "Validate, import and publish questionnaire workbooks",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.String("db-driver", "sqlite", "Database driver (sqlite, postgres)")
	pf.String("db-dsn", "qsetctl.db", "Database DSN or SQLite path")
	pf.StringP("format", "f", "yaml", "Output format (yaml, json)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	root.AddCommand(
		validateCmd(),
		importCmd(),
		publishCmd(),
		unpublishCmd(),
		listCmd(),
		sectionsCmd(),
		templateCmd(),
	)
	return root
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workbook>",
		Short: "Check a workbook and print the ingestion report without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := setup(cmd)
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open workbook: %w", err)
			}
			defer f.Close()

			qs, warnings, err := versions.Parse(args[0], f, time.Now)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				slog.Warn("ingestion warning", "kind", w.Kind, "sheet", w.Sheet, "row", w.Row, "question_id", w.QuestionID, "detail", w.Detail)
			}
			return writeOutput(cmd.OutOrStdout(), v.GetString("format"), versions.ImportReport{
				VersionID:    qs.Version.VersionID,
				SourceDigest: qs.Version.SourceDigest,
				Questions:    len(qs.Questions),
				Categories:   len(qs.Categories),
				Sections:     len(qs.Sections()),
				Warnings:     warnings,
			})
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <workbook>",
		Short: "Import a workbook as a new draft version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := setup(cmd)
			svc, closeDB, err := openStore(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer closeDB()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open workbook: %w", err)
			}
			defer f.Close()

			rep, err := svc.Import(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			slog.Info("imported question set", "version_id", rep.VersionID, "questions", rep.Questions, "warnings", len(rep.Warnings))
			return writeOutput(cmd.OutOrStdout(), v.GetString("format"), rep)
		},
	}
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <version>",
		Short: "Publish a version, withdrawing any other published version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := setup(cmd)
			svc, closeDB, err := openStore(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer closeDB()

			sum, err := svc.Publish(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), v.GetString("format"), sum)
		},
	}
}

func unpublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpublish <version>",
		Short: "Withdraw a published version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := setup(cmd)
			svc, closeDB, err := openStore(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer closeDB()

			sum, err := svc.Unpublish(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), v.GetString("format"), sum)
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored versions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := setup(cmd)
			svc, closeDB, err := openStore(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer closeDB()

			items, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), v.GetString("format"), items)
		},
	}
}

type sectionRow struct {
	SectionID  string                `json:"section_id"`
	Name       string                `json:"name"`
	CategoryID string                `json:"category_id"`
	Questions  int                   `json:"questions"`
	Navigation navigation.Navigation `json:"navigation"`
}

func sectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sections <version>",
		Short: "Print the section order of a version with its navigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := setup(cmd)
			svc, closeDB, err := openStore(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer closeDB()

			qs, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			counts := make(map[string]int)
			for _, q := range qs.Questions {
				counts[q.SectionID]++
			}
			seq := navigation.New(qs)
			sections, _ := seq.Sections(qs.Version.VersionID)
			rows := make([]sectionRow, 0, len(sections))
			for _, s := range sections {
				nav, err := seq.Sequence(qs.Version.VersionID, s.SectionID)
				if err != nil {
					return err
				}
				rows = append(rows, sectionRow{
					SectionID:  s.SectionID,
					Name:       s.Name,
					CategoryID: s.CategoryID,
					Questions:  counts[s.SectionID],
					Navigation: nav,
				})
			}
			return writeOutput(cmd.OutOrStdout(), v.GetString("format"), rows)
		},
	}
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an empty workbook with every required sheet and column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := setup(cmd)
			data, err := workbook.Template(v.GetString("module-sheet"))
			if err != nil {
				return err
			}
			out := v.GetString("output")
			if err := workbook.CheckExtension(out); err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			slog.Info("wrote template", "path", out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringP("output", "o", "questionset_template.xlsx", "Output workbook path")
	f.String("module-sheet", "Module1", "Name of the module sheet")
	return cmd
}

func setup(cmd *cobra.Command) *viper.Viper {
	v := viperForCmd(cmd)
	setupLogging(v)
	return v
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QSET")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("qsetctl")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/qsetctl")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}
	return v
}

func openStore(ctx context.Context, v *viper.Viper) (*versions.Service, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dialect, err := db.ParseDialect(v.GetString("db-driver"))
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(ctx, dialect, v.GetString("db-dsn"), db.DefaultPoolConfig())
	if err != nil {
		return nil, nil, err
	}
	svc, err := versions.NewService(ctx, conn, dialect)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return svc, func() { closeQuietly(conn) }, nil
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		slog.Warn("close database", "error", err)
	}
}

func writeOutput(w io.Writer, format string, data any) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "", "yaml", "yml":
		out, err := toYAML(data)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// toYAML renders data through its JSON form so the json field names and order carry over.
func toYAML(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	blockStyle(&node)

	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
