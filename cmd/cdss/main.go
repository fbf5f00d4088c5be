package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cdss/cdss/internal/config"
	"github.com/cdss/cdss/internal/domain/clinical"
	"github.com/cdss/cdss/internal/domain/identity"
	"github.com/cdss/cdss/internal/domain/terminology"
	"github.com/cdss/cdss/internal/platform/db"
	"github.com/cdss/cdss/internal/platform/seed"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cdss",
		Short: "Bitemporal clinical observation store",
	}

	rootCmd.AddCommand(patientCmd())
	rootCmd.AddCommand(observationCmd())
	rootCmd.AddCommand(loincCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	return logger
}

// store bundles the services over one opened backend. Callers own the handle
// for the life of the command and must call close.
type store struct {
	identity    *identity.Service
	clinical    *clinical.Service
	terminology *terminology.Service
	close       func()
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	if cfg.UsesPostgres() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		identitySvc := identity.NewService(identity.NewRepoPG(pool))
		return &store{
			identity:    identitySvc,
			clinical:    clinical.NewService(clinical.NewRepoPG(pool), identitySvc),
			terminology: terminology.NewService(terminology.NewLOINCRepoPG(pool)),
			close:       pool.Close,
		}, nil
	}

	sdb, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSQLiteSchema(ctx, sdb); err != nil {
		sdb.Close()
		return nil, err
	}
	identitySvc := identity.NewService(identity.NewRepoSQLite(sdb))
	return &store{
		identity:    identitySvc,
		clinical:    clinical.NewService(clinical.NewRepoSQLite(sdb), identitySvc),
		terminology: terminology.NewService(terminology.NewLOINCRepoSQLite(sdb)),
		close:       func() { sdb.Close() },
	}, nil
}

// withStore loads config and opens the backend around a command body.
func withStore(run func(ctx context.Context, st *store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.close()
		return run(ctx, st)
	}
}

// -- time flag parsing --

var dateTimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// parseDateTime accepts the console date formats, plus "now".
func parseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "now") {
		return time.Now(), nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q (use \"2006-01-02 15:04\" or \"now\")", s)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q (use \"2006-01-02\")", s)
	}
	return t, nil
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "None"
	}
	return t.Format("2006-01-02 15:04")
}

func printObservation(o *clinical.Observation) {
	fmt.Printf("ID=%d value=%v valid=(%s,%s) txn=(%s,%s)\n",
		o.ID, o.Value,
		o.ValidStart.Format("2006-01-02 15:04"), fmtTime(o.ValidEnd),
		o.TxnStart.Format("2006-01-02 15:04"), fmtTime(o.TxnEnd))
}

// -- patient --

func patientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Manage patients",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a patient",
		RunE: func(c *cobra.Command, args []string) error {
			first, _ := c.Flags().GetString("first")
			last, _ := c.Flags().GetString("last")
			gender, _ := c.Flags().GetString("gender")
			birthStr, _ := c.Flags().GetString("birth-date")
			birth, err := parseDate(birthStr)
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, st *store) error {
				p := &identity.Patient{
					FirstName: first,
					LastName:  last,
					Gender:    strings.ToUpper(gender),
					BirthDate: birth,
				}
				if err := st.identity.CreatePatient(ctx, p); err != nil {
					return err
				}
				fmt.Printf("Created patient ID=%d\n", p.ID)
				return nil
			})(c, args)
		},
	}
	addCmd.Flags().String("first", "", "First name")
	addCmd.Flags().String("last", "", "Last name")
	addCmd.Flags().String("gender", "", "Gender (M/F)")
	addCmd.Flags().String("birth-date", "", "Birth date (2006-01-02)")
	addCmd.MarkFlagRequired("first")
	addCmd.MarkFlagRequired("last")
	addCmd.MarkFlagRequired("gender")
	addCmd.MarkFlagRequired("birth-date")
	cmd.AddCommand(addCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List patients",
		RunE: withStore(func(ctx context.Context, st *store) error {
			patients, err := st.identity.ListPatients(ctx, 100, 0)
			if err != nil {
				return err
			}
			for _, p := range patients {
				fmt.Printf("ID=%d %s (%s) born %s\n",
					p.ID, p.FullName(), p.Gender, p.BirthDate.Format("2006-01-02"))
			}
			return nil
		}),
	}
	cmd.AddCommand(listCmd)

	return cmd
}

// -- observation --

func observationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observation",
		Short: "Append, correct and query bitemporal observations",
	}

	cmd.AddCommand(observationAddCmd())
	cmd.AddCommand(observationHistoryCmd())
	cmd.AddCommand(observationCorrectCmd())
	cmd.AddCommand(observationRetroCorrectCmd())
	cmd.AddCommand(observationRetroDeleteCmd())
	return cmd
}

func observationAddCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "add",
		Short: "Append a new observation",
		RunE: func(c *cobra.Command, args []string) error {
			patientID, _ := c.Flags().GetInt64("patient")
			code, _ := c.Flags().GetString("code")
			value, _ := c.Flags().GetFloat64("value")
			startStr, _ := c.Flags().GetString("start")
			endStr, _ := c.Flags().GetString("end")

			start, err := parseDateTime(startStr)
			if err != nil {
				return err
			}
			var end *time.Time
			if endStr != "" {
				t, err := parseDateTime(endStr)
				if err != nil {
					return err
				}
				end = &t
			}
			return withStore(func(ctx context.Context, st *store) error {
				o, err := st.clinical.Append(ctx, patientID, code, value, start, end)
				if err != nil {
					return err
				}
				fmt.Printf("Created observation ID=%d\n", o.ID)
				return nil
			})(c, args)
		},
	}
	c.Flags().Int64("patient", 0, "Patient ID")
	c.Flags().String("code", "", "LOINC code")
	c.Flags().Float64("value", 0, "Measured value")
	c.Flags().String("start", "", "Valid start (2006-01-02 15:04 or now)")
	c.Flags().String("end", "", "Valid end (optional)")
	c.MarkFlagRequired("patient")
	c.MarkFlagRequired("code")
	c.MarkFlagRequired("value")
	c.MarkFlagRequired("start")
	return c
}

func observationHistoryCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "history",
		Short: "Show currently believed observations overlapping a window",
		RunE: func(c *cobra.Command, args []string) error {
			patientID, _ := c.Flags().GetInt64("patient")
			code, _ := c.Flags().GetString("code")
			sinceStr, _ := c.Flags().GetString("since")
			untilStr, _ := c.Flags().GetString("until")

			since, err := parseDateTime(sinceStr)
			if err != nil {
				return err
			}
			until, err := parseDateTime(untilStr)
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, st *store) error {
				name, err := st.terminology.LookupName(ctx, code)
				if err != nil {
					name = "(no name)"
				}
				hist, err := st.clinical.History(ctx, patientID, code, since, until)
				if err != nil {
					return err
				}
				if len(hist) == 0 {
					fmt.Println("No results.")
					return nil
				}
				fmt.Printf("LOINC: %s - %s\n", code, name)
				for _, o := range hist {
					printObservation(o)
				}
				return nil
			})(c, args)
		},
	}
	c.Flags().Int64("patient", 0, "Patient ID")
	c.Flags().String("code", "", "LOINC code")
	c.Flags().String("since", "", "Window start (2006-01-02 15:04 or now)")
	c.Flags().String("until", "", "Window end (2006-01-02 15:04 or now)")
	c.MarkFlagRequired("patient")
	c.MarkFlagRequired("code")
	c.MarkFlagRequired("since")
	c.MarkFlagRequired("until")
	return c
}

func observationCorrectCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "correct",
		Short: "Correct an observation's value by id",
		RunE: func(c *cobra.Command, args []string) error {
			obsID, _ := c.Flags().GetInt64("id")
			value, _ := c.Flags().GetFloat64("value")
			return withStore(func(ctx context.Context, st *store) error {
				o, err := st.clinical.CorrectValue(ctx, obsID, value)
				if err != nil {
					return err
				}
				if o == nil {
					fmt.Println("No matching observation.")
					return nil
				}
				fmt.Printf("Corrected: new row ID=%d value=%v\n", o.ID, o.Value)
				return nil
			})(c, args)
		},
	}
	c.Flags().Int64("id", 0, "Observation ID")
	c.Flags().Float64("value", 0, "New value")
	c.MarkFlagRequired("id")
	c.MarkFlagRequired("value")
	return c
}

func observationRetroCorrectCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "retro-correct",
		Short: "Correct a fact with an explicitly dated transaction time",
		RunE: func(c *cobra.Command, args []string) error {
			name, _ := c.Flags().GetString("patient-name")
			code, _ := c.Flags().GetString("code")
			measuredStr, _ := c.Flags().GetString("measured-at")
			txnStr, _ := c.Flags().GetString("txn-at")
			value, _ := c.Flags().GetFloat64("value")

			measuredAt, err := parseDateTime(measuredStr)
			if err != nil {
				return err
			}
			txnAt, err := parseDateTime(txnStr)
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, st *store) error {
				changed, err := st.clinical.RetroactiveCorrect(ctx, name, code, measuredAt, txnAt, value)
				if err != nil {
					return err
				}
				if len(changed) == 0 {
					fmt.Println("No matching observation.")
					return nil
				}
				old, updated := changed[0], changed[1]
				fmt.Printf("[old] ID=%d value=%v txn_end=%s\n", old.ID, old.Value, fmtTime(old.TxnEnd))
				fmt.Printf("[new] ID=%d value=%v txn_start=%s\n", updated.ID, updated.Value, updated.TxnStart.Format("2006-01-02 15:04"))
				return nil
			})(c, args)
		},
	}
	c.Flags().String("patient-name", "", "Patient full name (First Last)")
	c.Flags().String("code", "", "LOINC code")
	c.Flags().String("measured-at", "", "Valid start of the fact being corrected")
	c.Flags().String("txn-at", "", "Transaction time of the correction")
	c.Flags().Float64("value", 0, "New value")
	c.MarkFlagRequired("patient-name")
	c.MarkFlagRequired("code")
	c.MarkFlagRequired("measured-at")
	c.MarkFlagRequired("txn-at")
	c.MarkFlagRequired("value")
	return c
}

func observationRetroDeleteCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "retro-delete",
		Short: "Stop believing a fact as of a given transaction time",
		RunE: func(c *cobra.Command, args []string) error {
			name, _ := c.Flags().GetString("patient-name")
			code, _ := c.Flags().GetString("code")
			deleteStr, _ := c.Flags().GetString("delete-at")
			measuredStr, _ := c.Flags().GetString("measured-at")

			deleteAt, err := parseDateTime(deleteStr)
			if err != nil {
				return err
			}
			var measuredAt *time.Time
			if measuredStr != "" {
				t, err := parseDateTime(measuredStr)
				if err != nil {
					return err
				}
				measuredAt = &t
			}
			return withStore(func(ctx context.Context, st *store) error {
				o, err := st.clinical.RetroactiveDelete(ctx, name, code, deleteAt, measuredAt)
				if err != nil {
					return err
				}
				if o == nil {
					fmt.Println("No matching observation.")
					return nil
				}
				fmt.Printf("Deleted ID=%d value=%v txn_end=%s\n", o.ID, o.Value, fmtTime(o.TxnEnd))
				return nil
			})(c, args)
		},
	}
	c.Flags().String("patient-name", "", "Patient full name (First Last)")
	c.Flags().String("code", "", "LOINC code")
	c.Flags().String("delete-at", "", "Transaction time of the deletion")
	c.Flags().String("measured-at", "", "Exact valid start to match (optional)")
	c.MarkFlagRequired("patient-name")
	c.MarkFlagRequired("code")
	c.MarkFlagRequired("delete-at")
	return c
}

// -- loinc --

func loincCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loinc",
		Short: "LOINC reference catalog",
	}

	lookupCmd := &cobra.Command{
		Use:   "lookup",
		Short: "Look up the common name of a LOINC code",
		RunE: func(c *cobra.Command, args []string) error {
			code, _ := c.Flags().GetString("code")
			return withStore(func(ctx context.Context, st *store) error {
				name, err := st.terminology.LookupName(ctx, code)
				if err != nil {
					fmt.Printf("%s: (no name available)\n", code)
					return nil
				}
				fmt.Printf("%s: %s\n", code, name)
				return nil
			})(c, args)
		},
	}
	lookupCmd.Flags().String("code", "", "LOINC code")
	lookupCmd.MarkFlagRequired("code")
	cmd.AddCommand(lookupCmd)

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import the LOINC table from a CSV export",
		RunE: func(c *cobra.Command, args []string) error {
			path, _ := c.Flags().GetString("file")
			return withStore(func(ctx context.Context, st *store) error {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				n, err := st.terminology.ImportCSV(ctx, f)
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d LOINC entries.\n", n)
				return nil
			})(c, args)
		},
	}
	importCmd.Flags().String("file", "data/L_TableCore.csv", "Path to the LOINC table CSV")
	cmd.AddCommand(importCmd)

	return cmd
}

// -- seed --

func seedCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "seed",
		Short: "Create fake patients and seed observations from a sample CSV",
		RunE: func(c *cobra.Command, args []string) error {
			n, _ := c.Flags().GetInt("patients")
			path, _ := c.Flags().GetString("file")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			return withStore(func(ctx context.Context, st *store) error {
				seeder := seed.New(st.identity, st.clinical, logger)
				summary, err := seeder.Run(ctx, n, path)
				if err != nil {
					return err
				}
				fmt.Println("Patients created:")
				for _, p := range summary.Patients {
					fmt.Printf("  ID=%d Name=%s Gender=%s\n", p.ID, p.FullName(), p.Gender)
				}
				fmt.Printf("Observations created: %d (skipped %d unusable sample rows)\n",
					len(summary.Observations), summary.Skipped)
				return nil
			})(c, args)
		},
	}
	c.Flags().Int("patients", 10, "Number of fake patients to create")
	c.Flags().String("file", "data/project_db.csv", "Path to the sample observations CSV")
	return c
}

// -- migrate --

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations (PostgreSQL backend)",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(c *cobra.Command, args []string) error {
			dir, _ := c.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.UsesPostgres() {
				fmt.Println("SQLite backend: schema is ensured automatically on open; nothing to do.")
				return nil
			}

			ctx := c.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(c *cobra.Command, args []string) error {
			dir, _ := c.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.UsesPostgres() {
				fmt.Println("SQLite backend: schema is ensured automatically on open.")
				return nil
			}

			ctx := c.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}
