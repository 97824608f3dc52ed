package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/core"
	"github.com/ledgerdocs/procflow/docanalysis"
	"github.com/ledgerdocs/procflow/docanalysis/sidecar"
	"github.com/ledgerdocs/procflow/internal/config"
	"github.com/ledgerdocs/procflow/step"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configFile string
	tenant     string
	backend    string
	logLevel   string
	dataDir    string
}

func newRootCommand() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "procflow",
		Short:         "Durable document analysis with human review",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "configuration file (default ./procflow.yaml)")
	pf.StringVar(&flags.tenant, "tenant", "", "tenant to act for")
	pf.StringVar(&flags.backend, "backend", "", "instance store: memory, sqlite, mysql, postgres or redis")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&flags.dataDir, "data-dir", "", "directory for files and documents")

	// withApp loads the configuration, builds the app and closes it after run.
	withApp := func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			return run(cmd, a, args)
		}
	}

	root.AddCommand(
		newUploadCommand(withApp),
		newAnalyzeCommand(withApp),
		newReviewCommand(withApp),
		newResumeCommand(withApp),
		newShowCommand(withApp),
		newDocumentCommand(withApp),
		newListCommand(withApp),
		newAuditCommand(withApp),
	)

	return root
}

type runWithApp func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error

func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, err
	}

	pf := cmd.Flags()
	if pf.Changed("tenant") {
		cfg.Tenant = flags.tenant
	}
	if pf.Changed("backend") {
		cfg.Backend.Type = flags.backend
	}
	if pf.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if pf.Changed("data-dir") {
		cfg.DataDir = flags.dataDir
	}

	return cfg, cfg.Validate()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func newUploadCommand(withApp runWithApp) *cobra.Command {
	var extraction string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Store a file and create a document for it",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := a.tenantContext(cmd.Context())

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			contentType := mime.TypeByExtension(filepath.Ext(args[0]))
			if contentType == "" {
				contentType = "application/octet-stream"
			}

			doc, err := a.store.Import(ctx, a.cfg.Tenant, args[0], contentType, data)
			if err != nil {
				return err
			}

			if extraction != "" {
				raw, err := os.ReadFile(extraction)
				if err != nil {
					return err
				}

				var result docanalysis.ExtractedData
				if err := json.Unmarshal(raw, &result); err != nil {
					return fmt.Errorf("decoding %s: %w", extraction, err)
				}

				if err := sidecar.Store(ctx, a.store, doc.ID, &result); err != nil {
					return err
				}
			}

			return printJSON(cmd, doc)
		}),
	}

	cmd.Flags().StringVar(&extraction, "extraction", "", "JSON extraction result used when the file has no embedded invoice data")

	return cmd
}

func newAnalyzeCommand(withApp runWithApp) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <document-id>",
		Short: "Start the analysis of a document",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			instance, err := docanalysis.Analyze(a.tenantContext(cmd.Context()), a.engine, a.store, a.definition, args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd, instance)
		}),
	}
}

func newReviewCommand(withApp runWithApp) *cobra.Command {
	var (
		confirmed bool
		action    string
		actor     string
		fields    map[string]string
	)

	cmd := &cobra.Command{
		Use:   "review <document-id>",
		Short: "Complete the review of an analyzed document",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := a.tenantContext(cmd.Context())

			doc, err := a.store.Get(ctx, a.cfg.Tenant, args[0])
			if err != nil {
				return err
			}

			if doc.ProcessInstanceID == "" {
				return fmt.Errorf("document %s has no analysis to review", doc.ID)
			}

			input := step.Input{
				"confirmed":  confirmed,
				"documentId": doc.ID,
			}
			if action != "" {
				input["action"] = action
			}
			for k, v := range fields {
				input[k] = v
			}

			instance, err := a.engine.CompleteUserStep(ctx, doc.ProcessInstanceID, input, actor)
			if err != nil {
				return err
			}

			return printJSON(cmd, instance)
		}),
	}

	f := cmd.Flags()
	f.BoolVar(&confirmed, "confirmed", false, "accept the extracted values")
	f.StringVar(&action, "action", "", "confirm, reanalyze or manual (default from --confirmed)")
	f.StringVar(&actor, "actor", "cli", "who completes the review")
	f.StringToStringVar(&fields, "set", nil, "corrected field values, e.g. --set total=42.50,currency=EUR")

	return cmd
}

func newResumeCommand(withApp runWithApp) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <instance-id>",
		Short: "Continue an instance interrupted while running",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			instance, err := a.engine.Resume(a.tenantContext(cmd.Context()), args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd, instance)
		}),
	}
}

func newShowCommand(withApp runWithApp) *cobra.Command {
	return &cobra.Command{
		Use:   "show <instance-id>",
		Short: "Print an instance",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			instance, err := a.engine.GetInstance(a.tenantContext(cmd.Context()), args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd, instance)
		}),
	}
}

func newDocumentCommand(withApp runWithApp) *cobra.Command {
	return &cobra.Command{
		Use:   "document [document-id]",
		Short: "Print a document, or all documents of the tenant",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := a.tenantContext(cmd.Context())

			if len(args) == 0 {
				docs, err := a.store.List(ctx, a.cfg.Tenant)
				if err != nil {
					return err
				}

				return printJSON(cmd, docs)
			}

			doc, err := a.store.Get(ctx, a.cfg.Tenant, args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd, doc)
		}),
	}
}

func newListCommand(withApp runWithApp) *cobra.Command {
	var (
		status      string
		processName string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List instances, newest first",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			var opts []backend.ListOption
			if status != "" {
				s := core.Status(status)
				if !s.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
				opts = append(opts, backend.WithStatus(s))
			}
			if processName != "" {
				opts = append(opts, backend.WithProcessName(processName))
			}
			if limit > 0 {
				opts = append(opts, backend.WithLimit(limit))
			}

			instances, err := a.engine.ListInstances(a.tenantContext(cmd.Context()), opts...)
			if err != nil {
				return err
			}

			return printJSON(cmd, instances)
		}),
	}

	f := cmd.Flags()
	f.StringVar(&status, "status", "", "only instances with this status")
	f.StringVar(&processName, "process", "", "only instances of this process")
	f.IntVar(&limit, "limit", 20, "maximum number of instances, 0 for all")

	return cmd
}

func newAuditCommand(withApp runWithApp) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <instance-id>",
		Short: "Print the audit trail of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			entries, err := a.engine.AuditTrail(a.tenantContext(cmd.Context()), args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd, entries)
		}),
	}
}
