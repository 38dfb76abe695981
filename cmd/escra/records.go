package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"escra/internal/app"
	"escra/internal/config"
	"escra/internal/domain"
	"escra/internal/engine"
	"escra/internal/feed"
	"escra/internal/projection"
	"escra/internal/views"
	escrasdk "escra/sdk/go"
)

// listFlags are the filter and sort flags shared by every list command.
type listFlags struct {
	views.Params
	remote string
	token  string
}

func (f *listFlags) bind(cmd *cobra.Command, remote bool) {
	cmd.Flags().StringVarP(&f.Search, "search", "q", "", "case-insensitive search term")
	cmd.Flags().StringSliceVar(&f.Statuses, "status", nil, "status filter (repeatable, All for every status)")
	cmd.Flags().StringSliceVar(&f.Assignees, "assignee", nil, "assignee filter (repeatable, __ME__ for the current user)")
	cmd.Flags().StringSliceVar(&f.Contracts, "contract", nil, "contract id filter (repeatable)")
	cmd.Flags().StringVar(&f.Sender, "sender", "", "sender relation: anyone, me or to_me")
	cmd.Flags().StringVar(&f.Tab, "tab", "", "tab scope from escra.yml")
	cmd.Flags().StringVar(&f.Sort, "sort", "", "sort key, prefix - for descending")
	cmd.Flags().StringVar(&f.Dir, "dir", "", "sort direction: asc or desc")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "page size (0 for all)")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "records to skip")
	if remote {
		cmd.Flags().StringVar(&f.remote, "remote", "", "list from an Escra API at this URL instead of the local workspace")
		cmd.Flags().StringVar(&f.token, "token", "", "bearer token for --remote (default ESCRA_TOKEN)")
	}
}

// remoteFeed loads a snapshot from the API named by --remote.
func (f *listFlags) remoteFeed(ctx context.Context) (*feed.Feed, *config.Config, error) {
	cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
	if err != nil {
		return nil, nil, err
	}
	if user := viper.GetString("user"); user != "" {
		cfg.User.Name = user
	}
	client := escrasdk.New(f.remote)
	client.BearerToken = f.token
	if client.BearerToken == "" {
		client.BearerToken = viper.GetString("token")
	}
	if client.BearerToken == "" {
		client.UserName = cfg.User.Name
		client.UserRole = cfg.User.Role
	}
	fd := feed.New(client, logger)
	if err := fd.Refresh(ctx); err != nil {
		return nil, nil, err
	}
	return fd, cfg, nil
}

func printFooter(shown, total int) {
	if !viper.GetBool("json") {
		fmt.Fprintf(stdout, "%d of %d\n", shown, total)
	}
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("$%.2f", *v)
}

// --- contracts ---

func contractCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "contract", Short: "Manage escrow contracts"}
	cmd.AddCommand(contractListCmd())
	cmd.AddCommand(contractCreateCmd())
	cmd.AddCommand(contractShowCmd())
	cmd.AddCommand(contractDeleteCmd())
	cmd.AddCommand(contractAdvanceCmd())
	cmd.AddCommand(contractUpdateCmd())
	cmd.AddCommand(contractTaskCmd())
	cmd.AddCommand(contractCommentCmd())
	cmd.AddCommand(contractCommentsCmd())
	cmd.AddCommand(contractActivityCmd())
	return cmd
}

func contractListCmd() *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.remote != "" {
				fd, cfg, err := f.remoteFeed(cmd.Context())
				if err != nil {
					return err
				}
				q, err := f.Query(cfg.Views.Contracts.Tabs, cfg.User.Name)
				if err != nil {
					return err
				}
				res, err := fd.Contracts(q)
				if err != nil {
					return err
				}
				return printContracts(res)
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				q, err := f.Query(rt.Config.Views.Contracts.Tabs, caller.ID)
				if err != nil {
					return err
				}
				res, err := rt.Engine.ListContracts(ctx, q, caller)
				if err != nil {
					return err
				}
				return printContracts(res)
			})
		},
	}
	f.bind(cmd, true)
	return cmd
}

func printContracts(res projection.Result[domain.Contract]) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"contracts": res.Items, "total": res.Total})
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Title", "Type", "Status", "Parties", "Assignee", "Value", "Updated"})
	for _, c := range res.Items {
		tw.AppendRow(table.Row{c.ID, c.Title, c.Type, c.Status, strings.Join(c.PartyNames(), " & "), c.Assignee, formatValue(c.Value), c.UpdatedAt})
	}
	tw.Render()
	printFooter(len(res.Items), res.Total)
	return nil
}

// parseParty reads "Name[:Role[:email]]".
func parseParty(s string) (domain.Party, error) {
	parts := strings.SplitN(s, ":", 3)
	p := domain.Party{Name: strings.TrimSpace(parts[0])}
	if p.Name == "" {
		return p, fmt.Errorf("party %q needs a name", s)
	}
	if len(parts) > 1 {
		p.Role = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		p.Email = strings.TrimSpace(parts[2])
	}
	return p, nil
}

func contractCreateCmd() *cobra.Command {
	var opts engine.ContractCreateOptions
	var parties []string
	var value string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range parties {
				p, err := parseParty(raw)
				if err != nil {
					return err
				}
				opts.Parties = append(opts.Parties, p)
			}
			if value != "" {
				v := projection.ParseAmount(value)
				opts.Value = &v
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				opts.Actor = caller
				c, err := rt.Engine.CreateContract(ctx, opts)
				if err != nil {
					return err
				}
				return printDetail(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "explicit numeric id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "contract title")
	cmd.Flags().StringVar(&opts.Type, "type", "", "contract type")
	cmd.Flags().StringArrayVar(&parties, "party", nil, "party as Name[:Role[:email]] (repeatable)")
	cmd.Flags().StringVar(&opts.Assignee, "assignee", "", "assignee (default current user)")
	cmd.Flags().StringVar(&value, "value", "", "contract value, e.g. $680,000")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.EffectiveDate, "effective-date", "", "effective date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&opts.SharedWith, "share", nil, "user who may also see the contract (repeatable)")
	return cmd
}

func contractShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				c, err := rt.Engine.GetContract(ctx, args[0], caller)
				if err != nil {
					return fmt.Errorf("contract %s: %w", args[0], err)
				}
				return printDetail(c)
			})
		},
	}
}

func contractDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				if err := rt.Engine.DeleteContract(ctx, args[0], caller); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Deleted contract %s\n", args[0])
				return nil
			})
		},
	}
}

func contractAdvanceCmd() *cobra.Command {
	var to string
	var force bool
	cmd := &cobra.Command{
		Use:   "advance <id>",
		Short: "Move a contract to its next stage",
		Long:  "Moves the contract one stage forward, or to --to. Jumps and moves backwards need --force.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				c, err := rt.Engine.AdvanceContract(ctx, args[0], to, force, caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Fprintf(stdout, "Contract %s is now %s\n", c.ID, c.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target stage")
	cmd.Flags().BoolVar(&force, "force", false, "allow jumps and moves backwards")
	return cmd
}

func contractUpdateCmd() *cobra.Command {
	var title, typ, assignee, value, description, effective string
	var parties, share []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change contract fields",
		Long:  "Changes only the fields whose flags are given. --share replaces the list of users the contract is shared with.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p engine.ContractPatch
			flags := cmd.Flags()
			for name, dst := range map[string]**string{
				"title": &p.Title, "type": &p.Type, "assignee": &p.Assignee,
				"description": &p.Description, "effective-date": &p.EffectiveDate,
			} {
				if flags.Changed(name) {
					v, _ := flags.GetString(name)
					*dst = &v
				}
			}
			if flags.Changed("value") {
				v := projection.ParseAmount(value)
				p.Value = &v
			}
			if flags.Changed("party") {
				list := []domain.Party{}
				for _, raw := range parties {
					party, err := parseParty(raw)
					if err != nil {
						return err
					}
					list = append(list, party)
				}
				p.Parties = &list
			}
			if flags.Changed("share") {
				p.SharedWith = &share
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				caller, err := rt.Caller()
				if err != nil {
					return err
				}
				c, err := rt.Engine.UpdateContract(ctx, args[0], p, caller)
				if err != nil {
					return err
				}
				return printDetail(c)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "contract title")
	cmd.Flags().StringVar(&typ, "type", "", "contract type")
	cmd.Flags().StringArrayVar(&parties, "party", nil, "party as Name[:Role[:email]] (repeatable, replaces all parties)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee")
	cmd.Flags().StringVar(&value, "value", "", "contract value, e.g. $680,000")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&effective, "effective-date", "", "effective date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&share, "share", nil, "users who may see the contract (repeatable)")
	return cmd
}

// --- signature requests ---

func signatureCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "signature", Aliases: []string{"sig"}, Short: "Manage signature requests"}
	cmd.AddCommand(signatureListCmd())
	cmd.AddCommand(signatureCreateCmd())
	cmd.AddCommand(signatureShowCmd())
	cmd.AddCommand(signatureVoidCmd())
	cmd.AddCommand(signatureRespondCmd("sign", "Record a recipient signature", engine.Engine.SignRecipient))
	cmd.AddCommand(signatureRespondCmd("decline", "Record a recipient declining", engine.Engine.DeclineRecipient))
	cmd.AddCommand(signatureDeleteCmd())
	return cmd
}

func signatureListCmd() *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List signature requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.remote != "" {
				fd, cfg, err := f.remoteFeed(cmd.Context())
				if err != nil {
					return err
				}
				q, err := f.Query(cfg.Views.Signatures.Tabs, cfg.User.Name)
				if err != nil {
					return err
				}
				res, err := fd.Signatures(q)
				if err != nil {
					return err
				}
				return printSignatures(res)
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				q, err := f.Query(rt.Config.Views.Signatures.Tabs, rt.Engine.CurrentUser())
				if err != nil {
					return err
				}
				res, err := rt.Engine.ListSignatures(ctx, q)
				if err != nil {
					return err
				}
				return printSignatures(res)
			})
		},
	}
	f.bind(cmd, true)
	return cmd
}

func printSignatures(res projection.Result[domain.SignatureRequest]) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"signatures": res.Items, "total": res.Total})
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Document", "Parties", "Status", "Signatures", "Contract ID", "Contract", "Assignee", "Sent", "Due"})
	for _, s := range res.Items {
		tw.AppendRow(table.Row{s.ID, s.Document, strings.Join(s.Parties, ", "), s.Status, s.Signatures, s.ContractID, s.Contract, s.Assignee, s.DateSent, s.DueDate})
	}
	tw.Render()
	printFooter(len(res.Items), res.Total)
	return nil
}

// parseRecipient reads "Name <email>" or a bare email.
func parseRecipient(s string) domain.Recipient {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "<"); i >= 0 && strings.HasSuffix(s, ">") {
		return domain.Recipient{Name: strings.TrimSpace(s[:i]), Email: s[i+1 : len(s)-1]}
	}
	return domain.Recipient{Email: s}
}

func signatureCreateCmd() *cobra.Command {
	var opts engine.SignatureCreateOptions
	var recipients []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Send a document for signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range recipients {
				opts.Recipients = append(opts.Recipients, parseRecipient(raw))
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				actor, err := rt.Actor()
				if err != nil {
					return err
				}
				opts.ActorID = actor
				s, err := rt.Engine.CreateSignature(ctx, opts)
				if err != nil {
					return err
				}
				return printDetail(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "explicit numeric id")
	cmd.Flags().StringVar(&opts.ContractID, "contract", "", "contract id")
	cmd.Flags().StringVar(&opts.Document, "document", "", "document name")
	cmd.Flags().StringVar(&opts.DocumentID, "document-id", "", "id of an uploaded document")
	cmd.Flags().StringArrayVar(&recipients, "recipient", nil, `recipient as "Name <email>" (repeatable)`)
	cmd.Flags().StringArrayVar(&opts.Parties, "party", nil, "party name (repeatable, default recipient names)")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "email subject")
	cmd.Flags().StringVar(&opts.Message, "message", "", "email message")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "signing provider: escra or docusign")
	cmd.Flags().StringVar(&opts.Assignee, "assignee", "", "assignee (default current user)")
	return cmd
}

func signatureShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a signature request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				s, err := rt.Engine.Repo.GetSignature(ctx, args[0])
				if err != nil {
					return fmt.Errorf("signature request %s: %w", args[0], err)
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				if err := printDetail(s); err != nil {
					return err
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Recipient", "Email", "Status", "Signed"})
				for _, r := range s.Recipients {
					tw.AppendRow(table.Row{r.Name, r.Email, r.Status, r.SignedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func signatureVoidCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "void <id>",
		Short: "Void a pending signature request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				actor, err := rt.Actor()
				if err != nil {
					return err
				}
				s, err := rt.Engine.VoidSignature(ctx, args[0], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Fprintf(stdout, "Signature request %s is now %s\n", s.ID, s.Status)
				return nil
			})
		},
	}
}

type respondFunc func(engine.Engine, context.Context, string, string, string) (domain.SignatureRequest, error)

func signatureRespondCmd(use, short string, respond respondFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id> <email>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				actor, err := rt.Actor()
				if err != nil {
					return err
				}
				s, err := respond(rt.Engine, ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Fprintf(stdout, "Signature request %s: %s (%s)\n", s.ID, s.Status, s.Signatures)
				return nil
			})
		},
	}
}

func signatureDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a signature request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				actor, err := rt.Actor()
				if err != nil {
					return err
				}
				if err := rt.Engine.DeleteSignature(ctx, args[0], actor); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Deleted signature request %s\n", args[0])
				return nil
			})
		},
	}
}

// --- documents ---

func documentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "document", Aliases: []string{"doc"}, Short: "Manage contract documents"}
	cmd.AddCommand(documentListCmd())
	cmd.AddCommand(documentAddCmd())
	cmd.AddCommand(documentDeleteCmd())
	return cmd
}

func documentListCmd() *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				q, err := f.Query(rt.Config.Views.Documents.Tabs, rt.Engine.CurrentUser())
				if err != nil {
					return err
				}
				res, err := rt.Engine.ListDocuments(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"documents": res.Items, "total": res.Total})
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Status", "Contract ID", "Uploaded By", "Size", "Uploaded"})
				for _, d := range res.Items {
					tw.AppendRow(table.Row{d.ID, d.Name, d.Type, d.Status, d.ContractID, d.UploadedBy, d.Size, d.CreatedAt})
				}
				tw.Render()
				printFooter(len(res.Items), res.Total)
				return nil
			})
		},
	}
	f.bind(cmd, false)
	return cmd
}

func documentAddCmd() *cobra.Command {
	var opts engine.DocumentCreateOptions
	var file string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a document on a contract",
		Long:  "Registers document metadata. With --file the name, size and MIME type are taken from the file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				info, err := os.Stat(file)
				if err != nil {
					return err
				}
				if opts.Name == "" {
					opts.Name = filepath.Base(file)
				}
				opts.Size = info.Size()
				if opts.MimeType == "" {
					opts.MimeType = mime.TypeByExtension(filepath.Ext(file))
				}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				actor, err := rt.Actor()
				if err != nil {
					return err
				}
				opts.ActorID = actor
				d, err := rt.Engine.AddDocument(ctx, opts)
				if err != nil {
					return err
				}
				return printDetail(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ContractID, "contract", "", "contract id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "document name")
	cmd.Flags().StringVar(&opts.Type, "type", "", "document type (default from the file extension)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Draft, Active, Archived or Voided")
	cmd.Flags().Int64Var(&opts.Size, "size", 0, "size in bytes")
	cmd.Flags().StringVar(&opts.MimeType, "mime-type", "", "MIME type")
	cmd.Flags().StringVar(&file, "file", "", "read name, size and MIME type from a local file")
	return cmd
}

func documentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				actor, err := rt.Actor()
				if err != nil {
					return err
				}
				if err := rt.Engine.DeleteDocument(ctx, args[0], actor); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Deleted document %s\n", args[0])
				return nil
			})
		},
	}
}
