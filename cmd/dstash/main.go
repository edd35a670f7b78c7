package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dstash/internal/app"
	"dstash/internal/config"
	"dstash/internal/model"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the environment defaults.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer
// a.Close(). operation identifies the CLI command being run.
func newApp(ctx context.Context, operation string) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a numeric id", s)
	}
	return id, nil
}

var rootCmd = &cobra.Command{
	Use:   "dstash",
	Short: "Durable stash of file trees across inline, pile and remote storage",
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a fresh config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return err
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Database:  %s (%s)\n", cfg.Database.Type, cfg.Database.Path)
		fmt.Printf("Log Dir:   %s\n", cfg.Log.Dir)
		fmt.Printf("Transfer:  %s\n", cfg.Transfer.Type)
		fmt.Printf("Pile keys: %s\n", cfg.Pile.RecipientPath)
		fmt.Printf("Placement: %d rule(s)\n", len(cfg.Placement.Rules))
		return nil
	},
}

// db command

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the schema to the latest version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := app.MigrateDB(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Schema at version %d\n", st.Version)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := app.DBStatus(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Schema current at version %d\n", st.Version)
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Copy the database to PATH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.BackupDB(cfg, args[0]); err != nil {
			return err
		}
		fmt.Printf("Database backed up to %s\n", args[0])
		return nil
	},
}

// dir command

var dirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Manage directories",
}

var dirCreateCmd = &cobra.Command{
	Use:   "create PATH",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Mkdir")
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Mkdir(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created directory %s (id %d)\n", args[0], d.ID)
		return nil
	},
}

// tree commands

var lsCmd = &cobra.Command{
	Use:   "ls [PATH]",
	Short: "List a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := "/"
		if len(args) > 0 {
			target = args[0]
		}

		a, err := newApp(cmd.Context(), "Ls")
		if err != nil {
			return err
		}
		defer a.Close()

		dirents, err := a.Ls(cmd.Context(), target)
		if err != nil {
			return err
		}
		for _, d := range dirents {
			fmt.Printf("%-7s %7d  %s\n", d.Child.Kind, d.Child.ID, d.Basename)
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info PATH",
	Short: "Inspect the entity at PATH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Info")
		if err != nil {
			return err
		}
		defer a.Close()

		ni, err := a.Info(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s #%d\n", ni.Ref.Kind, ni.Ref.ID)
		switch {
		case ni.Dir != nil:
			fmt.Printf("  mtime:   %s\n", ni.Dir.Mtime.Format(time.RFC3339))
			fmt.Printf("  dirents: %d\n", ni.Dir.DirentCount)
			fmt.Printf("  born:    %s on %s\n", ni.Dir.Birth.Time.Format(time.RFC3339), ni.Dir.Birth.Hostname)
		case ni.File != nil:
			fmt.Printf("  size:    %d\n", ni.File.Size)
			fmt.Printf("  mtime:   %s\n", ni.File.Mtime.Format(time.RFC3339))
			fmt.Printf("  exec:    %v\n", ni.File.Executable)
			if len(ni.File.B3Sum) > 0 {
				fmt.Printf("  blake3:  %x\n", ni.File.B3Sum)
			}
			fmt.Printf("  born:    %s on %s\n", ni.File.Birth.Time.Format(time.RFC3339), ni.File.Birth.Hostname)
			for _, b := range ni.Bindings {
				fmt.Printf("  copy:    %-7s %s\n", b.Domain, b.Locator)
			}
		case ni.Symlink != nil:
			fmt.Printf("  target:  %s\n", ni.Symlink.Target)
		}
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm PATH",
	Short: "Unlink the dirent at PATH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Rm")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Rm(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put SRC DEST",
	Short: "Store a local file under a stash path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Put")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.Put(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Stored %s as file %d (%d bytes)\n", args[1], f.ID, f.Size)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get PATH [OUT]",
	Short: "Write a file's content to OUT or stdout",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		unlock, _ := cmd.Flags().GetBool("unlock")

		a, err := newApp(cmd.Context(), "Get")
		if err != nil {
			return err
		}
		defer a.Close()

		if unlock {
			passphrase, err := promptPassphrase("Pile passphrase: ")
			if err != nil {
				return err
			}
			if err := a.Unlock(passphrase); err != nil {
				return err
			}
		}

		var w io.Writer = os.Stdout
		if len(args) > 1 {
			f, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		return a.Get(cmd.Context(), args[0], w)
	},
}

var lnCmd = &cobra.Command{
	Use:   "ln TARGET LINKPATH",
	Short: "Link an existing entity under a second path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Ln")
		if err != nil {
			return err
		}
		defer a.Close()

		ref, err := a.Ln(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Linked %s at %s\n", ref, args[1])
		return nil
	},
}

var symlinkCmd = &cobra.Command{
	Use:   "symlink TARGET PATH",
	Short: "Create a symlink at PATH pointing at TARGET",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Symlink")
		if err != nil {
			return err
		}
		defer a.Close()

		l, err := a.Symlink(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Created symlink %s -> %s (id %d)\n", args[1], args[0], l.ID)
		return nil
	},
}

// blob command

var blobCmd = &cobra.Command{
	Use:   "blob",
	Short: "Manage remote blob records",
}

var blobRegisterCmd = &cobra.Command{
	Use:   "register LOCATOR",
	Short: "Record an already-uploaded remote object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, _ := cmd.Flags().GetInt64("size")
		md5hex, _ := cmd.Flags().GetString("md5")
		crc, _ := cmd.Flags().GetUint32("crc32c")
		credID, _ := cmd.Flags().GetInt64("credential")

		md5sum, err := hex.DecodeString(md5hex)
		if err != nil || len(md5sum) != 16 {
			return fmt.Errorf("--md5 must be 32 hex characters")
		}

		a, err := newApp(cmd.Context(), "RegisterBlob")
		if err != nil {
			return err
		}
		defer a.Close()

		nb := model.NewBlob{Locator: args[0], CredentialID: credID, CRC32C: crc, Size: size}
		copy(nb.MD5[:], md5sum)

		b, err := a.RegisterBlob(cmd.Context(), nb)
		if err != nil {
			return err
		}
		fmt.Printf("Registered blob %s (%d bytes)\n", b.Locator, b.Size)
		return nil
	},
}

var blobDeleteCmd = &cobra.Command{
	Use:   "delete LOCATOR",
	Short: "Remove a blob record no sequence references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DeleteBlob")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteBlob(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted blob %s\n", args[0])
		return nil
	},
}

var blobInfoCmd = &cobra.Command{
	Use:   "info LOCATOR",
	Short: "Show a blob record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "BlobInfo")
		if err != nil {
			return err
		}
		defer a.Close()

		b, seqs, err := a.BlobInfo(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Blob %s\n", b.Locator)
		fmt.Printf("  size:       %d\n", b.Size)
		fmt.Printf("  md5:        %x\n", b.MD5)
		fmt.Printf("  crc32c:     %08x\n", b.CRC32C)
		if b.CredentialID != 0 {
			fmt.Printf("  credential: %d\n", b.CredentialID)
		}
		fmt.Printf("  created:    %s\n", b.CreatedAt.Format(time.RFC3339))
		if b.LastProbed != nil {
			fmt.Printf("  probed:     %s\n", b.LastProbed.Format(time.RFC3339))
		}
		fmt.Printf("  sequences:  %v\n", seqs)
		return nil
	},
}

// seq command

var seqCmd = &cobra.Command{
	Use:   "seq",
	Short: "Manage chunk sequences",
}

var seqCreateCmd = &cobra.Command{
	Use:   "create LOCATOR...",
	Short: "Record an ordered chunk list as one remote copy",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cipherName, _ := cmd.Flags().GetString("cipher")
		keyHex, _ := cmd.Flags().GetString("key")

		cipher, err := model.ParseCipher(cipherName)
		if err != nil {
			return err
		}
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return fmt.Errorf("--key must be hex: %w", err)
		}

		a, err := newApp(cmd.Context(), "CreateSequence")
		if err != nil {
			return err
		}
		defer a.Close()

		seq, err := a.CreateSequence(cmd.Context(), cipher, key, args)
		if err != nil {
			return err
		}
		fmt.Printf("Created sequence %d with %d chunk(s)\n", seq.ID, len(seq.Locators))
		return nil
	},
}

var seqDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a sequence no binding references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "DeleteSequence")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteSequence(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Deleted sequence %d\n", id)
		return nil
	},
}

var seqInfoCmd = &cobra.Command{
	Use:   "info ID",
	Short: "Show a sequence with its chunk locators",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "SequenceInfo")
		if err != nil {
			return err
		}
		defer a.Close()

		seq, err := a.SequenceInfo(cmd.Context(), id)
		if err != nil {
			return err
		}

		fmt.Printf("Sequence %d\n", seq.ID)
		fmt.Printf("  cipher:  %s\n", seq.Cipher)
		fmt.Printf("  created: %s\n", seq.CreatedAt.Format(time.RFC3339))
		for i, locator := range seq.Locators {
			fmt.Printf("  chunk %d: %s\n", i, locator)
		}
		return nil
	},
}

// cred command

var credCmd = &cobra.Command{
	Use:   "cred",
	Short: "Manage remote credentials",
}

var credAddCmd = &cobra.Command{
	Use:   "add POOL OWNER",
	Short: "Register an account under a pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "AddCredential")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.AddCredential(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Added credential %d (%s/%s)\n", c.ID, c.Pool, c.Owner)
		return nil
	},
}

var credListCmd = &cobra.Command{
	Use:   "list POOL",
	Short: "List the accounts in a pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Credentials")
		if err != nil {
			return err
		}
		defer a.Close()

		creds, err := a.Credentials(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(creds) == 0 {
			fmt.Printf("No credentials in pool %q.\n", args[0])
			return nil
		}
		for _, c := range creds {
			state := "ok"
			if c.QuotaExhaustedAt != nil {
				state = "exhausted " + c.QuotaExhaustedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("#%d  %-30s  %s\n", c.ID, c.Owner, state)
		}
		return nil
	},
}

var credMarkExhaustedCmd = &cobra.Command{
	Use:   "mark-exhausted ID",
	Short: "Record a quota denial for a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "MarkCredentialExhausted")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.MarkCredentialExhausted(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Marked credential %d exhausted\n", id)
		return nil
	},
}

var credClearCmd = &cobra.Command{
	Use:   "clear ID",
	Short: "Forget a recorded quota denial",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "ClearCredentialExhausted")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ClearCredentialExhausted(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Cleared credential %d\n", id)
		return nil
	},
}

// pile command

var pileCmd = &cobra.Command{
	Use:   "pile",
	Short: "Manage local pile storage",
}

var pileCreateCmd = &cobra.Command{
	Use:   "create ROOT",
	Short: "Register a pile rooted at ROOT on this host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filesPerCell, _ := cmd.Flags().GetInt64("files-per-cell")
		ratio, _ := cmd.Flags().GetFloat64("fullness-check-ratio")

		a, err := newApp(cmd.Context(), "CreatePile")
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.CreatePile(cmd.Context(), args[0], filesPerCell, ratio)
		if err != nil {
			return err
		}
		fmt.Printf("Created pile %d at %s\n", p.ID, p.Root)
		return nil
	},
}

var pileInitKeysCmd = &cobra.Command{
	Use:   "init-keys",
	Short: "Generate the pile key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "InitKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := promptPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.InitKeys(passphrase); err != nil {
			return err
		}
		fmt.Println("Pile keys generated")
		return nil
	},
}

var pileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered piles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Piles")
		if err != nil {
			return err
		}
		defer a.Close()

		piles, err := a.Piles(cmd.Context())
		if err != nil {
			return err
		}
		if len(piles) == 0 {
			fmt.Println("No piles registered.")
			return nil
		}
		for _, p := range piles {
			fmt.Printf("#%d  %-12s  %s  (%d files/cell)\n", p.ID, p.Hostname, p.Root, p.FilesPerCell)
		}
		return nil
	},
}

var pileCellsCmd = &cobra.Command{
	Use:   "cells PILE_ID",
	Short: "List the cells of a pile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "Cells")
		if err != nil {
			return err
		}
		defer a.Close()

		cells, err := a.Cells(cmd.Context(), id)
		if err != nil {
			return err
		}
		if len(cells) == 0 {
			fmt.Printf("Pile %d has no cells yet.\n", id)
			return nil
		}
		for _, c := range cells {
			state := "open"
			if c.Full {
				state = "full"
			}
			fmt.Printf("#%d  %s\n", c.ID, state)
		}
		return nil
	},
}

// history command

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}
		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-16s  %s  %-8s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbBackupCmd)

	dirCmd.AddCommand(dirCreateCmd)

	getCmd.Flags().Bool("unlock", false, "Prompt for the pile passphrase to read pile copies")

	blobRegisterCmd.Flags().Int64("size", 0, "Object size in bytes")
	blobRegisterCmd.Flags().String("md5", "", "MD5 of the object, hex")
	blobRegisterCmd.Flags().Uint32("crc32c", 0, "CRC-32C of the object")
	blobRegisterCmd.Flags().Int64("credential", 0, "Owning credential id")
	blobCmd.AddCommand(blobRegisterCmd)
	blobCmd.AddCommand(blobDeleteCmd)
	blobCmd.AddCommand(blobInfoCmd)

	seqCreateCmd.Flags().String("cipher", string(model.CipherAES128GCM), "Chunk cipher name")
	seqCreateCmd.Flags().String("key", "", "Content key, hex")
	seqCmd.AddCommand(seqCreateCmd)
	seqCmd.AddCommand(seqDeleteCmd)
	seqCmd.AddCommand(seqInfoCmd)

	credCmd.AddCommand(credAddCmd)
	credCmd.AddCommand(credListCmd)
	credCmd.AddCommand(credMarkExhaustedCmd)
	credCmd.AddCommand(credClearCmd)

	pileCreateCmd.Flags().Int64("files-per-cell", 10000, "Objects per cell before it is marked full")
	pileCreateCmd.Flags().Float64("fullness-check-ratio", 0.9, "Fraction of capacity that triggers the on-disk recount, 0 disables")
	pileCmd.AddCommand(pileCreateCmd)
	pileCmd.AddCommand(pileInitKeysCmd)
	pileCmd.AddCommand(pileListCmd)
	pileCmd.AddCommand(pileCellsCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of operations to show")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(dirCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(lnCmd)
	rootCmd.AddCommand(symlinkCmd)
	rootCmd.AddCommand(blobCmd)
	rootCmd.AddCommand(seqCmd)
	rootCmd.AddCommand(credCmd)
	rootCmd.AddCommand(pileCmd)
	rootCmd.AddCommand(historyCmd)
}
