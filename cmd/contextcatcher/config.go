package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/nhle/contextcatcher/internal/credential"
	"github.com/nhle/contextcatcher/internal/model"
)

// secretKeys maps the names accepted by set-secret and delete-secret to
// keyring keys.
var secretKeys = map[string]string{
	"email-password":            credential.KeyEmailPassword,
	credential.KeyEmailPassword: credential.KeyEmailPassword,
	"llm-api-key":               credential.KeyLLMAPIKey,
	credential.KeyLLMAPIKey:     credential.KeyLLMAPIKey,
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd(flags))
	cmd.AddCommand(newConfigInitCmd(flags))
	cmd.AddCommand(newConfigSetSecretCmd())
	cmd.AddCommand(newConfigDeleteSecretCmd())
	return cmd
}

// promptSecret asks for a secret on the terminal without echoing it.
var promptSecret = func(title string) (string, error) {
	var value string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				EchoMode(huh.EchoModePassword).
				Value(&value).
				Validate(validateRequired("Value")),
		),
	).Run()
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return value, nil
}

// isTerminal reports whether r is an interactive terminal.
var isTerminal = func(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readSecret prompts on a terminal and otherwise reads the first line of
// the command's input.
func readSecret(cmd *cobra.Command, key string) (string, error) {
	in := cmd.InOrStdin()
	if isTerminal(in) {
		return promptSecret("Value for " + key)
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no secret value provided")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func secretKey(name string) (string, error) {
	key, ok := secretKeys[name]
	if !ok {
		return "", fmt.Errorf("unknown secret %q (want email-password or llm-api-key)", name)
	}
	return key, nil
}

func newConfigShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), flags.logLevel)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(flags, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", flags.configPath)
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg.Masked()); err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			return enc.Close()
		},
	}
}

func newConfigInitCmd(flags *globalFlags) *cobra.Command {
	var force, interactive bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file populated with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(flags.configPath); err == nil && !force {
				return fmt.Errorf("config %s already exists (use --force to overwrite)", flags.configPath)
			}

			// A missing file yields defaults plus any environment overrides.
			cfg, err := model.LoadConfig(flags.configPath)
			if err != nil {
				return err
			}

			if interactive {
				if err := runInitForm(cfg); err != nil {
					return err
				}
			}

			// Secrets belong in the keyring, not the file.
			cfg.Email.Password = ""
			cfg.LLM.APIKey = ""

			if err := model.SaveConfig(flags.configPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", flags.configPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "fill in the mailbox settings with a form")
	return cmd
}

// runInitForm edits the mailbox settings of cfg in place.
var runInitForm = func(cfg *model.AppConfig) error {
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP host").
				Placeholder("imap.gmail.com").
				Value(&cfg.Email.Host).
				Validate(validateRequired("Host")),
			huh.NewInput().
				Title("Username").
				Description("Usually your full email address").
				Value(&cfg.Email.Username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Mailbox").
				Value(&cfg.Email.Mailbox).
				Validate(validateRequired("Mailbox")),
			huh.NewConfirm().
				Title("Use TLS?").
				Value(&cfg.Email.UseSSL),
		),
	).Run()
	if err != nil {
		return fmt.Errorf("config form: %w", err)
	}
	return nil
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func newConfigSetSecretCmd() *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set-secret <email-password|llm-api-key>",
		Short: "Store a secret in the system keyring",
		Long:  "Stores the mailbox password or LLM API key in the system keyring. The value is read from --value or, when omitted, from a hidden prompt on a terminal or the first line of piped stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secretKey(args[0])
			if err != nil {
				return err
			}

			if value == "" {
				if value, err = readSecret(cmd, key); err != nil {
					return err
				}
			}
			if value == "" {
				return errors.New("no secret value provided")
			}

			ring, err := openKeyring()
			if err != nil {
				return err
			}
			if err := credential.Set(ring, key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in keyring\n", key)
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "secret value (prompted for or read from stdin when omitted)")
	return cmd
}

func newConfigDeleteSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-secret <email-password|llm-api-key>",
		Short: "Remove a secret from the system keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := secretKey(args[0])
			if err != nil {
				return err
			}

			ring, err := openKeyring()
			if err != nil {
				return err
			}
			if err := credential.Delete(ring, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s from keyring\n", key)
			return nil
		},
	}
}
