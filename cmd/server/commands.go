package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"idhub/internal/auth/credential"
	"idhub/internal/auth/models"
	userstore "idhub/internal/auth/store/user"
	"idhub/internal/client/registry"
	clientstore "idhub/internal/client/store"
	"idhub/internal/identity"
	"idhub/internal/platform/logger"
	"idhub/pkg/email"
	"idhub/pkg/platform/sentinel"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Storage.AutoMigrate = true
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := db.Applied(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			return nil
		},
	}
}

// newDigestCmd prints the stored form of a secret, for seeding users or
// clients by hand. The secret is read from stdin when no argument is given.
func newDigestCmd() *cobra.Command {
	var algorithm string
	cmd := &cobra.Command{
		Use:   "digest [secret]",
		Short: "Print the credential digest of a secret",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := ""
			if len(args) == 1 {
				secret = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read secret: %w", err)
				}
				secret = strings.TrimRight(line, "\r\n")
			}
			digest, err := credential.New(credential.Algorithm(algorithm)).Digest(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", string(credential.AlgorithmSHA256), "digest algorithm (sha256 or bcrypt)")
	return cmd
}

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage registered OAuth clients",
	}

	var (
		name         string
		clientID     string
		redirectURIs []string
		scopes       []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a client and print its one-time secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			client, err := registry.New(clientstore.NewSQL(db)).Register(cmd.Context(), registry.RegisterRequest{
				Name:          name,
				ClientID:      clientID,
				RedirectURIs:  redirectURIs,
				AllowedScopes: scopes,
				CreatedBy:     "cli",
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"client_id":     client.ClientID,
				"client_secret": client.ClientSecret,
				"redirect_uris": client.RedirectURIs,
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&clientID, "client-id", "", "client id (generated when empty)")
	create.Flags().StringSliceVar(&redirectURIs, "redirect-uri", nil, "allowed redirect URI (repeatable)")
	create.Flags().StringSliceVar(&scopes, "scope", nil, "allowed scope (repeatable, empty allows any)")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("redirect-uri")

	cmd.AddCommand(create)
	return cmd
}

// newUserCmd administers local users. create seeds accounts that
// self-registration cannot, such as the first admin allowed to use password
// login.
func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local users",
	}

	var (
		address  string
		name     string
		role     string
		password string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a password user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !email.Valid(address) {
				return errors.New("--email must be a valid address")
			}
			if !models.Role(role).IsValid() {
				return fmt.Errorf("--role must be user or admin, got %q", role)
			}
			if password == "" {
				password = os.Getenv("IDHUB_USER_PASSWORD")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			digest, err := credential.New(credential.Algorithm(cfg.Auth.PasswordDigest)).Digest(password)
			if err != nil {
				return fmt.Errorf("password: %w", err)
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if name == "" {
				name = models.DefaultName(address)
			}
			now := time.Now().UTC()
			user := &models.User{
				ID:             uuid.NewString(),
				Email:          address,
				Name:           name,
				PasswordDigest: digest,
				Role:           models.Role(role),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := userstore.NewSQL(db).Create(cmd.Context(), user); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), user.ID)
			return nil
		},
	}
	create.Flags().StringVar(&address, "email", "", "email address")
	create.Flags().StringVar(&name, "name", "", "display name (defaults to the email local part)")
	create.Flags().StringVar(&role, "role", string(models.RoleAdmin), "user or admin")
	create.Flags().StringVar(&password, "password", "", "password (or IDHUB_USER_PASSWORD)")
	_ = create.MarkFlagRequired("email")

	cmd.AddCommand(create, newUserAccountsCmd(), newUserUnlinkCmd(), newUserSetRoleCmd())
	return cmd
}

// userAdmin opens the configured database and returns a Linker for
// administrative changes, plus the user owning address.
func userAdmin(cmd *cobra.Command, address string) (*identity.Linker, *models.User, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := openDB(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	users := userstore.NewSQL(db)
	user, err := users.FindByEmail(cmd.Context(), address)
	if err != nil {
		_ = db.Close()
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, nil, fmt.Errorf("no user with email %q", address)
		}
		return nil, nil, nil, err
	}
	linker := identity.New(users, credential.New(credential.Algorithm(cfg.Auth.PasswordDigest)),
		identity.WithTransactor(db),
		identity.WithLogger(logger.New(cfg.LogLevel)),
	)
	return linker, user, func() { _ = db.Close() }, nil
}

func newUserAccountsCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List the external accounts linked to a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			linker, user, done, err := userAdmin(cmd, address)
			if err != nil {
				return err
			}
			defer done()

			accounts, err := linker.Accounts(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			for _, a := range accounts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", a.Provider, a.ProviderAccountID, a.Type)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "email", "", "email address of the user")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newUserUnlinkCmd() *cobra.Command {
	var address, provider, accountID string
	cmd := &cobra.Command{
		Use:   "unlink",
		Short: "Detach an external account from a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			linker, user, done, err := userAdmin(cmd, address)
			if err != nil {
				return err
			}
			defer done()

			if err := linker.Unlink(cmd.Context(), user.ID, provider, accountID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "unlinked", provider, accountID)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "email", "", "email address of the user")
	cmd.Flags().StringVar(&provider, "provider", "", "provider name, as listed by user accounts")
	cmd.Flags().StringVar(&accountID, "account-id", "", "provider account id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("account-id")
	return cmd
}

func newUserSetRoleCmd() *cobra.Command {
	var address, role string
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			linker, user, done, err := userAdmin(cmd, address)
			if err != nil {
				return err
			}
			defer done()

			updated, err := linker.SetRole(cmd.Context(), user.ID, models.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), updated.ID, updated.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "email", "", "email address of the user")
	cmd.Flags().StringVar(&role, "role", "", "user or admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
