package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/auth"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
)

// store bundles the repositories the admin commands work against.
type store struct {
	cfg     *config.Config
	db      *database.DB
	users   *auth.SQLiteUserRepository
	devices *device.SQLiteRepository
	access  *auth.SQLiteDeviceAccessRepository
	audit   *audit.SQLiteRepository
}

func openStore(ctx context.Context, configPath string) (*store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &store{
		cfg:     cfg,
		db:      db,
		users:   auth.NewUserRepository(db.DB),
		devices: device.NewSQLiteRepository(db.DB),
		access:  auth.NewDeviceAccessRepository(db.DB),
		audit:   audit.NewSQLiteRepository(db.DB),
	}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

// record appends a CLI audit entry. The change it describes has already
// been committed, so a failure is reported as a warning only.
func (s *store) record(cmd *cobra.Command, e audit.Entry) {
	e.Source = audit.SourceCLI
	if err := s.audit.Create(cmd.Context(), &e); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
}

// withStore opens the store for the duration of fn.
func withStore(cmd *cobra.Command, cfgPath func() string, fn func(*store) error) error {
	s, err := openStore(cmd.Context(), cfgPath())
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck // read-mostly CLI session
	return fn(s)
}

// ─── user ───────────────────────────────────────────────────────────

func newUserCmd(cfgPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var username, password, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := auth.ParseRole(role)
			if err != nil {
				return fmt.Errorf("%w: %q", err, role)
			}
			if password == "" {
				return errors.New("--password is required")
			}
			return withStore(cmd, cfgPath, func(s *store) error {
				hash, err := auth.HashSecret(password)
				if err != nil {
					return fmt.Errorf("hashing password: %w", err)
				}
				user := &auth.User{Username: username, PasswordHash: hash, Role: r, IsActive: true}
				if err := s.users.Create(cmd.Context(), user); err != nil {
					return err
				}
				s.record(cmd, audit.Entry{
					Action:    audit.ActionUserCreate,
					SubjectID: user.ID,
					Details:   map[string]any{"username": user.Username, "role": string(user.Role)},
				})
				fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s, %s)\n", user.Username, user.ID, user.Role)
				return nil
			})
		},
	}
	add.Flags().StringVar(&username, "username", "", "login name")
	add.Flags().StringVar(&password, "password", "", "login password")
	add.Flags().StringVar(&role, "role", string(auth.RoleUser), "user or admin")
	_ = add.MarkFlagRequired("username")

	list := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, cfgPath, func(s *store) error {
				users, err := s.users.List(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tACTIVE")
				for _, u := range users {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", u.ID, u.Username, u.Role, u.IsActive)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

// ─── device ─────────────────────────────────────────────────────────

func newDeviceCmd(cfgPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage device credentials",
	}

	var id, kind, secret, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Provision a device credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := device.ParseKind(kind)
			if err != nil {
				return err
			}
			if err := device.ValidateSecret(secret); err != nil {
				return err
			}
			return withStore(cmd, cfgPath, func(s *store) error {
				hash, err := auth.HashSecret(secret)
				if err != nil {
					return fmt.Errorf("hashing secret: %w", err)
				}
				d := &device.Device{ID: id, Kind: k, Name: name, SecretHash: hash}
				if err := s.devices.Create(cmd.Context(), d); err != nil {
					return err
				}
				s.record(cmd, audit.Entry{
					Action:    audit.ActionDeviceCreate,
					SubjectID: d.ID,
					Details:   map[string]any{"kind": string(d.Kind)},
				})
				fmt.Fprintf(cmd.OutOrStdout(), "provisioned %s %s\n", d.Kind, d.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "device uid")
	add.Flags().StringVar(&kind, "kind", "", "alarmclock or watermixer")
	add.Flags().StringVar(&secret, "secret", "", "shared secret the device presents")
	add.Flags().StringVar(&name, "name", "", "optional display name")
	_ = add.MarkFlagRequired("id")
	_ = add.MarkFlagRequired("kind")
	_ = add.MarkFlagRequired("secret")

	list := &cobra.Command{
		Use:   "list",
		Short: "List provisioned devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, cfgPath, func(s *store) error {
				devices, err := s.devices.List(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tKIND\tNAME")
				for _, d := range devices {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Kind, d.Name)
				}
				return tw.Flush()
			})
		},
	}

	var removeID string
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Delete a device credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, cfgPath, func(s *store) error {
				if err := s.devices.Delete(cmd.Context(), removeID); err != nil {
					return err
				}
				s.record(cmd, audit.Entry{Action: audit.ActionDeviceDelete, SubjectID: removeID})
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", removeID)
				return nil
			})
		},
	}
	remove.Flags().StringVar(&removeID, "id", "", "device uid")
	_ = remove.MarkFlagRequired("id")

	cmd.AddCommand(add, list, remove)
	return cmd
}

// ─── grant / revoke ─────────────────────────────────────────────────

// newGrantCmd builds "grant" when allow is true and "revoke" otherwise.
func newGrantCmd(cfgPath func() string, allow bool) *cobra.Command {
	use, short := "grant", "Allow a user to access a device"
	if !allow {
		use, short = "revoke", "Withdraw a user's access to a device"
	}

	var username, deviceID string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  short + ". Connected clients keep the access set they connected with.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, cfgPath, func(s *store) error {
				ctx := cmd.Context()
				user, err := s.users.GetByUsername(ctx, username)
				if err != nil {
					return fmt.Errorf("%w: %s", err, username)
				}
				if allow {
					if _, err := s.devices.GetByID(ctx, deviceID); err != nil {
						return fmt.Errorf("%w: %s", err, deviceID)
					}
					if err := s.access.Grant(ctx, user.ID, deviceID); err != nil {
						return err
					}
					s.record(cmd, audit.Entry{
						Action:    audit.ActionAccessGrant,
						SubjectID: user.ID,
						Details:   map[string]any{"device_id": deviceID},
					})
					fmt.Fprintf(cmd.OutOrStdout(), "granted %s access to %s\n", user.Username, deviceID)
					return nil
				}
				if err := s.access.Revoke(ctx, user.ID, deviceID); err != nil {
					return err
				}
				s.record(cmd, audit.Entry{
					Action:    audit.ActionAccessRevoke,
					SubjectID: user.ID,
					Details:   map[string]any{"device_id": deviceID},
				})
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s access to %s\n", user.Username, deviceID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "user login name")
	cmd.Flags().StringVar(&deviceID, "device", "", "device uid")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

// ─── token ──────────────────────────────────────────────────────────

func newTokenCmd(cfgPath func() string) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, cfgPath, func(s *store) error {
				svc, err := newAuthService(s.cfg, s.db)
				if err != nil {
					return err
				}
				token, user, err := svc.Login(cmd.Context(), username, password)
				if err != nil {
					if errors.Is(err, auth.ErrInvalidCredentials) {
						s.record(cmd, audit.Entry{Action: audit.ActionLoginFailed, Actor: username})
					}
					return err
				}
				s.record(cmd, audit.Entry{Action: audit.ActionLogin, SubjectID: user.ID, Actor: user.Username})
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "user login name")
	cmd.Flags().StringVar(&password, "password", "", "user password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// ─── audit ──────────────────────────────────────────────────────────

func newAuditCmd(cfgPath func() string) *cobra.Command {
	var action, subject string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent credential changes and login attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, cfgPath, func(s *store) error {
				res, err := s.audit.List(cmd.Context(), audit.Filter{
					Action:    audit.Action(action),
					SubjectID: subject,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tACTION\tSUBJECT\tACTOR\tSOURCE")
				for _, e := range res.Entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.SubjectID, e.Actor, e.Source)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entries\n", len(res.Entries), res.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "only this action, e.g. access.grant")
	cmd.Flags().StringVar(&subject, "subject", "", "only entries about this user or device id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	return cmd
}
