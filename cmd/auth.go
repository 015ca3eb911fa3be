package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/cli"
	"github.com/theirongolddev/sitebook/internal/model"
)

var (
	flagUsername string
	flagPassword string

	flagRegEmail     string
	flagRegFirstName string
	flagRegLastName  string
	flagRegRole      string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and cache the session locally",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the cached session",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE:  runRegister,
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVarP(&flagUsername, "username", "u", "", "Username (prompted when empty)")
		c.Flags().StringVar(&flagPassword, "password", "", "Password (prompted when empty)")
	}
	registerCmd.Flags().StringVar(&flagRegEmail, "email", "", "Email address")
	registerCmd.Flags().StringVar(&flagRegFirstName, "first-name", "", "First name")
	registerCmd.Flags().StringVar(&flagRegLastName, "last-name", "", "Last name")
	registerCmd.Flags().StringVar(&flagRegRole, "role", "", "Role on the project")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, registerCmd)
}

// promptCredentials asks for whatever was not given on the command line.
func promptCredentials(title string) (string, string, error) {
	username, password := flagUsername, flagPassword
	if username != "" && password != "" {
		return username, password, nil
	}

	var fields []huh.Field
	if username == "" {
		fields = append(fields, huh.NewInput().
			Title("Username").
			Value(&username).
			Validate(required("username")))
	}
	if password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password).
			Validate(required("password")))
	}
	form := huh.NewForm(huh.NewGroup(fields...).Title(title))
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(username), password, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

func runLogin(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{Progress: true}, func(ctx context.Context, s *session) error {
		username, password, err := promptCredentials("Sign in to " + s.client.BaseURL())
		if err != nil {
			return err
		}

		res := s.provider.Login(ctx, username, password)
		if !res.Success {
			return fmt.Errorf("login failed: %s", res.Error)
		}

		st := s.provider.Get()
		fmt.Println()
		fmt.Printf("  Signed in as %s\n", st.User.DisplayName())
		if st.LastError != "" {
			fmt.Println("  " + cli.RenderWarning("Dashboard not loaded: "+st.LastError))
		} else if p := st.Snapshot.Project; p != nil {
			fmt.Printf("  Project: %s\n", p.Name)
		}
		return nil
	})
}

func runLogout(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			if errors.Is(err, errNotLoggedIn) {
				fmt.Println("  Not signed in.")
				return nil
			}
			return err
		}
		s.provider.Logout(ctx)
		fmt.Println("  Signed out.")
		return nil
	})
}

func runWhoami(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		if err := s.requireUser(ctx); err != nil {
			return err
		}
		res := s.client.Profile(ctx)
		if !res.Success {
			return explain(errors.New(res.Error))
		}
		printUser(res.User)
		return nil
	})
}

func printUser(u *model.User) {
	pairs := [][2]string{
		{"Name", u.DisplayName()},
		{"Username", u.Username},
	}
	if u.Email != "" {
		pairs = append(pairs, [2]string{"Email", u.Email})
	}
	if u.Role != "" {
		pairs = append(pairs, [2]string{"Role", cli.FormatStatus(u.Role)})
	}
	fmt.Println()
	fmt.Print(cli.RenderKeyValues(pairs))
	fmt.Println()
}

func runRegister(_ *cobra.Command, _ []string) error {
	return withSession(sessionOptions{}, func(ctx context.Context, s *session) error {
		username, password, err := promptCredentials("Create an account")
		if err != nil {
			return err
		}
		res := s.client.Register(ctx, api.RegisterRequest{
			Username:  username,
			Email:     flagRegEmail,
			Password:  password,
			Password2: password,
			FirstName: flagRegFirstName,
			LastName:  flagRegLastName,
			Role:      flagRegRole,
		})
		if !res.Success {
			return fmt.Errorf("registration failed: %s", res.Error)
		}
		fmt.Fprintf(os.Stdout, "  Account %s created. Sign in with `sitebook login -u %s`.\n", username, username)
		return nil
	})
}
