package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bryanwahyu/threat-analyzer/internal/application/submission"
)

// readSecret prompts on the terminal without echo, or reads one line from a
// piped stdin.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", errors.Wrap(err, "read password")
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, "read password")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCommand(e *env) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and switch to your analysis history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readSecret(cmd, "Mot de passe: ")
				if err != nil {
					return err
				}
				password = p
			}
			f := submission.LoginForm{Email: email, Password: password}
			if err := submission.Validate(&f); err != nil {
				return err
			}

			a, err := e.load(cmd.Context())
			if err != nil {
				return err
			}
			if !a.Session.Login(cmd.Context(), f.Email, f.Password) {
				return errors.New("Email ou mot de passe incorrect")
			}
			u := a.Session.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "Connecté en tant que %s <%s>\n", u.Name, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted when empty)")
	return cmd
}

func newRegisterCommand(e *env) *cobra.Command {
	var form submission.RegisterForm
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if form.Password == "" {
				p, err := readSecret(cmd, "Mot de passe: ")
				if err != nil {
					return err
				}
				form.Password = p
			}
			if form.ConfirmPassword == "" {
				p, err := readSecret(cmd, "Confirmer le mot de passe: ")
				if err != nil {
					return err
				}
				form.ConfirmPassword = p
			}
			if err := submission.ValidateRegistration(form); err != nil {
				return err
			}

			a, err := e.load(cmd.Context())
			if err != nil {
				return err
			}
			if !a.Session.Register(cmd.Context(), strings.TrimSpace(form.Email), form.Password, strings.TrimSpace(form.Name)) {
				return errors.New("Erreur lors de l'inscription")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Compte créé, connecté en tant que %s\n", a.Session.Current().Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&form.Name, "name", "n", "", "Display name")
	cmd.Flags().StringVarP(&form.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "Password, at least 6 characters (prompted when empty)")
	cmd.Flags().StringVar(&form.ConfirmPassword, "confirm", "", "Password confirmation (prompted when empty)")
	return cmd
}

func newLogoutCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.load(cmd.Context())
			if err != nil {
				return err
			}
			a.Session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Déconnecté")
			return nil
		},
	}
}

func newWhoamiCommand(e *env) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.load(cmd.Context())
			if err != nil {
				return err
			}
			u := a.Session.Current()
			if !u.Valid() {
				return errLoginRequired
			}
			if verify {
				remote, err := a.Backend.User(cmd.Context(), u.ID)
				if err != nil {
					return errors.Wrap(err, "verify identity")
				}
				u = &remote
			}

			if e.jsonOutput() {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(u)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (id %s)\n", u.Name, u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "Ask the backend whether the identity still exists")
	return cmd
}
