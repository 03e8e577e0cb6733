package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyvillage/villagehub/internal/domain/account"
)

var (
	loginUsername string
	logoutAll     bool

	regUsername     string
	regEmail        string
	regNeighborhood string
	regCity         string
	regState        string
	regCountry      string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long: `Log in with a username and password. The password is read from stdin,
either after a prompt or, with --password-stdin, as the first line.

Examples:
  villagehub login -u alice
  echo "$PASSWORD" | villagehub login -u alice --password-stdin`,
	Args: cobra.NoArgs,
	RunE: withApp(runLogin),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the local session",
	Long: `Forget the local session. With --all-devices the server is asked to
revoke every session of the account first; this needs the password.`,
	Args: cobra.NoArgs,
	RunE: withApp(runLogout),
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Create an account. The address fields are optional and can be set
later with "villagehub account address".`,
	Args: cobra.NoArgs,
	RunE: withApp(runRegister),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local session",
	Long: `Show who is logged in and when the access token expires. This is a
local view; the server may still reject a stored token.`,
	Args: cobra.NoArgs,
	RunE: withApp(runStatus),
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username (prompted when omitted)")
	loginCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin without a prompt")

	logoutCmd.Flags().BoolVar(&logoutAll, "all-devices", false, "revoke every session of the account on the server")
	logoutCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin without a prompt")

	registerCmd.Flags().StringVarP(&regUsername, "username", "u", "", "username (prompted when omitted)")
	registerCmd.Flags().StringVar(&regEmail, "email", "", "email address (prompted when omitted)")
	registerCmd.Flags().StringVar(&regNeighborhood, "neighborhood", "", "neighborhood")
	registerCmd.Flags().StringVar(&regCity, "city", "", "city")
	registerCmd.Flags().StringVar(&regState, "state", "", "state")
	registerCmd.Flags().StringVar(&regCountry, "country", "", "country")
	registerCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin without a prompt")

	rootCmd.AddCommand(loginCmd, logoutCmd, registerCmd, statusCmd)
}

func runLogin(cmd *cobra.Command, a *app, _ []string) error {
	p := newPrompter(cmd)
	username, err := p.value(loginUsername, "Username: ")
	if err != nil {
		return err
	}
	password, err := p.password("Password: ")
	if err != nil {
		return err
	}

	u, err := a.auth.Login(cmd.Context(), account.Credentials{Username: username, Password: password})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (id %d).\n", u.Username, u.ID)
	return nil
}

func runLogout(cmd *cobra.Command, a *app, _ []string) error {
	if logoutAll {
		if err := a.requireSession(); err != nil {
			return err
		}
		password, err := newPrompter(cmd).password("Password: ")
		if err != nil {
			return err
		}
		if err := a.auth.LogoutAllDevices(cmd.Context(), password); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out from all devices.")
		return nil
	}

	if err := a.auth.Logout(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func runRegister(cmd *cobra.Command, a *app, _ []string) error {
	p := newPrompter(cmd)
	username, err := p.value(regUsername, "Username: ")
	if err != nil {
		return err
	}
	email, err := p.value(regEmail, "Email: ")
	if err != nil {
		return err
	}
	password, err := p.password("Password: ")
	if err != nil {
		return err
	}

	msg, err := a.auth.Register(cmd.Context(), account.Registration{
		Username:     username,
		Password:     password,
		Email:        email,
		Neighborhood: regNeighborhood,
		City:         regCity,
		State:        regState,
		Country:      regCountry,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runStatus(cmd *cobra.Command, a *app, _ []string) error {
	st := a.auth.Status(time.Now())
	return render(cmd.OutOrStdout(), a.cfg.Output, st, statusTable(st))
}
