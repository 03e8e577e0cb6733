package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyvillage/villagehub/internal/domain/account"
)

var (
	addrNeighborhood string
	addrCity         string
	addrState        string
	addrCountry      string
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage account settings",
}

var accountAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Set your address",
	Args:  cobra.NoArgs,
	RunE:  withSession(runAccountAddress),
}

var accountPasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change your password",
	Long: `Change your password. The current password, the new password and its
confirmation are read from stdin, one per line. The server ends every
session of the account, so you need to log in again afterwards.`,
	Args: cobra.NoArgs,
	RunE: withSession(runAccountPassword),
}

func init() {
	accountAddressCmd.Flags().StringVar(&addrNeighborhood, "neighborhood", "", "neighborhood")
	accountAddressCmd.Flags().StringVar(&addrCity, "city", "", "city")
	accountAddressCmd.Flags().StringVar(&addrState, "state", "", "state")
	accountAddressCmd.Flags().StringVar(&addrCountry, "country", "", "country")
	accountPasswordCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the passwords from stdin without prompts")

	accountCmd.AddCommand(accountAddressCmd, accountPasswordCmd)
	rootCmd.AddCommand(accountCmd)
}

func runAccountAddress(cmd *cobra.Command, a *app, _ []string) error {
	err := a.users.UpdateAddress(cmd.Context(), account.Address{
		Neighborhood: addrNeighborhood,
		City:         addrCity,
		State:        addrState,
		Country:      addrCountry,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Address updated.")
	return nil
}

func runAccountPassword(cmd *cobra.Command, a *app, _ []string) error {
	p := newPrompter(cmd)
	current, err := p.password("Current password: ")
	if err != nil {
		return err
	}
	next, err := p.password("New password: ")
	if err != nil {
		return err
	}
	confirm, err := p.password("Confirm password: ")
	if err != nil {
		return err
	}

	err = a.users.ChangePassword(cmd.Context(), account.PasswordChange{
		CurrentPassword: current,
		NewPassword:     next,
		ConfirmPassword: confirm,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Password changed. Please log in again.")
	return nil
}
