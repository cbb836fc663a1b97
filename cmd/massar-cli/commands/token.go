package commands

import (
	"fmt"

	"massar-backend/internal/components/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generates an access token for the access_token field of massar-server's config.",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := serviceutil.NewAccessToken()
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}
