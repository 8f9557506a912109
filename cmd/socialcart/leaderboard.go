package main

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-socialcart-backend/internal/services"
)

var leaderboardLimit int

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print users ranked by eco points",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		users, err := services.NewUserService(db).Leaderboard(cmd.Context(), leaderboardLimit)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Rank", "Username", "Name", "Eco points", "Followers"})
		table.SetAutoFormatHeaders(true)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		for i, u := range users {
			table.Append([]string{
				strconv.Itoa(i + 1),
				u.Username,
				u.Name,
				strconv.FormatInt(u.EcoPoints, 10),
				strconv.FormatInt(u.Followers, 10),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	leaderboardCmd.Flags().IntVarP(&leaderboardLimit, "limit", "n", 10, "Number of users to show")
}
