package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// --- history command ---

var (
	historyUser  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent briefs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		user := historyUser
		if user == "" {
			user = viper.GetString("user")
		}

		records, err := db.ListBriefs(cmd.Context(), user, historyLimit)
		if err != nil {
			return fmt.Errorf("listing briefs: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No briefs yet. Create one with: briefgen generate \"your topic\" --user <id>")
			return nil
		}

		for _, r := range records {
			flag := " "
			if r.Partial {
				flag = "~"
			}
			fmt.Printf("%s %s  %s  depth %d  %2d sources  %s\n",
				flag, r.BriefID, r.GeneratedAt.Local().Format("2006-01-02 15:04"), r.Depth, r.SourceCount, r.Topic)
		}

		if user != "" {
			uc, err := db.GetContext(cmd.Context(), user)
			if err == nil && uc != nil && len(uc.KeyThemes) > 0 {
				fmt.Printf("\nRecurring themes for %s: %v\n", user, uc.KeyThemes)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyUser, "user", "u", "", "Only list this user's briefs")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of briefs to list")
}

// --- show command ---

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show [brief-id]",
	Short: "Print a saved brief",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		b, err := db.GetBrief(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("loading brief: %w", err)
		}
		if b == nil {
			return fmt.Errorf("no brief with id %s", args[0])
		}

		out, err := renderBrief(b, showJSON)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the brief as JSON")
}
