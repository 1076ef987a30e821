package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hooplab/hoopcluster/internal/report"
	"github.com/hooplab/hoopcluster/internal/storage"
)

var (
	cPrompt   = color.New(color.FgCyan, color.Bold)
	cMuted    = color.New(color.Faint)
	cError    = color.New(color.FgRed, color.Bold)
	cWarn     = color.New(color.FgYellow)
	cCmd      = color.New(color.FgYellow, color.Bold)
	cGreeting = color.New(color.Bold)
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive REPL session",
	Long:  "Open a persistent session against the database. Type 'help' for available commands.",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func runShell(_ *cobra.Command, _ []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	cGreeting.Println("hoopcluster shell")
	cMuted.Println("type 'help' or 'exit'")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		cPrompt.Print("hoopcluster")
		cMuted.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		tokens := strings.Fields(line)
		cmd, args := tokens[0], tokens[1:]

		switch cmd {
		case "exit", "quit":
			return nil
		case "help":
			shellHelp()
		case "list":
			shellList(db)
		case "show":
			if len(args) == 0 {
				cError.Fprintln(os.Stderr, "usage: show <run> [--players] [--player <id>]")
				continue
			}
			prefix := args[0]
			var players bool
			var focus string
			for i := 1; i < len(args); i++ {
				switch args[i] {
				case "--players":
					players = true
				case "--player":
					if i+1 < len(args) {
						focus = args[i+1]
						i++
					}
				}
			}
			if err := showRun(db, prefix, players, focus, false); err != nil {
				cError.Fprintf(os.Stderr, "error: %v\n", err)
			}
		case "player":
			if len(args) == 0 {
				cError.Fprintln(os.Stderr, "usage: player <player-id> [<player-id>...]")
				continue
			}
			shellPlayer(db, args)
		case "sql":
			if len(args) == 0 {
				cError.Fprintln(os.Stderr, "usage: sql <query>")
				continue
			}
			if err := printSQL(db, strings.Join(args, " ")); err != nil {
				cError.Fprintf(os.Stderr, "error: %v\n", err)
			}
		default:
			cWarn.Fprintf(os.Stderr, "unknown command %q, type 'help'\n", cmd)
		}
	}
	return nil
}

func shellHelp() {
	fmt.Println()
	type entry struct{ cmd, desc string }
	rows := []entry{
		{"list", "list all stored runs"},
		{"show <run>", "show a run's clusters and stability"},
		{"show <run> --players", "same, plus every player's assignment"},
		{"show <run> --player <id>", "same, highlighting one player"},
		{"player <player-id> [...]", "feature profile for one or more players"},
		{"sql <query>", "run a raw SQL query"},
		{"help", "show this message"},
		{"exit / quit", "close the session"},
	}
	for _, r := range rows {
		fmt.Print("  ")
		cCmd.Printf("%-28s", r.cmd)
		fmt.Println(r.desc)
	}
	fmt.Println()
}

func shellList(db *storage.DB) {
	runs, err := db.ListRuns()
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	if len(runs) == 0 {
		cMuted.Println("No runs stored yet.")
		return
	}
	report.PrintRunTable(runs)
}

func shellPlayer(db *storage.DB, ids []string) {
	for _, id := range ids {
		if err := printPlayerProfile(db, id, false); err != nil {
			cError.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}
