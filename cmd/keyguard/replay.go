package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/RishiKendai/keyguard/internal/models"
	"github.com/RishiKendai/keyguard/internal/replay"
	"github.com/RishiKendai/keyguard/internal/report"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <script.jsonl>",
	Short: "Replay a recorded editing session against the backend",
	Long: `Replay feeds a JSON-lines script of editor steps (type, paste, undo, acknowledge,
continue, reset, language, emit, wait) through the paste classifier and sends the
resulting keystroke reports to the backend, exactly as the embedded editor would.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringP("language", "l", "", "programming language (default $KEYGUARD_LANGUAGE)")
	replayCmd.Flags().Bool("starter", true, "start from the language's starter code")
	replayCmd.Flags().Bool("exit", false, "send the unload exit report when the script ends")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()

	steps, err := replay.Parse(f)
	if err != nil {
		return err
	}

	language, _ := cmd.Flags().GetString("language")
	if language == "" {
		language = clientCfg.Language
	}
	initial := ""
	if useStarter, _ := cmd.Flags().GetBool("starter"); useStarter {
		initial = models.StarterCode(language)
	}

	var mu sync.Mutex
	sent := map[models.Action]int{}
	failed := 0
	dispatcher := report.NewDispatcher(newClient(),
		report.WithDebounce(clientCfg.Debounce),
		report.WithExitTimeout(clientCfg.ExitTimeout),
		report.WithResultHook(func(r report.Report, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				return
			}
			sent[r.Action()]++
		}),
	)

	session := replay.NewSession(initial, dispatcher, language)
	summary := session.Run(steps)
	session.Drain(dispatcher)

	if sendExit, _ := cmd.Flags().GetBool("exit"); sendExit {
		code := session.Buffer.Content()
		if err := dispatcher.Exit(code, session.Router.Language(), clientCfg.Token); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "exit report failed: %v\n", err)
		}
	}

	session.Close()
	dispatcher.Close()

	mu.Lock()
	defer mu.Unlock()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "steps:        %d\n", summary.Steps)
	fmt.Fprintf(out, "changes:      %d (%d marked as paste)\n", summary.Changes, summary.PasteMarked)
	fmt.Fprintf(out, "gate opened:  %d (rejected actions: %d)\n", summary.GateOpened, summary.GateErrors)
	fmt.Fprintf(out, "final state:  %s\n", summary.FinalState)
	fmt.Fprintf(out, "reports sent: typing=%d paste=%d exit=%d failed=%d\n",
		sent[models.ActionTyping], sent[models.ActionPaste], sent[models.ActionExit], failed)
	return nil
}
