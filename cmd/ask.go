package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datachat/internal/engine"
	"github.com/KaramelBytes/datachat/internal/respond"
	"github.com/KaramelBytes/datachat/internal/utils"
)

var askImageDir string

const localUser = "local"

var askCmd = &cobra.Command{
	Use:   "ask <file> <question> [question...]",
	Short: "Load a CSV or XLSX file and ask one or more questions about it",
	Long: `Runs the same turns a chat user would: the file is loaded into a fresh
session and each question is answered in order, so later questions see the
earlier ones in the conversation. Charts are written to --images.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(c)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		a, err := buildApp(c, respond.MarkupPlain, log)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		loaded := a.engine.Handle(ctx, engine.Event{
			UserID:   localUser,
			Kind:     engine.EventFile,
			FileName: filepath.Base(args[0]),
			Data:     data,
		})
		if len(loaded) == 1 && loaded[0].Kind == respond.KindError {
			return fmt.Errorf("%s", loaded[0].Text)
		}
		images := 0
		for i, q := range args[1:] {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "> %s\n", q)
			for _, p := range a.engine.Handle(ctx, engine.Event{UserID: localUser, Kind: engine.EventText, Text: q}) {
				switch p.Kind {
				case respond.KindImage:
					images++
					path := filepath.Join(askImageDir, fmt.Sprintf("datachat-%d.png", images))
					if err := utils.SafeWriteFile(path, p.Image, 0o644); err != nil {
						return fmt.Errorf("save chart: %w", err)
					}
					fmt.Fprintf(out, "[chart saved to %s]\n", path)
				case respond.KindError:
					fmt.Fprintf(out, "✗ %s\n", p.Text)
				default:
					fmt.Fprintln(out, strings.TrimRight(p.Text, "\n"))
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askImageDir, "images", ".", "directory for charts produced by the answers")
}
