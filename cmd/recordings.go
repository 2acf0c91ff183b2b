package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var downloadOutputDir string

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List and download synchronized recordings",
}

var recordingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List synchronized recordings found on the attached devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := newRecordingsManager().List(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No synchronized recordings found.")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  session %s\n", s.EndedAt.Format("2006-01-02 15:04:05"), s.SharedSessionID)
			fmt.Printf("\tserver  %s  %s\n", s.Server.Serial, s.Server.UID)
			for _, c := range s.Clients {
				fmt.Printf("\tclient  %s  %s\n", c.Serial, c.UID)
			}
		}
		return nil
	},
}

var recordingsDownloadCmd = &cobra.Command{
	Use:   "download [shared-session-id]",
	Short: "Download every recording of one synchronized session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir := downloadOutputDir
		if outputDir == "" {
			outputDir = cfg.Output.Directory
		}
		if err := newRecordingsManager().Download(cmd.Context(), args[0], outputDir); err != nil {
			return err
		}
		fmt.Printf("Recordings for session %s downloaded to %s\n", args[0], outputDir)
		return nil
	},
}

func init() {
	recordingsDownloadCmd.Flags().StringVarP(&downloadOutputDir, "output-dir", "o", "", "directory to save the recordings in (default from config)")
	recordingsCmd.AddCommand(recordingsListCmd)
	recordingsCmd.AddCommand(recordingsDownloadCmd)
}
