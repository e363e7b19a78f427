package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"flowset/internal/staging"
)

var (
	burstRoot string
	burstFPS  float64
)

var burstCmd = &cobra.Command{
	Use:   "burst <video>",
	Short: "Extract the frames of a video into a fresh staging directory",
	Long: `Runs ffmpeg to write the frames of <video> as JPEGs into a new
uniquely named directory under the staging root and prints its path. The
directory is left in place for the caller; a failed burst removes it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("root") {
			cfg.Staging.Root = burstRoot
		}
		if cmd.Flags().Changed("fps") {
			cfg.Staging.FPS = burstFPS
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		s := &staging.Stager{Root: cfg.Staging.Root, FPS: cfg.Staging.FPS, Logger: logger}
		dir, err := s.Burst(cmd.Context(), args[0])
		if err != nil {
			if dir != "" {
				if cerr := staging.Cleanup(dir); cerr != nil {
					logger.Warn("burst: cleanup failed", "dir", dir, "error", cerr)
				}
			}
			return err
		}
		frames, err := staging.Frames(dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d frames\n", dir, len(frames))
		return nil
	},
}

func init() {
	burstCmd.Flags().StringVar(&burstRoot, "root", "", "staging root (default from config, /dev/shm)")
	burstCmd.Flags().Float64Var(&burstFPS, "fps", 0, "frames per second to extract (default from config, 8)")
}
