package main

import (
	"fmt"
	"os"

	"github.com/notargets/hexfem/config"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hexfem",
	Short: "Matrix-free hex element evaluation and device CSR assembly",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

var gradientCmd = &cobra.Command{
	Use:   "gradient",
	Short: "Apply the gradient boundary closure on a box and export shared rows",
	Run: func(cmd *cobra.Command, args []string) {
		run := loadRun(cmd)
		defer startProfile(cmd).Stop()
		res, err := runGradient(run)
		exitOn(err)
		fmt.Printf("max |rhs| over owned rows = %.15g (%d rows)\n", res.MaxAbs, res.NumRows)
	},
}

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Assemble the mass matrix and source rhs on the device and export shared rows",
	Run: func(cmd *cobra.Command, args []string) {
		run := loadRun(cmd)
		defer startProfile(cmd).Stop()
		res, err := runAssemble(run)
		exitOn(err)
		for _, rr := range res.Ranks {
			fmt.Printf("rank %d: %d owned rows, %d shared rows, %d nonzeros after export\n",
				rr.Rank, rr.OwnedRows, rr.SharedRows, rr.Nonzeros)
			if run.Timing {
				fmt.Printf("rank %d: %s\n", rr.Rank, rr.Timings)
			}
		}
		fmt.Printf("total mass = %.15g, total source = %.15g\n", res.TotalMass, res.TotalSource)
	},
}

type stopper interface{ Stop() }

type noProfile struct{}

func (noProfile) Stop() {}

func startProfile(cmd *cobra.Command) stopper {
	if p, _ := cmd.Flags().GetBool("profile"); p {
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."))
	}
	return noProfile{}
}

func loadRun(cmd *cobra.Command) *config.Run {
	run := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		run, err = config.Load(path)
		exitOn(err)
	}
	exitOn(run.Validate())
	run.Print()
	return run
}

func exitOn(err error) {
	if err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML run file, defaults apply when absent")
	rootCmd.PersistentFlags().Bool("profile", false, "write a CPU profile to the current directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	rootCmd.AddCommand(gradientCmd, assembleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
