// Package cmd implements the ppt CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apiclient "github.com/donaldgifford/property-price-tracker/internal/api/client"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "ppt",
		Short: "CLI client for Property Price Tracker",
		Long: "ppt is a command-line client for the Property Price Tracker API.\n" +
			"It lets you query listings and price history, push snapshots, read\n" +
			"price statistics, trigger feed cycles and manage halted partitions.",
		SilenceUsage: true,
	}
)

// Root returns the root cobra command for documentation generation.
func Root() *cobra.Command {
	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default $HOME/.ppt.yaml)")
	rootCmd.PersistentFlags().
		String("server", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().
		String("output", "table", "output format (table, json)")
	rootCmd.PersistentFlags().
		StringP("partition", "p", string(domain.PartitionResidential), "listing partition (residential, commercial)")

	cobra.CheckErr(viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server")))
	cobra.CheckErr(viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output")))
	cobra.CheckErr(viper.BindPFlag("partition", rootCmd.PersistentFlags().Lookup("partition")))

	rootCmd.AddCommand(listingsCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(partitionsCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(jobsCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ppt")
	}

	viper.SetEnvPrefix("PPT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newClient() *apiclient.Client {
	return apiclient.New(viper.GetString("server"))
}

func jsonOutput() bool {
	return viper.GetString("output") == "json"
}

func partition() (domain.Partition, error) {
	return domain.ParsePartition(viper.GetString("partition"))
}
